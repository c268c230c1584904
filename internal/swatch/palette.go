package swatch

import (
	"cmp"
	"image"
	"image/color"
	"slices"

	"github.com/disintegration/imaging"
)

const (
	sampleWidth      = 64
	kmeansIterations = 12
)

// DominantColors returns up to k colours ordered by how much of img they
// cover. The image is downscaled before clustering.
func DominantColors(img image.Image, k int) []color.NRGBA {
	if k <= 0 {
		return nil
	}
	small := imaging.Resize(img, sampleWidth, 0, imaging.Box)
	pixels := collectPixels(small)
	if len(pixels) == 0 {
		return nil
	}
	k = min(k, len(pixels))

	centroids := seedCentroids(pixels, k)
	assign := make([]int, len(pixels))

	for range kmeansIterations {
		changed := false
		for i, p := range pixels {
			best := nearest(centroids, p)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		sums := make([][4]float64, k)
		for i, p := range pixels {
			c := assign[i]
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			sums[c][2] += p[2]
			sums[c][3]++
		}
		for c := range centroids {
			if sums[c][3] == 0 {
				continue
			}
			centroids[c] = [3]float64{sums[c][0] / sums[c][3], sums[c][1] / sums[c][3], sums[c][2] / sums[c][3]}
		}
		if !changed {
			break
		}
	}

	type cluster struct {
		color color.NRGBA
		size  int
	}
	sizes := make([]int, k)
	for _, c := range assign {
		sizes[c]++
	}
	clusters := make([]cluster, 0, k)
	for c, centroid := range centroids {
		if sizes[c] == 0 {
			continue
		}
		clusters = append(clusters, cluster{
			color: color.NRGBA{R: uint8(centroid[0] + 0.5), G: uint8(centroid[1] + 0.5), B: uint8(centroid[2] + 0.5), A: 255},
			size:  sizes[c],
		})
	}
	slices.SortStableFunc(clusters, func(a, b cluster) int { return cmp.Compare(b.size, a.size) })

	colors := make([]color.NRGBA, len(clusters))
	for i, c := range clusters {
		colors[i] = c.color
	}
	return colors
}

func collectPixels(img *image.NRGBA) [][3]float64 {
	bounds := img.Bounds()
	pixels := make([][3]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			pixels = append(pixels, [3]float64{float64(c.R), float64(c.G), float64(c.B)})
		}
	}
	return pixels
}

// seedCentroids picks the first pixel, then repeatedly the pixel farthest
// from every chosen centroid, so distinct colours seed distinct clusters.
func seedCentroids(pixels [][3]float64, k int) [][3]float64 {
	centroids := make([][3]float64, 0, k)
	centroids = append(centroids, pixels[0])
	nearestDist := make([]float64, len(pixels))
	for i, p := range pixels {
		nearestDist[i] = distance(p, pixels[0])
	}
	for len(centroids) < k {
		far := 0
		for i, d := range nearestDist {
			if d > nearestDist[far] {
				far = i
			}
		}
		if nearestDist[far] == 0 {
			break
		}
		next := pixels[far]
		centroids = append(centroids, next)
		for i, p := range pixels {
			nearestDist[i] = min(nearestDist[i], distance(p, next))
		}
	}
	return centroids
}

func distance(a, b [3]float64) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}

func nearest(centroids [][3]float64, p [3]float64) int {
	best, bestDist := 0, -1.0
	for i, c := range centroids {
		dist := distance(p, c)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// Composite returns img with a strip of colors appended below it. The strip
// height is ratio times the image height.
func Composite(img image.Image, colors []color.NRGBA, ratio float64) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	stripH := max(1, int(float64(h)*ratio))

	dst := imaging.New(w, h+stripH, color.NRGBA{A: 255})
	dst = imaging.Paste(dst, img, image.Pt(0, 0))
	n := len(colors)
	for i, c := range colors {
		x0, x1 := i*w/n, (i+1)*w/n
		if x1 <= x0 {
			continue
		}
		block := imaging.New(x1-x0, stripH, c)
		dst = imaging.Paste(dst, block, image.Pt(x0, h))
	}
	return dst
}

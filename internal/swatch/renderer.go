package swatch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"markerflow/internal/extract"
	"markerflow/internal/logging"
)

// ImageRenderer rewrites every PNG and JPEG thumbnail in an extraction's
// output folder with a swatch strip. Animated GIFs are left alone.
type ImageRenderer struct {
	logger *slog.Logger
}

// NewImageRenderer constructs a renderer.
func NewImageRenderer(logger *slog.Logger) *ImageRenderer {
	return &ImageRenderer{logger: logging.NewComponentLogger(logger, "swatch")}
}

// Render processes the images concurrently. Per-image failures are logged
// and counted; cancellation stops scheduling further images.
func (r *ImageRenderer) Render(ctx context.Context, result extract.Result, settings Settings, onProgress func(float64)) Summary {
	settings = settings.normalized()
	logger := logging.WithContext(ctx, r.logger)

	images, err := listImages(result.OutputFolder)
	if err != nil {
		logging.WarnWithContext(logger, "swatch image scan failed", "swatch_scan_failed",
			logging.String("folder", result.OutputFolder),
			logging.Error(err),
			logging.String(logging.FieldImpact, "thumbnails keep no colour strip"),
		)
		return Summary{}
	}
	if len(images) == 0 {
		return Summary{}
	}

	limit := settings.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	record := func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			summary.Rendered++
		} else {
			summary.Failed++
		}
		if onProgress != nil {
			onProgress(float64(summary.Rendered+summary.Failed) / float64(len(images)))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, path := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := renderOne(path, settings); err != nil {
				logging.WarnWithContext(logger, "swatch render failed", "swatch_render_failed",
					logging.String("image", path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "thumbnail keeps no colour strip"),
				)
				record(false)
				return nil
			}
			record(true)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debug("swatch rendering interrupted", logging.Error(err))
	}

	logger.Info("swatches rendered",
		logging.Int("rendered", summary.Rendered),
		logging.Int("failed", summary.Failed),
	)
	return summary
}

func renderOne(path string, settings Settings) error {
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	colors := settings.Colors
	if len(colors) == 0 {
		colors = DominantColors(img, settings.ColorCount)
	}
	if len(colors) == 0 {
		return fmt.Errorf("no colours found")
	}
	out := Composite(img, colors, settings.StripRatio)
	if err := imaging.Save(out, path, imaging.JPEGQuality(92)); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

func listImages(folder string) ([]string, error) {
	if strings.TrimSpace(folder) == "" {
		return nil, fmt.Errorf("output folder not set")
	}
	var images []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != folder && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
			images = append(images, path)
		}
		return nil
	})
	return images, err
}

// Package swatch composites a dominant-colour strip under every thumbnail an
// extraction produced. Rendering is best effort: failures are logged and
// counted, never returned.
package swatch

import (
	"context"
	"image/color"

	"markerflow/internal/extract"
)

const (
	defaultColorCount = 5
	maxColorCount     = 12
	defaultStripRatio = 0.15
)

// Settings controls swatch rendering. When Colors is empty the palette is
// computed per image.
type Settings struct {
	Enabled     bool
	ColorCount  int
	Colors      []color.NRGBA
	StripRatio  float64
	Concurrency int
}

func (s Settings) normalized() Settings {
	if s.ColorCount <= 0 {
		s.ColorCount = defaultColorCount
	}
	s.ColorCount = min(s.ColorCount, maxColorCount)
	if s.StripRatio <= 0 || s.StripRatio >= 1 {
		s.StripRatio = defaultStripRatio
	}
	return s
}

// Summary counts the outcome of one render pass.
type Summary struct {
	Rendered int
	Failed   int
}

// Renderer composites swatches for the images of one extraction.
type Renderer interface {
	Render(ctx context.Context, result extract.Result, settings Settings, onProgress func(float64)) Summary
}

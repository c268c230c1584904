// Package extract defines the contract of the marker extraction engine and
// ships a subprocess adapter for the markers-extractor command-line tool.
package extract

import (
	"context"
	"errors"
)

// ErrNoManifest reports an extraction that finished without a manifest.
var ErrNoManifest = errors.New("extraction produced no manifest")

// Settings is everything the engine needs to extract one project file.
type Settings struct {
	Source    string
	OutputDir string

	ExportFormat  string
	MarkersSource string
	FolderFormat  string
	IDNamingMode  string

	ImageFormat  string
	ImageQuality int
	ImageWidth   int
	ImageHeight  int
	ImageScale   int
	GIFFPS       int
	GIFSpan      int

	IncludeOutsideClipRange bool
	IncludeDisabledClips    bool
	ExcludedRoles           []string

	Label Label
}

// Label describes the text overlay burned into each thumbnail.
type Label struct {
	Fields          []string
	Copyright       string
	Font            string
	FontSize        int
	Opacity         int
	Color           string
	StrokeColor     string
	StrokeWidth     int
	AlignHorizontal string
	AlignVertical   string
	HideLabels      bool
}

// Result points at the output of one extraction.
type Result struct {
	OutputFolder string
	ManifestPath string
}

// Extractor runs one extraction. onProgress receives fractions in [0,1] and
// may be nil.
type Extractor interface {
	Extract(ctx context.Context, settings Settings, onProgress func(float64)) (Result, error)
}

package pipeline

import (
	"slices"
	"strings"

	"markerflow/internal/extract"
	"markerflow/internal/settings"
	"markerflow/internal/swatch"
)

// exportDir picks the destination for a run: the configuration's export
// folder when set, otherwise the application default.
func exportDir(snap settings.Snapshot, fallback string) string {
	if dir := strings.TrimSpace(snap.ExportFolder); dir != "" {
		return dir
	}
	return strings.TrimSpace(fallback)
}

func extractSettings(snap settings.Snapshot, file, outputDir string) extract.Settings {
	return extract.Settings{
		Source:                  file,
		OutputDir:               outputDir,
		ExportFormat:            snap.ExportFormat,
		MarkersSource:           snap.MarkersSource,
		FolderFormat:            snap.FolderFormat,
		IDNamingMode:            snap.IDNamingMode,
		ImageFormat:             snap.ImageFormat,
		ImageQuality:            snap.ImageQuality,
		ImageWidth:              snap.ImageWidth,
		ImageHeight:             snap.ImageHeight,
		ImageScale:              snap.ImageScale,
		GIFFPS:                  snap.GIFFPS,
		GIFSpan:                 snap.GIFSpan,
		IncludeOutsideClipRange: snap.IncludeOutsideClipRange,
		IncludeDisabledClips:    snap.IncludeDisabledClips,
		ExcludedRoles:           slices.Clone(snap.Roles.Excluded),
		Label: extract.Label{
			Fields:          slices.Clone(snap.Label.Fields),
			Copyright:       snap.Label.Copyright,
			Font:            snap.Label.Font,
			FontSize:        snap.Label.FontSize,
			Opacity:         snap.Label.Opacity,
			Color:           snap.Label.Color,
			StrokeColor:     snap.Label.StrokeColor,
			StrokeWidth:     snap.Label.StrokeWidth,
			AlignHorizontal: snap.Label.AlignHorizontal,
			AlignVertical:   snap.Label.AlignVertical,
			HideLabels:      snap.Label.Hidden,
		},
	}
}

func swatchSettings(snap settings.Snapshot) swatch.Settings {
	return swatch.Settings{
		Enabled:    snap.Swatch.Enabled,
		ColorCount: snap.Swatch.ColorCount,
		StripRatio: snap.Swatch.StripRatio,
	}
}

// percentOf converts an extraction fraction to a whole percent. Truncation
// keeps 100 back until the engine reports completion.
func percentOf(fraction float64) int {
	switch {
	case fraction <= 0:
		return 0
	case fraction >= 1:
		return 100
	}
	return int(fraction * 100)
}

package settings

import (
	"slices"

	"markerflow/internal/manifest"
)

// CurrentVersion is the configuration schema version written by this build.
const CurrentVersion = 3

// Snapshot is every user-configurable export parameter.
type Snapshot struct {
	Version int `json:"version"`

	ExportFolder  string `json:"export_folder"`
	ExportFormat  string `json:"export_format"`
	MarkersSource string `json:"markers_source"`
	FolderFormat  string `json:"folder_format"`
	IDNamingMode  string `json:"id_naming_mode"`

	ImageFormat  string `json:"image_format"`
	ImageQuality int    `json:"image_quality"`
	ImageWidth   int    `json:"image_width"`
	ImageHeight  int    `json:"image_height"`
	ImageScale   int    `json:"image_scale"`
	GIFFPS       int    `json:"gif_fps"`
	GIFSpan      int    `json:"gif_span"`

	IncludeOutsideClipRange bool `json:"include_outside_clip_range"`
	IncludeDisabledClips    bool `json:"include_disabled_clips"`

	Label   Label         `json:"label"`
	Swatch  Swatch        `json:"swatch"`
	Profile ExportProfile `json:"profile"`
	Roles   Roles         `json:"roles"`
}

// Label configures the overlay burned into thumbnails.
type Label struct {
	Fields          []string `json:"fields"`
	Copyright       string   `json:"copyright"`
	Font            string   `json:"font"`
	FontSize        int      `json:"font_size"`
	Opacity         int      `json:"opacity"`
	Color           string   `json:"color"`
	StrokeColor     string   `json:"stroke_color"`
	StrokeWidth     int      `json:"stroke_width"`
	AlignHorizontal string   `json:"align_horizontal"`
	AlignVertical   string   `json:"align_vertical"`
	Hidden          bool     `json:"hidden"`
}

// Swatch configures dominant-colour strips.
type Swatch struct {
	Enabled    bool    `json:"enabled"`
	ColorCount int     `json:"color_count"`
	StripRatio float64 `json:"strip_ratio"`
}

// ExportProfile names the upload destination used after extraction. An empty
// UploadProfile means no upload.
type ExportProfile struct {
	UploadProfile string            `json:"upload_profile"`
	Platform      manifest.Platform `json:"platform"`
}

// Roles lists the project roles excluded from extraction.
type Roles struct {
	Excluded []string `json:"excluded"`
}

// Default returns the packaged default template.
func Default() Snapshot {
	return Snapshot{
		Version:       CurrentVersion,
		ExportFormat:  "csv",
		MarkersSource: "markers",
		FolderFormat:  "medium",
		IDNamingMode:  "projectTimecode",
		ImageFormat:   "png",
		ImageQuality:  85,
		ImageScale:    100,
		GIFFPS:        10,
		GIFSpan:       2,
		Label: Label{
			Fields:          []string{"name", "position"},
			Font:            "Menlo-Regular",
			FontSize:        30,
			Opacity:         100,
			Color:           "#FFFFFF",
			StrokeColor:     "#000000",
			StrokeWidth:     0,
			AlignHorizontal: "left",
			AlignVertical:   "top",
		},
		Swatch: Swatch{
			ColorCount: 5,
			StripRatio: 0.15,
		},
		Profile: ExportProfile{Platform: manifest.PlatformNone},
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Label.Fields = slices.Clone(s.Label.Fields)
	s.Roles.Excluded = slices.Clone(s.Roles.Excluded)
	return s
}

type field struct {
	key   string
	equal func(a, b *Snapshot) bool
}

func eq[T comparable](get func(*Snapshot) T) func(a, b *Snapshot) bool {
	return func(a, b *Snapshot) bool { return get(a) == get(b) }
}

// comparedFields is the allow-list consulted for unsaved changes. Version is
// absent on purpose: migrating a file forward is not an edit.
var comparedFields = []field{
	{"export_folder", eq(func(s *Snapshot) string { return s.ExportFolder })},
	{"export_format", eq(func(s *Snapshot) string { return s.ExportFormat })},
	{"markers_source", eq(func(s *Snapshot) string { return s.MarkersSource })},
	{"folder_format", eq(func(s *Snapshot) string { return s.FolderFormat })},
	{"id_naming_mode", eq(func(s *Snapshot) string { return s.IDNamingMode })},
	{"image_format", eq(func(s *Snapshot) string { return s.ImageFormat })},
	{"image_quality", eq(func(s *Snapshot) int { return s.ImageQuality })},
	{"image_width", eq(func(s *Snapshot) int { return s.ImageWidth })},
	{"image_height", eq(func(s *Snapshot) int { return s.ImageHeight })},
	{"image_scale", eq(func(s *Snapshot) int { return s.ImageScale })},
	{"gif_fps", eq(func(s *Snapshot) int { return s.GIFFPS })},
	{"gif_span", eq(func(s *Snapshot) int { return s.GIFSpan })},
	{"include_outside_clip_range", eq(func(s *Snapshot) bool { return s.IncludeOutsideClipRange })},
	{"include_disabled_clips", eq(func(s *Snapshot) bool { return s.IncludeDisabledClips })},
	{"label", func(a, b *Snapshot) bool { return a.Label.equal(b.Label) }},
	{"swatch", eq(func(s *Snapshot) Swatch { return s.Swatch })},
	{"profile", eq(func(s *Snapshot) ExportProfile { return s.Profile })},
	{"roles", func(a, b *Snapshot) bool { return slices.Equal(a.Roles.Excluded, b.Roles.Excluded) }},
}

func (l Label) equal(o Label) bool {
	return slices.Equal(l.Fields, o.Fields) &&
		l.Copyright == o.Copyright &&
		l.Font == o.Font &&
		l.FontSize == o.FontSize &&
		l.Opacity == o.Opacity &&
		l.Color == o.Color &&
		l.StrokeColor == o.StrokeColor &&
		l.StrokeWidth == o.StrokeWidth &&
		l.AlignHorizontal == o.AlignHorizontal &&
		l.AlignVertical == o.AlignVertical &&
		l.Hidden == o.Hidden
}

// differs reports whether current and stored disagree on any allow-listed
// field whose key is present on disk. Keys missing from the stored document
// (fields added after it was written) are skipped.
func differs(current, stored *Snapshot, storedKeys map[string]bool) []string {
	var changed []string
	for _, f := range comparedFields {
		if storedKeys != nil && !storedKeys[f.key] {
			continue
		}
		if !f.equal(current, stored) {
			changed = append(changed, f.key)
		}
	}
	return changed
}

package queue

import (
	"path/filepath"
	"time"

	"markerflow/internal/manifest"
	"markerflow/internal/profiles"
)

// Status is the upload lifecycle of an entry.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusIdle:      {},
	StatusUploading: {},
	StatusSuccess:   {},
	StatusFailed:    {},
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	_, ok := statusSet[status]
	return status, ok
}

// Entry is one extraction waiting to be uploaded. ID is the extract record
// path, which is unique per output folder.
type Entry struct {
	ID       string
	Folder   string
	Info     manifest.Info
	Profiles []profiles.Profile
	Selected *profiles.Profile
	Status   Status
	Error    string
}

// Name is the project file name shown in listings.
func (e Entry) Name() string {
	return filepath.Base(e.Info.Source)
}

func (e Entry) clone() Entry {
	e.Profiles = append([]profiles.Profile(nil), e.Profiles...)
	if e.Selected != nil {
		p := *e.Selected
		e.Selected = &p
	}
	return e
}

// Record is one row of upload history.
type Record struct {
	SentinelPath string
	ExtractID    string
	SourcePath   string
	ManifestPath string
	Platform     manifest.Platform
	Status       Status
	Profile      string
	ErrorMessage string
	Attempts     int
	ExtractedAt  time.Time
	UpdatedAt    time.Time
	UploadedAt   *time.Time
}

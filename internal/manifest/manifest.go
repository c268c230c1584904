// Package manifest reads and writes the sentinel record left next to every
// successful extraction so later queue scans can resume its upload.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"markerflow/internal/fileutil"
)

// FileName is the sentinel filename recognised by queue scans.
const FileName = ".markerflow-extract.json"

// CurrentVersion is the sentinel schema version written by this build.
const CurrentVersion = 1

// ErrInvalid reports a sentinel that decoded but is unusable.
var ErrInvalid = errors.New("invalid extract record")

// Platform identifies an upload destination.
type Platform string

const (
	PlatformNone     Platform = "none"
	PlatformNotion   Platform = "notion"
	PlatformAirtable Platform = "airtable"
)

// ParsePlatform maps user input onto a Platform. Empty input means none.
func ParsePlatform(value string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return PlatformNone, nil
	case "notion":
		return PlatformNotion, nil
	case "airtable":
		return PlatformAirtable, nil
	default:
		return "", fmt.Errorf("unknown platform %q", value)
	}
}

// Info is the persisted record of one extraction.
type Info struct {
	Version      int       `json:"version"`
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	ManifestPath string    `json:"manifest_path"`
	Platform     Platform  `json:"platform"`
	CreatedAt    time.Time `json:"created_at"`
}

// New builds a record for a freshly completed extraction.
func New(source, manifestPath string, platform Platform) Info {
	if platform == "" {
		platform = PlatformNone
	}
	return Info{
		Version:      CurrentVersion,
		ID:           uuid.NewString(),
		Source:       source,
		ManifestPath: manifestPath,
		Platform:     platform,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

// Path returns the sentinel location inside folder.
func Path(folder string) string {
	return filepath.Join(folder, FileName)
}

// Write stores info as the sentinel inside folder and returns its path.
func Write(folder string, info Info) (string, error) {
	if err := info.validate(); err != nil {
		return "", err
	}
	path := Path(folder)
	if err := fileutil.WriteJSON(path, info); err != nil {
		return "", fmt.Errorf("write extract record: %w", err)
	}
	return path, nil
}

// Read decodes the sentinel at path.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("read extract record: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode extract record %s: %w", path, err)
	}
	if info.Platform == "" {
		info.Platform = PlatformNone
	}
	if err := info.validate(); err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

func (i Info) validate() error {
	switch {
	case i.Version < 1 || i.Version > CurrentVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, i.Version)
	case strings.TrimSpace(i.ManifestPath) == "":
		return fmt.Errorf("%w: missing manifest path", ErrInvalid)
	case i.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing creation time", ErrInvalid)
	}
	if _, err := ParsePlatform(string(i.Platform)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Package profiles persists upload destination profiles for Notion and
// Airtable.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"markerflow/internal/fileutil"
	"markerflow/internal/manifest"
)

const storeFile = "profiles.json"

// Environment fallbacks applied when a stored profile omits its token.
const (
	EnvNotionToken   = "MARKERFLOW_NOTION_TOKEN"
	EnvAirtableToken = "MARKERFLOW_AIRTABLE_TOKEN"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrExists   = errors.New("profile already exists")
	ErrInvalid  = errors.New("invalid profile")
)

// ColumnRename renames the key column of a Notion database on upload.
type ColumnRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Notion holds the Notion uploader parameters.
type Notion struct {
	WorkspaceName    string        `json:"workspace_name"`
	Token            string        `json:"token"`
	DatabaseURL      string        `json:"database_url,omitempty"`
	RenameKeyColumn  *ColumnRename `json:"rename_key_column,omitempty"`
	MergeOnlyColumns []string      `json:"merge_only_columns,omitempty"`
}

// Airtable holds the Airtable uploader parameters. BucketCredentials is the
// attachment hosting key handed to the uploader through a credential file.
type Airtable struct {
	Token             string `json:"token"`
	BaseID            string `json:"base_id"`
	TableID           string `json:"table_id"`
	BucketCredentials string `json:"bucket_credentials,omitempty"`
}

// Profile is one named upload destination.
type Profile struct {
	Name     string            `json:"name"`
	Platform manifest.Platform `json:"platform"`
	Notion   *Notion           `json:"notion,omitempty"`
	Airtable *Airtable         `json:"airtable,omitempty"`
}

// Validate checks the structural shape of a profile. Missing tokens are not
// rejected here; the uploader reports them per file so a half-configured
// profile still shows up in listings.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	switch p.Platform {
	case manifest.PlatformNotion:
		if p.Notion == nil {
			return fmt.Errorf("%w: notion settings missing", ErrInvalid)
		}
	case manifest.PlatformAirtable:
		if p.Airtable == nil {
			return fmt.Errorf("%w: airtable settings missing", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported platform %q", ErrInvalid, p.Platform)
	}
	return nil
}

// Store reads and writes profiles in a single JSON document.
type Store struct {
	path string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, storeFile)}
}

// List returns every profile sorted by name, with environment token
// fallbacks applied.
func (s *Store) List() ([]Profile, error) {
	items, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range items {
		applyEnv(&items[i])
	}
	return items, nil
}

// Get returns the profile called name.
func (s *Store) Get(name string) (Profile, error) {
	items, err := s.List()
	if err != nil {
		return Profile{}, err
	}
	idx := indexOf(items, name)
	if idx < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return items[idx], nil
}

// Save stores p, replacing an existing profile of the same name only when
// replace is set.
func (s *Store) Save(p Profile, replace bool) error {
	p.Name = normalizeName(p.Name)
	if err := p.Validate(); err != nil {
		return err
	}
	items, err := s.read()
	if err != nil {
		return err
	}
	if idx := indexOf(items, p.Name); idx >= 0 {
		if !replace {
			return fmt.Errorf("%w: %s", ErrExists, p.Name)
		}
		items[idx] = p
	} else {
		items = append(items, p)
	}
	return s.write(items)
}

// Remove deletes the profile called name.
func (s *Store) Remove(name string) error {
	items, err := s.read()
	if err != nil {
		return err
	}
	idx := indexOf(items, name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.write(slices.Delete(items, idx, idx+1))
}

// MatchPlatform returns the profiles whose platform equals platform.
func MatchPlatform(items []Profile, platform manifest.Platform) []Profile {
	var matched []Profile
	for _, p := range items {
		if p.Platform == platform {
			matched = append(matched, p)
		}
	}
	return matched
}

func (s *Store) read() ([]Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var items []Profile
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	sortByName(items)
	return items, nil
}

func (s *Store) write(items []Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	sortByName(items)
	if items == nil {
		items = []Profile{}
	}
	return fileutil.WriteJSON(s.path, items)
}

func applyEnv(p *Profile) {
	if p.Notion != nil && strings.TrimSpace(p.Notion.Token) == "" {
		p.Notion.Token = strings.TrimSpace(os.Getenv(EnvNotionToken))
	}
	if p.Airtable != nil && strings.TrimSpace(p.Airtable.Token) == "" {
		p.Airtable.Token = strings.TrimSpace(os.Getenv(EnvAirtableToken))
	}
}

func indexOf(items []Profile, name string) int {
	name = normalizeName(name)
	return slices.IndexFunc(items, func(p Profile) bool {
		return strings.EqualFold(p.Name, name)
	})
}

func sortByName(items []Profile) {
	slices.SortFunc(items, func(a, b Profile) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

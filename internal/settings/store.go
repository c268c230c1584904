package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"markerflow/internal/fileutil"
	"markerflow/internal/logging"
)

const (
	fileExt        = ".json"
	activeFileName = ".active"
	lockFileName   = ".lock"
)

// Store manages the current snapshot and the named configurations in dir.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger

	mu      sync.Mutex
	current Snapshot
	active  string
	changed chan struct{}
}

// Open loads the store rooted at dir, creating the directory when needed.
// An active pointer naming a configuration that no longer exists falls back
// to the default.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateDirectory, err)
	}
	s := &Store{
		dir:     dir,
		lock:    flock.New(filepath.Join(dir, lockFileName)),
		logger:  logging.NewComponentLogger(logger, "settings"),
		current: Default(),
		active:  DefaultName,
		changed: make(chan struct{}, 1),
	}

	name := s.readActivePointer()
	if name == "" || IsDefault(name) {
		return s, nil
	}
	snap, _, err := s.read(name)
	if err != nil {
		logging.WarnWithContext(s.logger, "active configuration unavailable", "settings_active_fallback",
			logging.String("configuration", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "default configuration selected"),
			logging.String(logging.FieldErrorHint, "load or recreate the configuration"),
		)
		return s, nil
	}
	s.current = snap
	s.active = name
	return s, nil
}

// Dir returns the configurations directory.
func (s *Store) Dir() string { return s.dir }

// Active returns the name of the active configuration.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Current returns a copy of the in-memory snapshot.
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// SetCurrent replaces the in-memory snapshot.
func (s *Store) SetCurrent(snap Snapshot) {
	snap = snap.Clone()
	snap.Version = CurrentVersion
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	s.markChanged()
}

// Update applies fn to the in-memory snapshot.
func (s *Store) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.current)
	s.current.Version = CurrentVersion
	s.mu.Unlock()
	s.markChanged()
}

// Names lists the persisted configurations sorted case-insensitively. The
// default configuration is not included.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(name, fileExt))
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names, nil
}

// Read returns the stored snapshot called name without activating it.
func (s *Store) Read(name string) (Snapshot, error) {
	if IsDefault(name) {
		return Default(), nil
	}
	snap, _, err := s.read(NormalizeName(name))
	return snap, err
}

// Add persists snap as name. An existing configuration is only overwritten
// when replace is set; the default name is always rejected.
func (s *Store) Add(name string, snap Snapshot, replace bool) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		return s.write(name, snap, replace)
	})
}

// Save persists the current snapshot as name and makes it active.
func (s *Store) Save(name string, replace bool) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		if err := s.write(name, s.Current(), replace); err != nil {
			return err
		}
		return s.setActive(name)
	})
}

// Load reads name from disk, makes it current and active.
func (s *Store) Load(name string) (Snapshot, error) {
	if IsDefault(name) {
		snap := Default()
		s.mu.Lock()
		s.current = snap.Clone()
		s.mu.Unlock()
		return snap, s.withLock(func() error { return s.setActive(DefaultName) })
	}
	name = NormalizeName(name)
	snap, _, err := s.read(name)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	s.current = snap.Clone()
	s.mu.Unlock()
	return snap, s.withLock(func() error { return s.setActive(name) })
}

// Remove deletes name. Removing the active configuration activates the first
// remaining configuration by name, or the default when none remain.
func (s *Store) Remove(name string) error {
	if IsDefault(name) {
		return ErrReservedName
	}
	name = NormalizeName(name)
	return s.withLock(func() error {
		if err := os.Remove(s.path(name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return fmt.Errorf("remove configuration: %w", err)
		}
		if !strings.EqualFold(s.Active(), name) {
			return nil
		}

		next := DefaultName
		snap := Default()
		names, err := s.Names()
		if err != nil {
			return err
		}
		for _, candidate := range names {
			loaded, _, err := s.read(candidate)
			if err != nil {
				continue
			}
			next, snap = candidate, loaded
			break
		}
		s.mu.Lock()
		s.current = snap
		s.mu.Unlock()
		return s.setActive(next)
	})
}

// Rename moves oldName to newName, carrying the active pointer along.
func (s *Store) Rename(oldName, newName string) error {
	if IsDefault(oldName) {
		return ErrReservedName
	}
	oldName = NormalizeName(oldName)
	newName, err := ValidateName(newName)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		if !fileutil.Exists(s.path(oldName)) {
			return fmt.Errorf("%w: %s", ErrNotFound, oldName)
		}
		caseOnly := strings.EqualFold(oldName, newName)
		if !caseOnly && s.exists(newName) {
			return fmt.Errorf("%w: %s", ErrNameExists, newName)
		}
		if err := os.Rename(s.path(oldName), s.path(newName)); err != nil {
			return fmt.Errorf("rename configuration: %w", err)
		}
		if strings.EqualFold(s.Active(), oldName) {
			return s.setActive(newName)
		}
		return nil
	})
}

// Duplicate copies name (which may be the default) to newName.
func (s *Store) Duplicate(name, newName string) error {
	snap, err := s.Read(name)
	if err != nil {
		return err
	}
	return s.Add(newName, snap, false)
}

// HasUnsavedChanges compares the current snapshot with the stored copy of the
// active configuration. Only allow-listed fields present in the stored
// document take part; the default configuration is compared against the
// packaged template.
func (s *Store) HasUnsavedChanges() (bool, error) {
	changed, err := s.ChangedFields()
	return len(changed) > 0, err
}

// ChangedFields lists the JSON keys of fields that differ from the stored
// copy of the active configuration.
func (s *Store) ChangedFields() ([]string, error) {
	s.mu.Lock()
	active := s.active
	current := s.current.Clone()
	s.mu.Unlock()

	if IsDefault(active) {
		template := Default()
		return differs(&current, &template, nil), nil
	}
	stored, keys, err := s.read(active)
	if err != nil {
		return nil, err
	}
	return differs(&current, &stored, keys), nil
}

func (s *Store) read(name string) (Snapshot, map[string]bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Snapshot{}, nil, fmt.Errorf("read configuration %s: %w", name, err)
	}
	snap, keys, err := decodeDocument(data)
	if err != nil {
		return Snapshot{}, nil, &DecodeError{Name: name, Err: err}
	}
	return snap, keys, nil
}

func (s *Store) write(name string, snap Snapshot, replace bool) error {
	path := s.path(name)
	if !replace && s.exists(name) {
		return fmt.Errorf("%w: %s", ErrNameExists, name)
	}
	snap.Version = CurrentVersion
	if err := fileutil.WriteJSON(path, snap); err != nil {
		return fmt.Errorf("write configuration %s: %w", name, err)
	}
	return nil
}

// exists matches names case-insensitively so "Review" and "review" cannot
// coexist on case-sensitive filesystems.
func (s *Store) exists(name string) bool {
	names, err := s.Names()
	if err != nil {
		return fileutil.Exists(s.path(name))
	}
	return slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, name) })
}

func (s *Store) setActive(name string) error {
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(filepath.Join(s.dir, activeFileName), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("persist active configuration: %w", err)
	}
	return nil
}

func (s *Store) readActivePointer() string {
	data, err := os.ReadFile(filepath.Join(s.dir, activeFileName))
	if err != nil {
		return ""
	}
	return NormalizeName(string(data))
}

func (s *Store) withLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock configurations: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release configuration lock", logging.Error(err))
		}
	}()
	return fn()
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func (s *Store) markChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

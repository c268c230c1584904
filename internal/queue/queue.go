package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"markerflow/internal/logging"
	"markerflow/internal/notifications"
	"markerflow/internal/profiles"
)

var (
	ErrEntryNotFound = errors.New("queue entry not found")
	ErrNoProfile     = errors.New("profile does not match entry platform")
)

// ProfileLister lists the configured upload destinations.
type ProfileLister interface {
	List() ([]profiles.Profile, error)
}

// Uploader sends one manifest to an upload destination.
type Uploader interface {
	Upload(ctx context.Context, manifestPath string, profile profiles.Profile) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithStore persists status transitions and restores them on scan.
func WithStore(store *Store) Option {
	return func(q *Queue) { q.store = store }
}

func WithUploader(u Uploader) Option {
	return func(q *Queue) { q.uploader = u }
}

func WithNotifier(n notifications.Service) Option {
	return func(q *Queue) {
		if n != nil {
			q.notifier = n
		}
	}
}

// WithParallelism bounds concurrent uploads in UploadAll.
func WithParallelism(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.parallelism = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

const defaultParallelism = 2

// Queue holds extractions awaiting upload.
type Queue struct {
	profiles    ProfileLister
	store       *Store
	uploader    Uploader
	notifier    notifications.Service
	parallelism int
	logger      *slog.Logger

	mu      sync.Mutex
	entries []Entry
	// changed is signalled after the entry set changes so Watch can re-arm.
	changed chan struct{}
}

// New constructs an empty queue.
func New(lister ProfileLister, opts ...Option) *Queue {
	q := &Queue{
		profiles:    lister,
		notifier:    notifications.NewService(nil),
		parallelism: defaultParallelism,
		logger:      logging.NewNop(),
		changed:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logging.NewComponentLogger(q.logger, "queue")
	return q
}

// Entries returns a copy of the current entries.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.clone()
	}
	return out
}

// Len reports the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Select chooses the upload profile of an entry by name. An empty name
// clears the selection.
func (q *Queue) Select(id, profileName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	entry := &q.entries[idx]
	profileName = strings.TrimSpace(profileName)
	if profileName == "" {
		entry.Selected = nil
		return nil
	}
	for _, p := range entry.Profiles {
		if strings.EqualFold(p.Name, profileName) {
			selected := p
			entry.Selected = &selected
			return nil
		}
	}
	return fmt.Errorf("%w: %q for %s", ErrNoProfile, profileName, entry.Name())
}

// SelectAll applies profileName to every entry it matches and returns how
// many entries changed.
func (q *Queue) SelectAll(profileName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.entries {
		for _, p := range q.entries[i].Profiles {
			if strings.EqualFold(p.Name, profileName) {
				selected := p
				q.entries[i].Selected = &selected
				n++
				break
			}
		}
	}
	return n
}

// Remove drops an entry without touching disk.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue) removeLocked(id string) bool {
	idx := q.indexLocked(id)
	if idx < 0 {
		return false
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	q.signalChanged()
	return true
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.entries {
		if q.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) setStatus(id string, status Status, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx := q.indexLocked(id); idx >= 0 {
		q.entries[idx].Status = status
		q.entries[idx].Error = errMsg
	}
}

func (q *Queue) signalChanged() {
	select {
	case q.changed <- struct{}{}:
	default:
	}
}

package settings

import (
	"context"
	"time"

	"markerflow/internal/logging"
)

const defaultAutoSaveInterval = 2 * time.Second

// AutoSave persists edits to a non-default active configuration once they
// have settled for interval. It returns when ctx ends, flushing any pending
// edit first.
func (s *Store) AutoSave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultAutoSaveInterval
	}
	timer := time.NewTimer(interval)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			select {
			case <-s.changed:
				pending = true
			default:
			}
			if pending {
				s.flush()
			}
			return
		case <-s.changed:
			pending = true
			timer.Reset(interval)
		case <-timer.C:
			if pending {
				s.flush()
				pending = false
			}
		}
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	active := s.active
	snap := s.current.Clone()
	s.mu.Unlock()

	if IsDefault(active) {
		return
	}
	err := s.withLock(func() error {
		return s.write(active, snap, true)
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "autosave failed", "settings_autosave_failed",
			logging.String("configuration", active),
			logging.Error(err),
			logging.String(logging.FieldImpact, "edits remain unsaved"),
			logging.String(logging.FieldErrorHint, "save the configuration explicitly"),
		)
		return
	}
	s.logger.Debug("configuration autosaved", logging.String("configuration", active))
}

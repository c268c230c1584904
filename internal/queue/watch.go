package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"markerflow/internal/logging"
)

// Watch drops entries whose extract record or folder disappears until ctx
// ends. Entries added by later scans are watched as well.
func (q *Queue) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	logger := logging.WithContext(ctx, q.logger)

	watched := make(map[string]struct{})
	arm := func() {
		for _, e := range q.Entries() {
			for _, dir := range []string{e.Folder, filepath.Dir(e.Folder)} {
				if _, ok := watched[dir]; ok {
					continue
				}
				if err := w.Add(dir); err != nil {
					logger.Debug("cannot watch folder", logging.String("folder", dir), logging.Error(err))
					continue
				}
				watched[dir] = struct{}{}
			}
		}
		q.dropMissing()
	}
	arm()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.changed:
			arm()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Name != "" {
				delete(watched, ev.Name)
			}
			if dropped := q.dropMissing(); dropped > 0 {
				logger.Info("queue entries removed from disk", logging.Int("dropped", dropped))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(logger, "queue watch error", "queue_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "deleted folders may stay queued until the next scan"),
			)
		}
	}
}

// dropMissing removes entries whose extract record no longer exists.
func (q *Queue) dropMissing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	dropped := 0
	for _, e := range q.entries {
		if _, err := os.Stat(e.ID); errors.Is(err, os.ErrNotExist) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return dropped
}

package queue

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"markerflow/internal/logging"
	"markerflow/internal/manifest"
	"markerflow/internal/profiles"
)

// bundleExtensions are directories macOS presents as single files. Their
// contents never hold extraction output.
var bundleExtensions = map[string]struct{}{
	".fcpbundle":     {},
	".fcpxmld":       {},
	".app":           {},
	".bundle":        {},
	".photoslibrary": {},
}

// ScanFolder walks root for extract records and rebuilds queue entries from
// them, newest first. Unreadable records are logged and skipped. With
// appendMode the results are added after the current entries, skipping ones
// already queued; otherwise they replace the queue.
func (q *Queue) ScanFolder(ctx context.Context, root string, appendMode bool) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan %s: not a directory", root)
	}
	logger := logging.WithContext(ctx, q.logger)

	var available []profiles.Profile
	if q.profiles != nil {
		available, err = q.profiles.List()
		if err != nil {
			logging.WarnWithContext(logger, "upload profiles unavailable", "queue_profiles_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "entries will have no upload destination"),
			)
		}
	}

	var found []Entry
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logger.Debug("skipping unreadable path", logging.String("path", path), logging.Error(err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if _, ok := bundleExtensions[strings.ToLower(filepath.Ext(name))]; ok {
				return fs.SkipDir
			}
			return nil
		}
		// The extract record is the only hidden file a scan reads.
		if name != manifest.FileName {
			return nil
		}
		entry, ok := q.entryFor(ctx, path, available)
		if ok {
			found = append(found, entry)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("scan %s: %w", root, walkErr)
	}

	slices.SortStableFunc(found, func(a, b Entry) int {
		return b.Info.CreatedAt.Compare(a.Info.CreatedAt)
	})

	q.mu.Lock()
	if appendMode {
		for _, e := range found {
			if q.indexLocked(e.ID) < 0 {
				q.entries = append(q.entries, e)
			}
		}
	} else {
		q.entries = found
	}
	total := len(q.entries)
	q.signalChanged()
	q.mu.Unlock()

	logger.Info("queue scan finished",
		logging.String("root", root),
		logging.Int("found", len(found)),
		logging.Int("queued", total),
		logging.Bool("append", appendMode),
	)
	return nil
}

func (q *Queue) entryFor(ctx context.Context, path string, available []profiles.Profile) (Entry, bool) {
	logger := logging.WithContext(ctx, q.logger)
	info, err := manifest.Read(path)
	if err != nil {
		logging.WarnWithContext(logger, "skipping unreadable extract record", "queue_record_invalid",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "this extraction is not queued"),
			logging.String(logging.FieldErrorHint, "re-run the extraction or delete the record"),
		)
		return Entry{}, false
	}

	entry := Entry{
		ID:       path,
		Folder:   filepath.Dir(path),
		Info:     info,
		Profiles: profiles.MatchPlatform(available, info.Platform),
		Status:   StatusIdle,
	}
	if len(entry.Profiles) > 0 {
		selected := entry.Profiles[0]
		entry.Selected = &selected
	}

	if q.store != nil {
		rec, err := q.store.Get(ctx, path)
		switch {
		case err != nil:
			logger.Debug("upload history unavailable", logging.String("path", path), logging.Error(err))
		case rec == nil:
			if err := q.store.RecordExtraction(ctx, path, info); err != nil {
				logger.Debug("record scanned extraction failed", logging.String("path", path), logging.Error(err))
			}
		case rec.ExtractID == info.ID && (rec.Status == StatusSuccess || rec.Status == StatusFailed):
			entry.Status = rec.Status
			entry.Error = rec.ErrorMessage
		}
	}
	return entry, true
}

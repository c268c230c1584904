package queue

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"markerflow/internal/logging"
	"markerflow/internal/notifications"
)

// UploadSummary counts the outcome of UploadAll.
type UploadSummary struct {
	Uploaded int
	Failed   int
	Skipped  int
}

// UploadAll uploads every entry that has a selected profile and has not
// already succeeded. Failures are recorded per entry and do not stop other
// uploads. With remove, the folder of each successful entry is deleted and
// the entry leaves the queue.
func (q *Queue) UploadAll(ctx context.Context, remove bool) (UploadSummary, error) {
	if q.uploader == nil {
		return UploadSummary{}, errors.New("queue has no uploader")
	}
	logger := logging.WithContext(ctx, q.logger)

	var (
		pending []Entry
		summary UploadSummary
	)
	for _, e := range q.Entries() {
		if e.Selected == nil || e.Status == StatusSuccess || e.Status == StatusUploading {
			summary.Skipped++
			continue
		}
		pending = append(pending, e)
		q.setStatus(e.ID, StatusUploading, "")
	}

	results := make(chan Status, len(pending))
	var g errgroup.Group
	g.SetLimit(q.parallelism)
	for _, entry := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				q.setStatus(entry.ID, StatusIdle, "")
				return nil
			}
			results <- q.uploadOne(ctx, entry, remove)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for status := range results {
		if status == StatusSuccess {
			summary.Uploaded++
		} else {
			summary.Failed++
		}
	}

	logger.Info("queue upload finished",
		logging.Int("uploaded", summary.Uploaded),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
	)
	if summary.Uploaded+summary.Failed > 0 {
		if err := q.notifier.Publish(context.WithoutCancel(ctx), notifications.EventQueueUploaded, notifications.Payload{
			"uploaded": summary.Uploaded,
			"failed":   summary.Failed,
		}); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no push notification for this upload"),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (q *Queue) uploadOne(ctx context.Context, entry Entry, remove bool) Status {
	logger := logging.WithContext(logging.WithFile(ctx, entry.Info.Source), q.logger)
	profile := *entry.Selected
	q.recordStatus(ctx, entry.ID, StatusUploading, profile.Name, "")

	if err := q.uploader.Upload(ctx, entry.Info.ManifestPath, profile); err != nil {
		msg := err.Error()
		q.setStatus(entry.ID, StatusFailed, msg)
		q.recordStatus(ctx, entry.ID, StatusFailed, profile.Name, msg)
		logging.WarnWithContext(logger, "queued upload failed", "queue_upload_failed",
			logging.String(logging.FieldPlatform, string(profile.Platform)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry stays queued for retry"),
		)
		return StatusFailed
	}

	q.setStatus(entry.ID, StatusSuccess, "")
	q.recordStatus(ctx, entry.ID, StatusSuccess, profile.Name, "")
	logger.Info("queued upload finished", logging.String(logging.FieldPlatform, string(profile.Platform)))

	if remove {
		if err := os.RemoveAll(entry.Folder); err != nil {
			logging.WarnWithContext(logger, "could not delete uploaded folder", "queue_remove_failed",
				logging.String("folder", entry.Folder),
				logging.Error(err),
				logging.String(logging.FieldImpact, "folder remains on disk"),
			)
		} else {
			q.Remove(entry.ID)
		}
	}
	return StatusSuccess
}

func (q *Queue) recordStatus(ctx context.Context, id string, status Status, profile, errMsg string) {
	if q.store == nil {
		return
	}
	err := q.store.MarkStatus(context.WithoutCancel(ctx), id, status, profile, errMsg)
	if errors.Is(err, ErrNotRecorded) {
		entry, ok := q.entry(id)
		if !ok {
			return
		}
		if err = q.store.RecordExtraction(context.WithoutCancel(ctx), id, entry.Info); err == nil {
			err = q.store.MarkStatus(context.WithoutCancel(ctx), id, status, profile, errMsg)
		}
	}
	if err != nil {
		q.logger.Debug("upload history not updated", logging.String("entry", id), logging.Error(fmt.Errorf("%s: %w", status, err)))
	}
}

func (q *Queue) entry(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx := q.indexLocked(id); idx >= 0 {
		return q.entries[idx].clone(), true
	}
	return Entry{}, false
}

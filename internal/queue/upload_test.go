package queue_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"markerflow/internal/manifest"
	"markerflow/internal/notifications"
	"markerflow/internal/queue"
	"markerflow/internal/testsupport"
)

type capturingNotifier struct {
	mu       sync.Mutex
	payloads []notifications.Payload
}

func (c *capturingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	if event != notifications.EventQueueUploaded {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func TestUploadAllDrivesStatuses(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	testsupport.WriteExtraction(t, root, "ok", manifest.PlatformNotion, now)
	testsupport.WriteExtraction(t, root, "bad", manifest.PlatformNotion, now.Add(-time.Minute))
	testsupport.WriteExtraction(t, root, "none", manifest.PlatformNone, now.Add(-2*time.Minute))

	uploader := &fakeUploader{fail: map[string]error{
		filepath.Join(root, "bad", "markers.csv"): errors.New("notion upload failed: 500"),
	}}
	notifier := &capturingNotifier{}
	store := openStore(t)
	q := queue.New(testProfiles,
		queue.WithUploader(uploader),
		queue.WithNotifier(notifier),
		queue.WithStore(store),
		queue.WithParallelism(2),
	)
	ctx := context.Background()
	if err := q.ScanFolder(ctx, root, false); err != nil {
		t.Fatal(err)
	}

	summary, err := q.UploadAll(ctx, false)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if summary != (queue.UploadSummary{Uploaded: 1, Failed: 1, Skipped: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
	statuses := map[string]queue.Status{}
	for _, e := range q.Entries() {
		statuses[filepath.Base(e.Folder)] = e.Status
	}
	if statuses["ok"] != queue.StatusSuccess || statuses["bad"] != queue.StatusFailed || statuses["none"] != queue.StatusIdle {
		t.Fatalf("statuses = %v", statuses)
	}
	rec, err := store.Get(ctx, manifest.Path(filepath.Join(root, "bad")))
	if err != nil || rec == nil || rec.Status != queue.StatusFailed || rec.ErrorMessage == "" {
		t.Fatalf("history = %+v, %v", rec, err)
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0]["uploaded"] != 1 || notifier.payloads[0]["failed"] != 1 {
		t.Fatalf("notifications = %v", notifier.payloads)
	}

	// Successful entries are not uploaded twice.
	uploader.fail = nil
	summary, err = q.UploadAll(ctx, false)
	if err != nil {
		t.Fatalf("second UploadAll: %v", err)
	}
	if summary.Uploaded != 1 || summary.Skipped != 2 {
		t.Fatalf("retry summary = %+v", summary)
	}
}

func TestUploadAllRemovesFolders(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteExtraction(t, root, "gone", manifest.PlatformAirtable, time.Now().UTC().Truncate(time.Second))
	q := queue.New(testProfiles, queue.WithUploader(&fakeUploader{}))
	ctx := context.Background()
	if err := q.ScanFolder(ctx, root, false); err != nil {
		t.Fatal(err)
	}

	if _, err := q.UploadAll(ctx, true); err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("entries = %d, want 0", q.Len())
	}
	if _, err := os.Stat(filepath.Join(root, "gone")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("folder still present: %v", err)
	}
}

func TestUploadAllHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteExtraction(t, root, "a", manifest.PlatformNotion, time.Now().UTC().Truncate(time.Second))
	uploader := &fakeUploader{}
	q := queue.New(testProfiles, queue.WithUploader(uploader))
	if err := q.ScanFolder(context.Background(), root, false); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.UploadAll(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(uploader.calls) != 0 {
		t.Fatalf("uploads after cancel = %d", len(uploader.calls))
	}
	if st := q.Entries()[0].Status; st != queue.StatusIdle {
		t.Fatalf("status = %s, want idle", st)
	}
}

func TestUploadAllWithoutUploader(t *testing.T) {
	if _, err := queue.New(testProfiles).UploadAll(context.Background(), false); err == nil {
		t.Fatal("expected error without uploader")
	}
}

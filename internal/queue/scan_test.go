package queue_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"markerflow/internal/manifest"
	"markerflow/internal/profiles"
	"markerflow/internal/queue"
	"markerflow/internal/testsupport"
)

type staticProfiles []profiles.Profile

func (s staticProfiles) List() ([]profiles.Profile, error) { return s, nil }

var testProfiles = staticProfiles{
	{Name: "Team Notion", Platform: manifest.PlatformNotion, Notion: &profiles.Notion{WorkspaceName: "Team", Token: "t"}},
	{Name: "Archive", Platform: manifest.PlatformAirtable, Airtable: &profiles.Airtable{Token: "k", BaseID: "b", TableID: "t"}},
}

func TestScanFolderFindsRecordsNewestFirst(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	testsupport.WriteExtraction(t, root, "old", manifest.PlatformNotion, base)
	testsupport.WriteExtraction(t, root, "nested/new", manifest.PlatformAirtable, base.Add(2*time.Hour))
	testsupport.WriteExtraction(t, root, "mid", manifest.PlatformNone, base.Add(time.Hour))

	q := queue.New(testProfiles)
	if err := q.ScanFolder(context.Background(), root, false); err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}
	entries := q.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	want := []string{"new.fcpxml", "mid.fcpxml", "old.fcpxml"}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, e.Name(), want[i])
		}
	}
	if len(entries[0].Profiles) != 1 || entries[0].Profiles[0].Name != "Archive" || entries[0].Selected == nil {
		t.Fatalf("airtable entry profiles = %+v", entries[0].Profiles)
	}
	if len(entries[1].Profiles) != 0 || entries[1].Selected != nil {
		t.Fatalf("none entry profiles = %+v", entries[1].Profiles)
	}
	for _, e := range entries {
		if e.Status != queue.StatusIdle {
			t.Fatalf("status = %s, want idle", e.Status)
		}
	}
}

func TestScanFolderSkipsHiddenBundlesAndBadRecords(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	testsupport.WriteExtraction(t, root, "good", manifest.PlatformNotion, now)
	testsupport.WriteExtraction(t, root, ".hidden/skipped", manifest.PlatformNotion, now)
	testsupport.WriteExtraction(t, root, "Library.fcpbundle/inner", manifest.PlatformNotion, now)
	testsupport.WriteExtraction(t, root, "Tool.app/Contents", manifest.PlatformNotion, now)

	bad := filepath.Join(root, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(manifest.Path(bad), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// AppleDouble companions are hidden files carrying the record bytes.
	record, err := os.ReadFile(manifest.Path(filepath.Join(root, "good")))
	if err != nil {
		t.Fatal(err)
	}
	shadow := filepath.Join(root, "shadow")
	if err := os.MkdirAll(shadow, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shadow, "._"+manifest.FileName), record, 0o644); err != nil {
		t.Fatal(err)
	}

	q := queue.New(testProfiles)
	if err := q.ScanFolder(context.Background(), root, false); err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}
	entries := q.Entries()
	if len(entries) != 1 || entries[0].Folder != filepath.Join(root, "good") {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestScanFolderReplaceAndAppend(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	testsupport.WriteExtraction(t, first, "a", manifest.PlatformNotion, now)
	testsupport.WriteExtraction(t, second, "b", manifest.PlatformNotion, now)

	q := queue.New(testProfiles)
	ctx := context.Background()
	if err := q.ScanFolder(ctx, first, false); err != nil {
		t.Fatal(err)
	}
	if err := q.ScanFolder(ctx, second, true); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("append len = %d, want 2", q.Len())
	}
	if err := q.ScanFolder(ctx, second, true); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("re-append duplicated entries: %d", q.Len())
	}
	if err := q.ScanFolder(ctx, second, false); err != nil {
		t.Fatal(err)
	}
	if entries := q.Entries(); len(entries) != 1 || entries[0].Name() != "b.fcpxml" {
		t.Fatalf("replace = %+v", entries)
	}
}

func TestScanFolderRejectsMissingRoot(t *testing.T) {
	q := queue.New(testProfiles)
	if err := q.ScanFolder(context.Background(), filepath.Join(t.TempDir(), "missing"), false); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScanFolderRestoresHistory(t *testing.T) {
	root := t.TempDir()
	sentinel := testsupport.WriteExtraction(t, root, "done", manifest.PlatformNotion, time.Now().UTC().Truncate(time.Second))
	store := openStore(t)
	q := queue.New(testProfiles, queue.WithStore(store))
	ctx := context.Background()

	if err := q.ScanFolder(ctx, root, false); err != nil {
		t.Fatal(err)
	}
	if rec, _ := store.Get(ctx, sentinel); rec == nil || rec.Status != queue.StatusIdle {
		t.Fatalf("scan did not record entry: %+v", rec)
	}
	if err := store.MarkStatus(ctx, sentinel, queue.StatusSuccess, "Team Notion", ""); err != nil {
		t.Fatal(err)
	}
	if err := q.ScanFolder(ctx, root, false); err != nil {
		t.Fatal(err)
	}
	if entries := q.Entries(); entries[0].Status != queue.StatusSuccess {
		t.Fatalf("status = %s, want success", entries[0].Status)
	}
}

func TestSelectProfile(t *testing.T) {
	root := t.TempDir()
	sentinel := testsupport.WriteExtraction(t, root, "a", manifest.PlatformNotion, time.Now().UTC().Truncate(time.Second))
	q := queue.New(testProfiles)
	if err := q.ScanFolder(context.Background(), root, false); err != nil {
		t.Fatal(err)
	}
	if err := q.Select(sentinel, "archive"); err == nil {
		t.Fatal("selected a profile of another platform")
	}
	if err := q.Select(sentinel, ""); err != nil {
		t.Fatalf("clear selection: %v", err)
	}
	if q.Entries()[0].Selected != nil {
		t.Fatal("selection not cleared")
	}
	if n := q.SelectAll("team notion"); n != 1 {
		t.Fatalf("SelectAll = %d", n)
	}
	if err := q.Select("/nope", "Team Notion"); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeUploader) Upload(_ context.Context, manifestPath string, _ profiles.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, manifestPath)
	return f.fail[manifestPath]
}

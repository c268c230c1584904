package settings_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"markerflow/internal/settings"
)

func openStore(t *testing.T) (*settings.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "configurations")
	store, err := settings.Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, dir
}

func TestOpenDefaults(t *testing.T) {
	store, _ := openStore(t)
	if store.Active() != settings.DefaultName {
		t.Fatalf("expected default active, got %q", store.Active())
	}
	changed, err := store.HasUnsavedChanges()
	if err != nil || changed {
		t.Fatalf("fresh default store reported changes: %v, %v", changed, err)
	}
}

func TestSaveThenNoUnsavedChanges(t *testing.T) {
	store, _ := openStore(t)
	store.Update(func(s *settings.Snapshot) {
		s.ImageFormat = "gif"
		s.Label.Fields = []string{"name", "notes"}
		s.Roles.Excluded = []string{"Music"}
	})
	changed, err := store.HasUnsavedChanges()
	if err != nil || !changed {
		t.Fatalf("expected edits against default template to be changes: %v, %v", changed, err)
	}

	if err := store.Save("Review", false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if store.Active() != "Review" {
		t.Fatalf("expected Review active, got %q", store.Active())
	}
	changed, err = store.HasUnsavedChanges()
	if err != nil || changed {
		t.Fatalf("expected no unsaved changes right after save: %v, %v", changed, err)
	}

	loaded, err := store.Read("Review")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if loaded.ImageFormat != "gif" || !slices.Equal(loaded.Label.Fields, []string{"name", "notes"}) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	store.Update(func(s *settings.Snapshot) { s.Swatch.Enabled = true })
	fields, err := store.ChangedFields()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(fields, []string{"swatch"}) {
		t.Fatalf("expected only swatch changed, got %v", fields)
	}
}

func TestDefaultNameAlwaysRejected(t *testing.T) {
	store, _ := openStore(t)
	for _, name := range []string{"Default", "default", "  DEFAULT "} {
		for _, replace := range []bool{false, true} {
			if err := store.Save(name, replace); !errors.Is(err, settings.ErrReservedName) {
				t.Fatalf("Save(%q, %v) = %v, want ErrReservedName", name, replace, err)
			}
			if err := store.Add(name, settings.Default(), replace); !errors.Is(err, settings.ErrReservedName) {
				t.Fatalf("Add(%q, %v) = %v, want ErrReservedName", name, replace, err)
			}
		}
	}
	if err := store.Remove("Default"); !errors.Is(err, settings.ErrReservedName) {
		t.Fatalf("Remove(Default) = %v", err)
	}
}

func TestNameValidation(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{name: "", want: settings.ErrEmptyName},
		{name: "   ", want: settings.ErrEmptyName},
		{name: strings.Repeat("a", 51), want: settings.ErrNameTooLong},
		{name: "a/b", want: settings.ErrInvalidName},
		{name: ".hidden", want: settings.ErrInvalidName},
	}
	for _, tt := range tests {
		if _, err := settings.ValidateName(tt.name); !errors.Is(err, tt.want) {
			t.Fatalf("ValidateName(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := settings.ValidateName(strings.Repeat("é", 50)); err != nil {
		t.Fatalf("50 characters must be accepted: %v", err)
	}
	got, err := settings.ValidateName("Cafe\u0301")
	if err != nil || got != "Caf\u00e9" {
		t.Fatalf("expected NFC-normalized name, got %q, %v", got, err)
	}
}

func TestAddRespectsReplace(t *testing.T) {
	store, _ := openStore(t)
	if err := store.Add("Client", settings.Default(), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add("client", settings.Default(), false); !errors.Is(err, settings.ErrNameExists) {
		t.Fatalf("expected ErrNameExists, got %v", err)
	}
	snap := settings.Default()
	snap.ImageQuality = 40
	if err := store.Add("Client", snap, true); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := store.Read("Client")
	if err != nil || got.ImageQuality != 40 {
		t.Fatalf("expected replaced content, got %+v, %v", got, err)
	}
}

func TestRenameMovesActivePointer(t *testing.T) {
	store, dir := openStore(t)
	if err := store.Save("Draft", false); err != nil {
		t.Fatal(err)
	}
	if err := store.Add("Other", settings.Default(), false); err != nil {
		t.Fatal(err)
	}
	if err := store.Rename("Draft", "Other"); !errors.Is(err, settings.ErrNameExists) {
		t.Fatalf("expected ErrNameExists, got %v", err)
	}
	if err := store.Rename("Draft", "other"); !errors.Is(err, settings.ErrNameExists) {
		t.Fatalf("expected ErrNameExists for a name differing only by case, got %v", err)
	}
	if err := store.Rename("Draft", "draft"); err != nil {
		t.Fatalf("case-only rename: %v", err)
	}
	if err := store.Rename("draft", "Draft"); err != nil {
		t.Fatalf("case-only rename back: %v", err)
	}
	if err := store.Rename("Missing", "Final"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Rename("Draft", "Final"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if store.Active() != "Final" {
		t.Fatalf("expected active pointer to follow rename, got %q", store.Active())
	}

	reopened, err := settings.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Active() != "Final" {
		t.Fatalf("expected persisted active pointer, got %q", reopened.Active())
	}
}

func TestRemoveActiveFallsBackToFirstByName(t *testing.T) {
	store, _ := openStore(t)
	for _, name := range []string{"zulu", "Bravo", "alpha"} {
		snap := settings.Default()
		snap.ExportFormat = name
		if err := store.Add(name, snap, false); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Load("Bravo"); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("Bravo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if store.Active() != "alpha" {
		t.Fatalf("expected alpha active, got %q", store.Active())
	}
	if got := store.Current().ExportFormat; got != "alpha" {
		t.Fatalf("expected alpha snapshot current, got %q", got)
	}

	for _, name := range []string{"alpha", "zulu"} {
		if err := store.Remove(name); err != nil {
			t.Fatal(err)
		}
	}
	if store.Active() != settings.DefaultName {
		t.Fatalf("expected default after removing all, got %q", store.Active())
	}
	if err := store.Remove("alpha"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicate(t *testing.T) {
	store, _ := openStore(t)
	if err := store.Duplicate("Default", "Copy"); err != nil {
		t.Fatalf("Duplicate default: %v", err)
	}
	if err := store.Duplicate("Copy", "Copy 2"); err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	names, err := store.Names()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"Copy", "Copy 2"}) {
		t.Fatalf("unexpected names %v", names)
	}
	if err := store.Duplicate("Nope", "X"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	store, dir := openStore(t)
	if _, err := store.Load("Ghost"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := store.Load("Broken")
	var decodeErr *settings.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Name != "Broken" {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if store.Active() != settings.DefaultName {
		t.Fatalf("failed load must not change active, got %q", store.Active())
	}
}

func TestOpenFallsBackWhenActiveMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configurations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".active"), []byte("Gone\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := settings.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if store.Active() != settings.DefaultName {
		t.Fatalf("expected default fallback, got %q", store.Active())
	}
}

func TestOpenFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := settings.Open(filepath.Join(file, "configurations"), nil); !errors.Is(err, settings.ErrCreateDirectory) {
		t.Fatalf("expected ErrCreateDirectory, got %v", err)
	}
}

func TestUnsavedChangesIgnoresKeysMissingOnDisk(t *testing.T) {
	store, dir := openStore(t)
	// Written before swatch settings existed.
	legacy := `{"version": 2, "export_format": "csv", "image_format": "png", "naming_mode": "projectTimecode"}`
	if err := os.WriteFile(filepath.Join(dir, "Legacy.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("Legacy"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.Update(func(s *settings.Snapshot) { s.Swatch.Enabled = true })
	changed, err := store.HasUnsavedChanges()
	if err != nil || changed {
		t.Fatalf("fields absent on disk must not count as changes: %v, %v", changed, err)
	}

	store.Update(func(s *settings.Snapshot) { s.ImageFormat = "jpg" })
	changed, err = store.HasUnsavedChanges()
	if err != nil || !changed {
		t.Fatalf("expected change on a stored field: %v, %v", changed, err)
	}
}

func TestMigrationFromV1(t *testing.T) {
	store, dir := openStore(t)
	v1 := `{"naming_mode": "name", "upload_destination": "Review DB", "upload_platform": "notion", "image_format": "jpg"}`
	if err := os.WriteFile(filepath.Join(dir, "Old.json"), []byte(v1), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := store.Read("Old")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if snap.Version != settings.CurrentVersion {
		t.Fatalf("expected version %d, got %d", settings.CurrentVersion, snap.Version)
	}
	if snap.IDNamingMode != "name" {
		t.Fatalf("expected migrated naming mode, got %q", snap.IDNamingMode)
	}
	if snap.Profile.UploadProfile != "Review DB" || snap.Profile.Platform != "notion" {
		t.Fatalf("expected migrated profile, got %+v", snap.Profile)
	}
}

func TestMigrationRejectsFutureVersion(t *testing.T) {
	store, dir := openStore(t)
	if err := os.WriteFile(filepath.Join(dir, "Future.json"), []byte(`{"version": 99}`), 0o644); err != nil {
		t.Fatal(err)
	}
	var decodeErr *settings.DecodeError
	if _, err := store.Read("Future"); !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestAutoSavePersistsSettledEdits(t *testing.T) {
	store, _ := openStore(t)
	if err := store.Save("Live", false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.AutoSave(ctx, 20*time.Millisecond)
		close(done)
	}()

	store.Update(func(s *settings.Snapshot) { s.ImageWidth = 640 })
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := store.Read("Live")
		if err == nil && snap.ImageWidth == 640 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave did not persist the edit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.Update(func(s *settings.Snapshot) { s.ImageWidth = 800 })
	cancel()
	<-done
	snap, err := store.Read("Live")
	if err != nil || snap.ImageWidth != 800 {
		t.Fatalf("expected pending edit flushed on shutdown, got %d, %v", snap.ImageWidth, err)
	}
}

func TestAutoSaveSkipsDefault(t *testing.T) {
	store, dir := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	store.Update(func(s *settings.Snapshot) { s.ImageWidth = 320 })
	cancel()
	store.AutoSave(ctx, time.Millisecond)

	names, err := store.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("default configuration must never be written, found %v in %s", names, dir)
	}
}

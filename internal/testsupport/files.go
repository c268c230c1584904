package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"markerflow/internal/manifest"
)

// WriteExecutable writes a shell script with the executable bit set.
func WriteExecutable(t testing.TB, path, script string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteExtraction lays out an extracted folder at root/rel holding a
// manifest and its extract record, and returns the record path. The source
// project is named after the folder.
func WriteExtraction(t testing.TB, root, rel string, platform manifest.Platform, created time.Time) string {
	t.Helper()
	folder := filepath.Join(root, rel)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", folder, err)
	}
	manifestPath := filepath.Join(folder, "markers.csv")
	if err := os.WriteFile(manifestPath, []byte("name\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	info := manifest.New(filepath.Join("/projects", filepath.Base(rel)+".fcpxml"), manifestPath, platform)
	info.CreatedAt = created
	path, err := manifest.Write(folder, info)
	if err != nil {
		t.Fatalf("manifest.Write: %v", err)
	}
	return path
}

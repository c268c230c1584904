// Package testsupport builds throwaway configurations and on-disk fixtures
// for package and CLI tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"markerflow/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose directories live under a fresh temp
// directory. The export directory exists; the uploader executables do not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ExportDir = filepath.Join(base, "exports")
	cfgVal.Paths.ConfigDir = filepath.Join(base, "config")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Tools.Extractor = filepath.Join(base, "bin", "markers-extractor")
	cfgVal.Tools.NotionUploader = filepath.Join(base, "bin", "notion-upload")
	cfgVal.Tools.AirtableUploader = filepath.Join(base, "bin", "airtable-upload")
	cfgVal.Logging.Level = "error"

	if err := os.MkdirAll(cfgVal.Paths.ExportDir, 0o755); err != nil {
		t.Fatalf("mkdir export dir: %v", err)
	}

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithExtractorScript installs script as the extractor executable.
func WithExtractorScript(script string) ConfigOption {
	return func(b *configBuilder) {
		WriteExecutable(b.t, b.cfg.Tools.Extractor, script)
	}
}

// WithUploaderScript installs script as both uploader executables.
func WithUploaderScript(script string) ConfigOption {
	return func(b *configBuilder) {
		WriteExecutable(b.t, b.cfg.Tools.NotionUploader, script)
		WriteExecutable(b.t, b.cfg.Tools.AirtableUploader, script)
	}
}

// BaseDir returns the temp directory backing cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ExportDir)
}

// WriteConfigFile encodes cfg as TOML next to its directories and returns
// the file path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

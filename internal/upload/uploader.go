package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"markerflow/internal/config"
	"markerflow/internal/logging"
	"markerflow/internal/manifest"
	"markerflow/internal/profiles"
	"markerflow/internal/progress"
	"markerflow/internal/shell"
)

var percentPattern = regexp.MustCompile(`([0-9]+)%`)

// Option configures an Uploader.
type Option func(*Uploader)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec shell.Executor) Option {
	return func(u *Uploader) {
		if exec != nil {
			u.exec = exec
		}
	}
}

// WithProgress routes percent updates into agg.
func WithProgress(agg *progress.Aggregator) Option {
	return func(u *Uploader) {
		u.progress = agg
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithClock overrides the time source used for log file names.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		if now != nil {
			u.now = now
		}
	}
}

// Uploader runs the platform uploader executables.
type Uploader struct {
	notionBinary   string
	airtableBinary string
	logDir         string
	exec           shell.Executor
	progress       *progress.Aggregator
	logger         *slog.Logger
	now            func() time.Time
}

// New constructs an Uploader using the configured tool names. Uploader logs
// are written by the tools themselves below logDir.
func New(tools config.Tools, logDir string, opts ...Option) *Uploader {
	u := &Uploader{
		notionBinary:   strings.TrimSpace(tools.NotionUploader),
		airtableBinary: strings.TrimSpace(tools.AirtableUploader),
		logDir:         logDir,
		exec:           shell.NewRunner(),
		logger:         logging.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = logging.NewComponentLogger(u.logger, "upload")
	return u
}

// Progress returns the aggregator receiving upload progress, if any.
func (u *Uploader) Progress() *progress.Aggregator {
	return u.progress
}

type unitKey struct{}

// WithUnit makes Upload report progress under ref instead of the manifest
// path, so callers can register units before manifests exist.
func WithUnit(ctx context.Context, ref string) context.Context {
	if strings.TrimSpace(ref) == "" {
		return ctx
	}
	return context.WithValue(ctx, unitKey{}, ref)
}

func unitRef(ctx context.Context, manifestPath string) string {
	if ref, ok := ctx.Value(unitKey{}).(string); ok {
		return ref
	}
	return manifestPath
}

// Upload sends manifestPath to the destination described by profile. The
// progress unit is the ref set by WithUnit, or the manifest path.
func (u *Uploader) Upload(ctx context.Context, manifestPath string, profile profiles.Profile) error {
	logger := logging.WithContext(ctx, u.logger).With(
		logging.String(logging.FieldPlatform, string(profile.Platform)),
		logging.String("profile", profile.Name),
	)

	info, err := os.Stat(manifestPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingManifest, manifestPath)
	}

	var (
		cmd     shell.Command
		cleanup = func() {}
	)
	switch profile.Platform {
	case manifest.PlatformNotion:
		cmd, err = u.notionCommand(manifestPath, profile.Notion)
	case manifest.PlatformAirtable:
		cmd, cleanup, err = u.airtableCommand(manifestPath, profile.Airtable)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupported, profile.Platform)
	}
	if err != nil {
		return err
	}
	defer cleanup()

	if strings.TrimSpace(cmd.Executable) == "" {
		return fmt.Errorf("%w: no %s uploader configured", ErrMissingExecutable, profile.Platform)
	}

	unit := unitRef(ctx, manifestPath)
	if u.progress != nil {
		u.progress.AddUnit(unit)
	}

	logger.Info("upload started", logging.String("manifest", manifestPath))
	sampler := logging.NewProgressSampler(10)
	runErr := u.exec.Run(ctx, cmd, func(line string) {
		percent, ok := ParsePercent(line)
		if !ok {
			return
		}
		if u.progress != nil {
			u.progress.Update(unit, percent)
		}
		if sampler.ShouldLog(float64(percent), unit) {
			logger.Debug("upload progress", logging.Int("percent", percent))
		}
	})
	if runErr != nil {
		mapped := classify(profile.Platform, runErr, ctx.Err() != nil)
		if errors.Is(mapped, ErrCancelled) {
			logger.Info("upload cancelled", logging.String("manifest", manifestPath))
		} else {
			logging.ErrorWithContext(logger, "upload failed", "upload_failed",
				logging.String("manifest", manifestPath),
				logging.Error(runErr),
				logging.String(logging.FieldErrorHint, "check the uploader log in the uploads log directory"),
			)
		}
		return mapped
	}

	if u.progress != nil {
		u.progress.Finish(unit)
	}
	logger.Info("upload completed", logging.String("manifest", manifestPath))
	return nil
}

func (u *Uploader) notionCommand(manifestPath string, cfg *profiles.Notion) (shell.Command, error) {
	if cfg == nil || strings.TrimSpace(cfg.WorkspaceName) == "" {
		return shell.Command{}, fmt.Errorf("%w: notion workspace name is empty", ErrMissingCredentials)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return shell.Command{}, fmt.Errorf("%w: notion token is empty", ErrMissingCredentials)
	}
	logPath, err := u.logPath(manifest.PlatformNotion)
	if err != nil {
		return shell.Command{}, err
	}

	opts := []shell.Option{
		shell.Value("--workspace-name", cfg.WorkspaceName),
		shell.Secret("--token", cfg.Token),
	}
	if url := strings.TrimSpace(cfg.DatabaseURL); url != "" {
		opts = append(opts, shell.Value("--database-url", url))
	}
	if r := cfg.RenameKeyColumn; r != nil && strings.TrimSpace(r.From) != "" && strings.TrimSpace(r.To) != "" {
		opts = append(opts, shell.Values("--rename-key-column", r.From, r.To))
	}
	for _, column := range cfg.MergeOnlyColumns {
		if strings.TrimSpace(column) != "" {
			opts = append(opts, shell.Value("--merge-only-column", column))
		}
	}
	opts = append(opts, shell.Value("--log", logPath), shell.Path(manifestPath))
	return shell.Command{Executable: u.notionBinary, Options: opts}, nil
}

func (u *Uploader) airtableCommand(manifestPath string, cfg *profiles.Airtable) (shell.Command, func(), error) {
	noop := func() {}
	switch {
	case cfg == nil || strings.TrimSpace(cfg.Token) == "":
		return shell.Command{}, noop, fmt.Errorf("%w: airtable token is empty", ErrMissingCredentials)
	case strings.TrimSpace(cfg.BaseID) == "" || strings.TrimSpace(cfg.TableID) == "":
		return shell.Command{}, noop, fmt.Errorf("%w: airtable base or table id is empty", ErrMissingCredentials)
	case strings.TrimSpace(cfg.BucketCredentials) == "":
		return shell.Command{}, noop, fmt.Errorf("%w: attachment bucket credentials are empty", ErrMissingCredentials)
	}
	logPath, err := u.logPath(manifest.PlatformAirtable)
	if err != nil {
		return shell.Command{}, noop, err
	}
	credFile, cleanup, err := writeCredentialFile(cfg.BucketCredentials)
	if err != nil {
		return shell.Command{}, noop, err
	}

	opts := []shell.Option{
		shell.Secret("--api-key", cfg.Token),
		shell.Value("--base-id", cfg.BaseID),
		shell.Value("--table-id", cfg.TableID),
		shell.Value("--bucket-credentials", credFile),
		shell.Value("--log", logPath),
		shell.Path(manifestPath),
	}
	return shell.Command{Executable: u.airtableBinary, Options: opts}, cleanup, nil
}

func (u *Uploader) logPath(platform manifest.Platform) (string, error) {
	if err := os.MkdirAll(u.logDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload log directory: %w", err)
	}
	stamp := u.now().Format("20060102-150405")
	name := fmt.Sprintf("%s-%s-%s.log", platform, stamp, uuid.NewString()[:8])
	return filepath.Join(u.logDir, name), nil
}

// writeCredentialFile stores the attachment bucket key in a private
// temporary file for the duration of one upload.
func writeCredentialFile(contents string) (string, func(), error) {
	file, err := os.CreateTemp("", "markerflow-bucket-*.json")
	if err != nil {
		return "", func() {}, fmt.Errorf("create credential file: %w", err)
	}
	name := file.Name()
	cleanup := func() { _ = os.Remove(name) }
	if err := file.Chmod(0o600); err != nil {
		_ = file.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := file.WriteString(contents); err != nil {
		_ = file.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write credential file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close credential file: %w", err)
	}
	return name, cleanup, nil
}

// ParsePercent extracts the first "NN%" token from line.
func ParsePercent(line string) (int, bool) {
	match := percentPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return 0, false
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return value, true
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"markerflow/internal/extract"
	"markerflow/internal/logging"
	"markerflow/internal/manifest"
	"markerflow/internal/notifications"
	"markerflow/internal/preflight"
	"markerflow/internal/profiles"
	"markerflow/internal/progress"
	"markerflow/internal/settings"
	"markerflow/internal/swatch"
	"markerflow/internal/upload"
)

var (
	ErrAlreadyRunning     = errors.New("an extraction is already in progress")
	ErrInvalidDestination = errors.New("invalid export destination")
	ErrNoFiles            = errors.New("no files to extract")
)

// Uploader sends one manifest to an upload destination.
type Uploader interface {
	Upload(ctx context.Context, manifestPath string, profile profiles.Profile) error
}

// ProfileSource resolves upload destination profiles by name.
type ProfileSource interface {
	Get(name string) (profiles.Profile, error)
}

// SettingsSource supplies the export settings of a run.
type SettingsSource interface {
	Current() settings.Snapshot
}

// Recorder persists completed extractions so they can be uploaded later.
type Recorder interface {
	RecordExtraction(ctx context.Context, sentinelPath string, info manifest.Info) error
}

// Indicator mirrors overall extraction progress outside the process, such as
// a terminal progress bar.
type Indicator interface {
	SetProgress(percent int)
	Clear()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAggregators replaces the extraction and upload aggregators. The upload
// aggregator should be the one the Uploader reports into.
func WithAggregators(extraction, upload *progress.Aggregator) Option {
	return func(o *Orchestrator) {
		if extraction != nil {
			o.extraction = extraction
		}
		if upload != nil {
			o.upload = upload
		}
	}
}

func WithUploader(u Uploader) Option {
	return func(o *Orchestrator) { o.uploader = u }
}

func WithProfiles(p ProfileSource) Option {
	return func(o *Orchestrator) { o.profiles = p }
}

func WithSwatchRenderer(r swatch.Renderer) Option {
	return func(o *Orchestrator) { o.swatches = r }
}

func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithIndicator(i Indicator) Option {
	return func(o *Orchestrator) { o.indicator = i }
}

// WithDefaultExportDir sets the destination used when the active
// configuration does not name one.
func WithDefaultExportDir(dir string) Option {
	return func(o *Orchestrator) { o.defaultExportDir = dir }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator runs extraction followed by upload for a batch of files.
type Orchestrator struct {
	extractor        extract.Extractor
	settings         SettingsSource
	uploader         Uploader
	profiles         ProfileSource
	swatches         swatch.Renderer
	notifier         notifications.Service
	recorder         Recorder
	indicator        Indicator
	defaultExportDir string
	logger           *slog.Logger

	extraction *progress.Aggregator
	upload     *progress.Aggregator

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	events  eventHub
}

// New constructs an Orchestrator around an extraction engine and a source of
// export settings.
func New(extractor extract.Extractor, source SettingsSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		settings:  source,
		notifier:  notifications.NewService(nil),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	if o.extraction == nil {
		o.extraction = progress.New("Extraction", o.logger)
	}
	if o.upload == nil {
		o.upload = progress.New("Upload", o.logger)
	}
	return o
}

// ExtractionProgress returns the aggregator tracking extraction units.
func (o *Orchestrator) ExtractionProgress() *progress.Aggregator { return o.extraction }

// UploadProgress returns the aggregator tracking upload units.
func (o *Orchestrator) UploadProgress() *progress.Aggregator { return o.upload }

// InProgress reports whether a run is active.
func (o *Orchestrator) InProgress() bool { return o.running.Load() }

// Events subscribes to run milestones. Call the returned function to
// unsubscribe.
func (o *Orchestrator) Events() (<-chan Event, func()) {
	return o.events.subscribe()
}

// Cancel stops the active run, if any. Files not yet started are reported as
// cancelled and running subprocesses are terminated.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type outcomeKind int

const (
	outcomeExtracted outcomeKind = iota
	outcomeUploaded
	outcomeFailed
)

type outcome struct {
	kind    outcomeKind
	file    string
	folder  string
	failure Failure
}

// runPlan is fixed for the duration of one run.
type runPlan struct {
	id        string
	snapshot  settings.Snapshot
	exportDir string
	profile   *profiles.Profile
	// profileErr is reported per file as an upload failure.
	profileErr error
}

// PerformExtraction extracts every file and uploads each manifest to the
// configured destination. Per-file failures are collected in the report and
// never stop sibling files; the returned error is reserved for failures that
// prevent the run from starting.
func (o *Orchestrator) PerformExtraction(ctx context.Context, files []string) (*Report, error) {
	files = dedupe(files)
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	plan := runPlan{id: uuid.NewString(), snapshot: o.settings.Current()}
	ctx = logging.WithRunID(ctx, plan.id)
	logger := logging.WithContext(ctx, o.logger)

	plan.exportDir = exportDir(plan.snapshot, o.defaultExportDir)
	if check := preflight.CheckDirectoryAccess("Export destination", plan.exportDir); !check.Passed {
		o.extraction.Reset()
		o.upload.Reset()
		o.extraction.Fail(ErrInvalidDestination.Error(), check.Detail)
		logging.ErrorWithContext(logger, "export destination unusable", "extraction_invalid_destination",
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, "choose an existing, writable export folder"),
		)
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, check.Detail)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
		cancel()
		o.upload.ClearUnits()
		if o.indicator != nil {
			o.indicator.Clear()
		}
	}()

	o.extraction.Reset()
	o.upload.Reset()
	o.extraction.SetUnits(files)
	stopIndicator := o.mirrorIndicator()
	defer stopIndicator()

	plan.profile, plan.profileErr = o.resolveProfile(plan.snapshot)
	if plan.uploads() {
		o.upload.SetUnits(files)
	}

	report := &Report{
		RunID:         plan.id,
		Files:         files,
		OutputFolders: make(map[string]string, len(files)),
		StartedAt:     time.Now(),
	}
	logger.Info("extraction started",
		logging.Int("files", len(files)),
		logging.String("export_dir", plan.exportDir),
		logging.Bool("upload", plan.profile != nil),
	)
	o.events.publish(Event{Type: EventRunStarted, RunID: plan.id})

	outcomes := make(chan outcome, len(files))
	var wg sync.WaitGroup
	for _, file := range files {
		wg.Go(func() {
			o.processFile(logging.WithFile(ctx, file), plan, file, outcomes)
		})
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		evt := Event{RunID: plan.id, File: out.file, Folder: out.folder}
		switch out.kind {
		case outcomeExtracted:
			report.OutputFolders[out.file] = out.folder
			evt.Type = EventFileExtracted
		case outcomeUploaded:
			evt.Type = EventFileUploaded
		case outcomeFailed:
			failure := out.failure
			report.Failures = append(report.Failures, failure)
			evt.Type = EventFileFailed
			evt.Failure = &failure
		}
		o.events.publish(evt)
	}

	report.FinishedAt = time.Now()
	o.finalize(ctx, logger, plan, report)
	return report, nil
}

func (o *Orchestrator) processFile(ctx context.Context, plan runPlan, file string, outcomes chan<- outcome) {
	logger := logging.WithContext(ctx, o.logger)
	fail := func(kind FailureKind, err error, cancelled bool) {
		f := Failure{File: file, Kind: kind, Cancelled: cancelled}
		if err != nil {
			f.Message = err.Error()
		}
		if cancelled {
			logger.Info("file cancelled", logging.String("stage", string(kind)))
		} else {
			logging.WarnWithContext(logger, "file failed", "extraction_file_failed",
				logging.String("kind", string(kind)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file skipped; other files continue"),
			)
		}
		outcomes <- outcome{kind: outcomeFailed, file: file, failure: f}
	}
	// Files that never reach the upload step still count towards the upload
	// total; failures surface through Fail when the run is finalized.
	if plan.uploads() {
		defer o.upload.Finish(file)
	}

	if ctx.Err() != nil {
		fail(KindExtract, nil, true)
		return
	}

	sampler := logging.NewProgressSampler(10)
	result, err := o.extractor.Extract(ctx, extractSettings(plan.snapshot, file, plan.exportDir), func(fraction float64) {
		percent := percentOf(fraction)
		o.extraction.Update(file, percent)
		if sampler.ShouldLog(float64(percent), "") {
			logger.Debug("extraction progress", logging.Int("percent", percent))
		}
	})
	if err != nil {
		fail(KindExtract, err, ctx.Err() != nil)
		return
	}

	info := manifest.New(file, result.ManifestPath, plan.platform())
	sentinel, err := manifest.Write(result.OutputFolder, info)
	if err != nil {
		fail(KindExtract, fmt.Errorf("write extract record: %w", err), false)
		return
	}
	// The unit is complete once extraction succeeds, whatever happens to the upload.
	defer o.extraction.Finish(file)
	outcomes <- outcome{kind: outcomeExtracted, file: file, folder: result.OutputFolder}
	logger.Info("extraction finished",
		logging.String("output_folder", result.OutputFolder),
		logging.String("manifest", result.ManifestPath),
	)

	if o.recorder != nil {
		if err := o.recorder.RecordExtraction(ctx, sentinel, info); err != nil {
			logging.WarnWithContext(logger, "extract record not stored", "queue_record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "queue list will not show this extraction"),
			)
		}
	}

	if sw := swatchSettings(plan.snapshot); sw.Enabled && o.swatches != nil {
		summary := o.swatches.Render(ctx, result, sw, nil)
		logger.Info("swatches rendered",
			logging.Int("rendered", summary.Rendered),
			logging.Int("failed", summary.Failed),
		)
	}

	if ctx.Err() != nil {
		fail(KindUpload, nil, true)
		return
	}
	if plan.profile == nil && plan.profileErr == nil {
		return
	}
	if plan.profileErr != nil {
		fail(KindUpload, plan.profileErr, false)
		return
	}
	if o.uploader == nil {
		fail(KindUpload, upload.ErrMissingExecutable, false)
		return
	}
	if err := o.uploader.Upload(upload.WithUnit(ctx, file), result.ManifestPath, *plan.profile); err != nil {
		fail(KindUpload, err, errors.Is(err, upload.ErrCancelled))
		return
	}
	outcomes <- outcome{kind: outcomeUploaded, file: file, folder: result.OutputFolder}
}

func (p runPlan) uploads() bool {
	return p.profile != nil || p.profileErr != nil
}

func (p runPlan) platform() manifest.Platform {
	if p.profile != nil {
		return p.profile.Platform
	}
	if p.snapshot.Profile.Platform != "" {
		return p.snapshot.Profile.Platform
	}
	return manifest.PlatformNone
}

// resolveProfile returns nil, nil when no upload destination is configured.
func (o *Orchestrator) resolveProfile(snap settings.Snapshot) (*profiles.Profile, error) {
	name := strings.TrimSpace(snap.Profile.UploadProfile)
	if name == "" {
		return nil, nil
	}
	if o.profiles == nil {
		return nil, fmt.Errorf("upload profile %q: %w", name, profiles.ErrNotFound)
	}
	p, err := o.profiles.Get(name)
	if err != nil {
		return nil, fmt.Errorf("upload profile %q: %w", name, err)
	}
	return &p, nil
}

func (o *Orchestrator) finalize(ctx context.Context, logger *slog.Logger, plan runPlan, report *Report) {
	payloadCtx := context.WithoutCancel(ctx)

	if report.Succeeded() {
		report.Result = ResultSuccess
		folder := report.OutputFolder()
		if folder == "" {
			folder = plan.exportDir
		}
		logger.Info("extraction run succeeded",
			logging.Int("files", len(report.Files)),
			logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
		o.notify(payloadCtx, logger, notifications.EventExtractionCompleted, notifications.Payload{
			"files":  len(report.Files),
			"folder": folder,
		})
		o.events.publish(Event{Type: EventRunFinished, RunID: plan.id, Report: report})
		return
	}

	report.Result = ResultPartialFailure
	if len(report.Failures) >= len(report.Files) {
		report.Result = ResultFailed
	}
	summary := report.Summary()
	if failed := report.FailuresOf(KindExtract); len(failed) > 0 {
		o.extraction.Fail(summary, detailLines(failed))
	}
	if failed := report.FailuresOf(KindUpload); len(failed) > 0 {
		o.upload.Fail(summary, detailLines(failed))
	}
	logging.ErrorWithContext(logger, "extraction run finished with failures", "extraction_run_failed",
		logging.String("result", string(report.Result)),
		logging.Int("failed", len(report.Failures)),
		logging.Int("files", len(report.Files)),
		logging.String(logging.FieldErrorHint, "see the per-file failure list"),
	)
	o.notify(payloadCtx, logger, notifications.EventExtractionFailed, notifications.Payload{
		"failed": len(report.Failures),
		"total":  len(report.Files),
		"detail": report.Detail(),
	})
	o.events.publish(Event{Type: EventRunFinished, RunID: plan.id, Report: report})
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no push notification for this run"),
			logging.String(logging.FieldErrorHint, "run markerflow test-notify"),
		)
	}
}

// mirrorIndicator forwards extraction percentages to the indicator from a
// single goroutine.
func (o *Orchestrator) mirrorIndicator() func() {
	if o.indicator == nil {
		return func() {}
	}
	states, unsubscribe := o.extraction.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for state := range states {
			o.indicator.SetProgress(state.Percent)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

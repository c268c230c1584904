package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"markerflow/internal/config"
	"markerflow/internal/extract"
	"markerflow/internal/manifest"
	"markerflow/internal/notifications"
	"markerflow/internal/pipeline"
	"markerflow/internal/profiles"
	"markerflow/internal/progress"
	"markerflow/internal/settings"
	"markerflow/internal/shell"
	"markerflow/internal/swatch"
	"markerflow/internal/upload"
)

type staticSettings struct {
	snap settings.Snapshot
}

func (s staticSettings) Current() settings.Snapshot { return s.snap.Clone() }

// stubExtractor writes a manifest into <output>/<file base> unless failFor
// names the file.
type stubExtractor struct {
	calls   atomic.Int32
	failFor map[string]error
	block   bool
	started chan string
}

func (s *stubExtractor) Extract(ctx context.Context, set extract.Settings, onProgress func(float64)) (extract.Result, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- set.Source
	}
	if s.block {
		<-ctx.Done()
		return extract.Result{}, ctx.Err()
	}
	if err := s.failFor[filepath.Base(set.Source)]; err != nil {
		return extract.Result{}, err
	}
	for _, f := range []float64{0.25, 0.5, 0.999} {
		onProgress(f)
	}
	folder := filepath.Join(set.OutputDir, strings.TrimSuffix(filepath.Base(set.Source), filepath.Ext(set.Source)))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return extract.Result{}, err
	}
	manifestPath := filepath.Join(folder, "markers.csv")
	if err := os.WriteFile(manifestPath, []byte("name\n"), 0o644); err != nil {
		return extract.Result{}, err
	}
	onProgress(1)
	return extract.Result{OutputFolder: folder, ManifestPath: manifestPath}, nil
}

type recordingUploader struct {
	mu        sync.Mutex
	manifests []string
	err       error
}

func (u *recordingUploader) Upload(_ context.Context, manifestPath string, _ profiles.Profile) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.manifests = append(u.manifests, manifestPath)
	return u.err
}

type profileMap map[string]profiles.Profile

func (m profileMap) Get(name string) (profiles.Profile, error) {
	p, ok := m[name]
	if !ok {
		return profiles.Profile{}, profiles.ErrNotFound
	}
	return p, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type countingRenderer struct {
	calls atomic.Int32
}

func (r *countingRenderer) Render(context.Context, extract.Result, swatch.Settings, func(float64)) swatch.Summary {
	r.calls.Add(1)
	return swatch.Summary{}
}

type recorder struct {
	mu        sync.Mutex
	sentinels []string
}

func (r *recorder) RecordExtraction(_ context.Context, sentinel string, _ manifest.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentinels = append(r.sentinels, sentinel)
	return nil
}

type noExec struct {
	calls atomic.Int32
}

func (e *noExec) Run(context.Context, shell.Command, func(string)) error {
	e.calls.Add(1)
	return nil
}

func newSnapshot(exportDir string) settings.Snapshot {
	snap := settings.Default()
	snap.ExportFolder = exportDir
	return snap
}

func inputFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("<fcpxml/>"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		files = append(files, path)
	}
	return files
}

func TestPerformExtractionWithoutUploadDestination(t *testing.T) {
	exportDir := t.TempDir()
	extractor := &stubExtractor{}
	uploader := &recordingUploader{}
	orch := pipeline.New(extractor, staticSettings{newSnapshot(exportDir)}, pipeline.WithUploader(uploader))

	files := inputFiles(t, "a.fcpxml", "b.fcpxml", "c.fcpxml")
	report, err := orch.PerformExtraction(context.Background(), files)
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if report.Result != pipeline.ResultSuccess || len(report.Failures) != 0 {
		t.Fatalf("result = %s failures = %v", report.Result, report.Failures)
	}
	state := orch.ExtractionProgress().State()
	if state.Total != 3 || len(state.Units) != 3 {
		t.Fatalf("units = %d, want 3", state.Total)
	}
	for _, u := range state.Units {
		if !u.Finished || u.Percent != 100 {
			t.Fatalf("unit %+v not finished", u)
		}
	}
	if state.Status != progress.StatusDone {
		t.Fatalf("status = %s, want done", state.Status)
	}
	if len(uploader.manifests) != 0 {
		t.Fatalf("uploads = %d, want 0", len(uploader.manifests))
	}
	if orch.InProgress() {
		t.Fatal("run still flagged in progress")
	}
}

func TestSingleFileReportsOutputFolder(t *testing.T) {
	exportDir := t.TempDir()
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot(exportDir)})

	files := inputFiles(t, "promo.fcpxml")
	report, err := orch.PerformExtraction(context.Background(), files)
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	want := filepath.Join(exportDir, "promo")
	if got := report.OutputFolder(); got != want {
		t.Fatalf("output folder = %q, want %q", got, want)
	}
	if _, err := manifest.Read(manifest.Path(want)); err != nil {
		t.Fatalf("extract record: %v", err)
	}
}

func TestExtractionFailureIsolatedPerFile(t *testing.T) {
	exportDir := t.TempDir()
	snap := newSnapshot(exportDir)
	snap.Profile = settings.ExportProfile{UploadProfile: "team", Platform: manifest.PlatformNotion}
	extractor := &stubExtractor{failFor: map[string]error{"a.fcpxml": errors.New("unreadable project")}}
	uploader := &recordingUploader{}
	orch := pipeline.New(extractor, staticSettings{snap},
		pipeline.WithUploader(uploader),
		pipeline.WithProfiles(profileMap{"team": {Name: "team", Platform: manifest.PlatformNotion}}),
	)

	files := inputFiles(t, "a.fcpxml", "b.fcpxml")
	report, err := orch.PerformExtraction(context.Background(), files)
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", report.Failures)
	}
	f := report.Failures[0]
	if f.File != files[0] || f.Kind != pipeline.KindExtract {
		t.Fatalf("failure = %+v", f)
	}
	if report.Result != pipeline.ResultPartialFailure {
		t.Fatalf("result = %s", report.Result)
	}
	if len(uploader.manifests) != 1 || !strings.Contains(uploader.manifests[0], filepath.Join(exportDir, "b")) {
		t.Fatalf("uploads = %v, want b only", uploader.manifests)
	}
	if state := orch.ExtractionProgress().State(); state.Status != progress.StatusFailed || !strings.Contains(state.Alert, "a.fcpxml: unreadable project") {
		t.Fatalf("extraction state = %+v", state)
	}
	if state := orch.UploadProgress().State(); state.Status == progress.StatusFailed {
		t.Fatalf("upload aggregator failed without upload failures: %+v", state)
	}
}

func TestNotionProfileWithoutTokenFailsUpload(t *testing.T) {
	exportDir := t.TempDir()
	snap := newSnapshot(exportDir)
	snap.Profile = settings.ExportProfile{UploadProfile: "team", Platform: manifest.PlatformNotion}

	exec := &noExec{}
	uploadAgg := progress.New("Upload", nil)
	uploader := upload.New(config.Tools{NotionUploader: "notion-uploader"}, t.TempDir(),
		upload.WithExecutor(exec), upload.WithProgress(uploadAgg))
	orch := pipeline.New(&stubExtractor{}, staticSettings{snap},
		pipeline.WithAggregators(nil, uploadAgg),
		pipeline.WithUploader(uploader),
		pipeline.WithProfiles(profileMap{"team": {
			Name:     "team",
			Platform: manifest.PlatformNotion,
			Notion:   &profiles.Notion{WorkspaceName: "Studio"},
		}}),
	)

	files := inputFiles(t, "promo.fcpxml")
	report, err := orch.PerformExtraction(context.Background(), files)
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %v", report.Failures)
	}
	f := report.Failures[0]
	if f.Kind != pipeline.KindUpload || !strings.Contains(f.Message, "token") {
		t.Fatalf("failure = %+v, want upload failure mentioning token", f)
	}
	if exec.calls.Load() != 0 {
		t.Fatal("uploader subprocess ran without credentials")
	}
	if _, err := os.Stat(filepath.Join(exportDir, "promo", "markers.csv")); err != nil {
		t.Fatalf("manifest removed: %v", err)
	}
	if state := uploadAgg.State(); state.Status != progress.StatusFailed {
		t.Fatalf("upload state = %+v, want failed", state)
	}
	if state := orch.ExtractionProgress().State(); state.Status != progress.StatusDone {
		t.Fatalf("extraction state = %+v, want done", state)
	}
	if !strings.HasPrefix(report.Summary(), "Upload failed: ") {
		t.Fatalf("summary = %q", report.Summary())
	}
}

func TestInvalidDestinationSpawnsNothing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	extractor := &stubExtractor{}
	orch := pipeline.New(extractor, staticSettings{newSnapshot(missing)})

	_, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml", "b.fcpxml", "c.fcpxml"))
	if !errors.Is(err, pipeline.ErrInvalidDestination) {
		t.Fatalf("err = %v, want ErrInvalidDestination", err)
	}
	if extractor.calls.Load() != 0 {
		t.Fatalf("extractor called %d times", extractor.calls.Load())
	}
	state := orch.ExtractionProgress().State()
	if state.Total != 0 || state.Status != progress.StatusFailed || !strings.Contains(state.Message, "invalid export destination") {
		t.Fatalf("state = %+v", state)
	}
	if orch.InProgress() {
		t.Fatal("run still flagged in progress")
	}
}

func TestFallsBackToDefaultExportDir(t *testing.T) {
	exportDir := t.TempDir()
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot("")}, pipeline.WithDefaultExportDir(exportDir))

	report, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml"))
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if !strings.HasPrefix(report.OutputFolder(), exportDir) {
		t.Fatalf("output folder %q outside %q", report.OutputFolder(), exportDir)
	}
}

func TestNoFiles(t *testing.T) {
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot(t.TempDir())})
	if _, err := orch.PerformExtraction(context.Background(), []string{"", " "}); !errors.Is(err, pipeline.ErrNoFiles) {
		t.Fatalf("err = %v, want ErrNoFiles", err)
	}
}

func TestCancelledContextSkipsExtraction(t *testing.T) {
	extractor := &stubExtractor{}
	orch := pipeline.New(extractor, staticSettings{newSnapshot(t.TempDir())})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := orch.PerformExtraction(ctx, inputFiles(t, "a.fcpxml", "b.fcpxml"))
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if extractor.calls.Load() != 0 {
		t.Fatalf("extractor called %d times after cancellation", extractor.calls.Load())
	}
	if len(report.Failures) != 2 || report.Result != pipeline.ResultFailed {
		t.Fatalf("report = %+v", report)
	}
	for _, f := range report.Failures {
		if !f.Cancelled || f.Kind != pipeline.KindExtract || f.Reason() != "cancelled by user" {
			t.Fatalf("failure = %+v", f)
		}
	}
}

func TestCancelStopsRunningExtraction(t *testing.T) {
	files := inputFiles(t, "a.fcpxml", "b.fcpxml")
	extractor := &stubExtractor{block: true, started: make(chan string, len(files))}
	orch := pipeline.New(extractor, staticSettings{newSnapshot(t.TempDir())})

	type result struct {
		report *pipeline.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := orch.PerformExtraction(context.Background(), files)
		done <- result{report, err}
	}()
	for range files {
		select {
		case <-extractor.started:
		case <-time.After(5 * time.Second):
			t.Fatal("extraction never started")
		}
	}
	if !orch.InProgress() {
		t.Fatal("InProgress = false during run")
	}

	orch.Cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("PerformExtraction did not return after Cancel")
	}
	if res.err != nil {
		t.Fatalf("PerformExtraction: %v", res.err)
	}
	for _, f := range res.report.Failures {
		if !f.Cancelled {
			t.Fatalf("failure %+v not marked cancelled", f)
		}
	}
	if len(res.report.Failures) != len(files) {
		t.Fatalf("failures = %d, want %d", len(res.report.Failures), len(files))
	}
	if orch.InProgress() {
		t.Fatal("InProgress = true after return")
	}
	if state := orch.ExtractionProgress().State(); state.Status != progress.StatusFailed {
		t.Fatalf("extraction state = %s, want failed", state.Status)
	}
}

func TestRejectsConcurrentRun(t *testing.T) {
	files := inputFiles(t, "a.fcpxml")
	extractor := &stubExtractor{block: true, started: make(chan string, 1)}
	orch := pipeline.New(extractor, staticSettings{newSnapshot(t.TempDir())})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.PerformExtraction(context.Background(), files)
	}()
	<-extractor.started

	if _, err := orch.PerformExtraction(context.Background(), files); !errors.Is(err, pipeline.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	orch.Cancel()
	<-done
}

func TestSwatchRenderingFollowsSettings(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		want    int32
	}{
		{name: "disabled", enabled: false, want: 0},
		{name: "enabled", enabled: true, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newSnapshot(t.TempDir())
			snap.Swatch.Enabled = tt.enabled
			renderer := &countingRenderer{}
			orch := pipeline.New(&stubExtractor{}, staticSettings{snap}, pipeline.WithSwatchRenderer(renderer))
			if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml", "b.fcpxml")); err != nil {
				t.Fatalf("PerformExtraction: %v", err)
			}
			if got := renderer.calls.Load(); got != tt.want {
				t.Fatalf("render calls = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecorderReceivesExtractRecords(t *testing.T) {
	exportDir := t.TempDir()
	rec := &recorder{}
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot(exportDir)}, pipeline.WithRecorder(rec))

	if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml")); err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	want := manifest.Path(filepath.Join(exportDir, "a"))
	if len(rec.sentinels) != 1 || rec.sentinels[0] != want {
		t.Fatalf("recorded = %v, want [%s]", rec.sentinels, want)
	}
}

func TestMissingUploadProfileFailsEachFile(t *testing.T) {
	snap := newSnapshot(t.TempDir())
	snap.Profile = settings.ExportProfile{UploadProfile: "gone", Platform: manifest.PlatformAirtable}
	orch := pipeline.New(&stubExtractor{}, staticSettings{snap},
		pipeline.WithUploader(&recordingUploader{}),
		pipeline.WithProfiles(profileMap{}),
	)

	report, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml", "b.fcpxml"))
	if err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if len(report.FailuresOf(pipeline.KindUpload)) != 2 {
		t.Fatalf("failures = %v", report.Failures)
	}
	if !strings.Contains(report.Failures[0].Message, `"gone"`) {
		t.Fatalf("message = %q", report.Failures[0].Message)
	}
}

func TestNotificationsFollowOutcome(t *testing.T) {
	tests := []struct {
		name    string
		failFor map[string]error
		want    notifications.Event
	}{
		{name: "success", want: notifications.EventExtractionCompleted},
		{name: "failure", failFor: map[string]error{"a.fcpxml": errors.New("boom")}, want: notifications.EventExtractionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			orch := pipeline.New(&stubExtractor{failFor: tt.failFor}, staticSettings{newSnapshot(t.TempDir())},
				pipeline.WithNotifier(notifier))
			if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml")); err != nil {
				t.Fatalf("PerformExtraction: %v", err)
			}
			if len(notifier.events) != 1 || notifier.events[0] != tt.want {
				t.Fatalf("events = %v, want [%s]", notifier.events, tt.want)
			}
		})
	}
}

func TestUploadAggregatorClearedAfterRun(t *testing.T) {
	snap := newSnapshot(t.TempDir())
	snap.Profile = settings.ExportProfile{UploadProfile: "team", Platform: manifest.PlatformNotion}
	uploadAgg := progress.New("Upload", nil)
	orch := pipeline.New(&stubExtractor{}, staticSettings{snap},
		pipeline.WithAggregators(nil, uploadAgg),
		pipeline.WithUploader(&recordingUploader{}),
		pipeline.WithProfiles(profileMap{"team": {Name: "team", Platform: manifest.PlatformNotion}}),
	)
	uploadAgg.AddUnit("stale")

	if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml")); err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	if state := uploadAgg.State(); state.Total != 0 || state.Status != progress.StatusWaiting {
		t.Fatalf("upload state = %+v, want cleared", state)
	}
}

func TestEventsStream(t *testing.T) {
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot(t.TempDir())})
	events, unsubscribe := orch.Events()
	defer unsubscribe()

	if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml")); err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	var types []pipeline.EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []pipeline.EventType{pipeline.EventRunStarted, pipeline.EventFileExtracted, pipeline.EventRunFinished}
	if strings.Join(eventNames(types), ",") != strings.Join(eventNames(want), ",") {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func eventNames(types []pipeline.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

type recordingIndicator struct {
	mu      sync.Mutex
	values  []int
	cleared bool
}

func (r *recordingIndicator) SetProgress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, p)
}

func (r *recordingIndicator) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = true
}

func TestIndicatorClearedAndMonotonic(t *testing.T) {
	ind := &recordingIndicator{}
	orch := pipeline.New(&stubExtractor{}, staticSettings{newSnapshot(t.TempDir())}, pipeline.WithIndicator(ind))
	if _, err := orch.PerformExtraction(context.Background(), inputFiles(t, "a.fcpxml", "b.fcpxml")); err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if !ind.cleared {
		t.Fatal("indicator not cleared")
	}
	for i := 1; i < len(ind.values); i++ {
		if ind.values[i] < ind.values[i-1] {
			t.Fatalf("indicator regressed: %v", ind.values)
		}
	}
}

// gatedExec reports 50% for each manifest, then blocks until the gate named
// after the manifest's folder is closed.
type gatedExec struct {
	gates map[string]chan struct{}
}

func (g *gatedExec) Run(ctx context.Context, cmd shell.Command, onLine func(string)) error {
	args := cmd.Args()
	folder := filepath.Base(filepath.Dir(args[len(args)-1]))
	onLine("50%")
	select {
	case <-g.gates[folder]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitForState(t *testing.T, agg *progress.Aggregator, ok func(progress.State) bool) progress.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if state := agg.State(); ok(state) {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("aggregator never reached expected state, last %+v", agg.State())
	return progress.State{}
}

func TestUploadProgressSpansAllFiles(t *testing.T) {
	snap := newSnapshot(t.TempDir())
	snap.Profile = settings.ExportProfile{UploadProfile: "team", Platform: manifest.PlatformNotion}
	uploadAgg := progress.New("Upload", nil)
	exec := &gatedExec{gates: map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}}
	uploader := upload.New(config.Tools{NotionUploader: "notion-uploader"}, t.TempDir(),
		upload.WithExecutor(exec), upload.WithProgress(uploadAgg))
	orch := pipeline.New(&stubExtractor{}, staticSettings{snap},
		pipeline.WithAggregators(nil, uploadAgg),
		pipeline.WithUploader(uploader),
		pipeline.WithProfiles(profileMap{"team": {
			Name:     "team",
			Platform: manifest.PlatformNotion,
			Notion:   &profiles.Notion{WorkspaceName: "Studio", Token: "secret"},
		}}),
	)

	states, unsubscribe := uploadAgg.Subscribe()
	var (
		seen []progress.State
		wg   sync.WaitGroup
	)
	wg.Go(func() {
		for state := range states {
			if state.Total > 0 {
				seen = append(seen, state)
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := orch.PerformExtraction(context.Background(), inputFiles(t, "first.fcpxml", "second.fcpxml"))
		done <- err
	}()

	waitForState(t, uploadAgg, func(s progress.State) bool {
		return s.Total == 2 && s.Percent == 50
	})
	close(exec.gates["first"])
	state := waitForState(t, uploadAgg, func(s progress.State) bool { return s.Finished == 1 })
	if state.Status != progress.StatusRunning || state.Total != 2 {
		t.Fatalf("after first upload state = %+v, want running 1/2", state)
	}
	close(exec.gates["second"])
	if err := <-done; err != nil {
		t.Fatalf("PerformExtraction: %v", err)
	}
	unsubscribe()
	wg.Wait()

	for i := 1; i < len(seen); i++ {
		prev, cur := seen[i-1], seen[i]
		if cur.Percent < prev.Percent {
			t.Fatalf("upload percent regressed: %d -> %d", prev.Percent, cur.Percent)
		}
		if prev.Status == progress.StatusDone && cur.Status != progress.StatusDone {
			t.Fatalf("upload left done state: %+v -> %+v", prev, cur)
		}
	}
}

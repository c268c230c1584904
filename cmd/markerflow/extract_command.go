package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"markerflow/internal/extract"
	"markerflow/internal/logging"
	"markerflow/internal/notifications"
	"markerflow/internal/pipeline"
	"markerflow/internal/progress"
	"markerflow/internal/settings"
	"markerflow/internal/swatch"
	"markerflow/internal/upload"
)

const extractLockName = "extract.lock"

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		profileName  string
		exportFolder string
		swatches     bool
		noUpload     bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Extract markers from project files and upload them",
		Long: "Extract markers from one or more project files using the active\n" +
			"configuration, then upload each result to the configured profile.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerValue()

			lock := flock.New(filepath.Join(cfg.Paths.StateDir, extractLockName))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire extraction lock: %w", err)
			}
			if !locked {
				return errors.New("another extraction is already running")
			}
			defer func() { _ = lock.Unlock() }()

			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			source := &overrideSource{base: store}
			if cmd.Flags().Changed("profile") {
				source.profile = &profileName
			}
			if noUpload {
				empty := ""
				source.profile = &empty
			}
			if cmd.Flags().Changed("export-folder") {
				source.exportFolder = &exportFolder
			}
			if cmd.Flags().Changed("swatch") {
				source.swatch = &swatches
			}

			extractor, err := extract.NewCLI(cfg.Tools.Extractor)
			if err != nil {
				return err
			}
			profileStore, err := ctx.profileStore()
			if err != nil {
				return err
			}
			history, err := ctx.historyStore()
			if err != nil {
				return err
			}

			uploads := progress.New("upload", logger)
			uploader := upload.New(cfg.Tools, cfg.UploadLogDir(),
				upload.WithProgress(uploads),
				upload.WithLogger(logger),
			)

			opts := []pipeline.Option{
				pipeline.WithAggregators(nil, uploads),
				pipeline.WithUploader(uploader),
				pipeline.WithProfiles(profileStore),
				pipeline.WithSwatchRenderer(swatch.NewImageRenderer(logger)),
				pipeline.WithNotifier(notifications.NewService(cfg)),
				pipeline.WithRecorder(history),
				pipeline.WithDefaultExportDir(cfg.Paths.ExportDir),
				pipeline.WithLogger(logger),
			}
			stderr := cmd.ErrOrStderr()
			if isTerminal(stderr) {
				opts = append(opts, pipeline.WithIndicator(newBarIndicator(stderr)))
			}
			orchestrator := pipeline.New(extractor, source, opts...)

			out := cmd.OutOrStdout()
			events, unsubscribe := orchestrator.Events()
			var printer sync.WaitGroup
			printer.Go(func() { printEvents(out, events) })

			files := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					abs = arg
				}
				files = append(files, abs)
			}

			report, runErr := orchestrator.PerformExtraction(cmd.Context(), files)
			unsubscribe()
			printer.Wait()
			if runErr != nil {
				if errors.Is(runErr, pipeline.ErrInvalidDestination) {
					return fmt.Errorf("%w; pass --export-folder or set export_folder", runErr)
				}
				return runErr
			}

			fmt.Fprintln(out, report.Summary())
			if report.Succeeded() {
				if folder := report.OutputFolder(); folder != "" {
					fmt.Fprintf(out, "Output: %s\n", folder)
				}
				return nil
			}
			rows := make([][]string, 0, len(report.Failures))
			for _, f := range report.Failures {
				rows = append(rows, []string{filepath.Base(f.File), failureStage(f.Kind), f.Reason()})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				title:   "Failures",
				headers: []string{"File", "Stage", "Reason"},
				color:   isTerminal(out),
			}, rows))
			logger.Debug("extraction run finished with failures",
				logging.String("run_id", report.RunID),
				logging.String("result", string(report.Result)),
			)
			return fmt.Errorf("extraction %s", strings.ReplaceAll(string(report.Result), "_", " "))
		},
	}
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Upload profile to use instead of the configured one")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "Skip uploading even when a profile is configured")
	cmd.Flags().StringVarP(&exportFolder, "export-folder", "o", "", "Export destination for this run")
	cmd.Flags().BoolVar(&swatches, "swatch", false, "Render colour swatches onto thumbnails")
	cmd.MarkFlagsMutuallyExclusive("profile", "no-upload")
	return cmd
}

// overrideSource layers per-run flag values over the active configuration
// without touching the stored snapshot.
type overrideSource struct {
	base         *settings.Store
	profile      *string
	exportFolder *string
	swatch       *bool
}

func (s *overrideSource) Current() settings.Snapshot {
	snap := s.base.Current()
	if s.profile != nil {
		snap.Profile.UploadProfile = strings.TrimSpace(*s.profile)
	}
	if s.exportFolder != nil {
		snap.ExportFolder = strings.TrimSpace(*s.exportFolder)
	}
	if s.swatch != nil {
		snap.Swatch.Enabled = *s.swatch
	}
	return snap
}

func printEvents(out io.Writer, events <-chan pipeline.Event) {
	for evt := range events {
		switch evt.Type {
		case pipeline.EventFileExtracted:
			fmt.Fprintf(out, "Extracted %s -> %s\n", filepath.Base(evt.File), evt.Folder)
		case pipeline.EventFileUploaded:
			fmt.Fprintf(out, "Uploaded %s\n", filepath.Base(evt.File))
		case pipeline.EventFileFailed:
			if evt.Failure != nil {
				fmt.Fprintf(out, "Failed %s\n", evt.Failure.Line())
			}
		}
	}
}

func failureStage(kind pipeline.FailureKind) string {
	if kind == pipeline.KindUpload {
		return "upload"
	}
	return "extract"
}

// barIndicator renders overall extraction progress as a terminal bar.
type barIndicator struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newBarIndicator(w io.Writer) *barIndicator {
	return &barIndicator{w: w}
}

func (b *barIndicator) SetProgress(percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		b.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = b.bar.Set(percent)
}

func (b *barIndicator) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	_ = b.bar.Clear()
	b.bar = nil
}

var _ pipeline.Indicator = (*barIndicator)(nil)

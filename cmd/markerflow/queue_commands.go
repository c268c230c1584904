package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"markerflow/internal/logging"
	"markerflow/internal/notifications"
	"markerflow/internal/queue"
	"markerflow/internal/upload"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Upload previously extracted folders in bulk",
	}
	cmd.AddCommand(
		newQueueScanCommand(ctx),
		newQueueWatchCommand(ctx),
		newQueueListCommand(ctx),
		newQueuePruneCommand(ctx),
	)
	return cmd
}

type queueFlags struct {
	profile string
	upload  bool
	remove  bool
}

func (f *queueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Upload every entry with this profile")
	cmd.Flags().BoolVar(&f.upload, "upload", false, "Upload entries after scanning")
	cmd.Flags().BoolVar(&f.remove, "remove", false, "Delete folders after a successful upload (defaults to upload.delete_after_upload)")
}

// buildQueue wires a queue against the configured uploader, history and
// notifications.
func (c *commandContext) buildQueue() (*queue.Queue, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.loggerValue()
	profileStore, err := c.profileStore()
	if err != nil {
		return nil, err
	}
	history, err := c.historyStore()
	if err != nil {
		return nil, err
	}
	return queue.New(profileStore,
		queue.WithStore(history),
		queue.WithUploader(upload.New(cfg.Tools, cfg.UploadLogDir(), upload.WithLogger(logger))),
		queue.WithNotifier(notifications.NewService(cfg)),
		queue.WithParallelism(cfg.Upload.Parallelism),
		queue.WithLogger(logger),
	), nil
}

func newQueueScanCommand(ctx *commandContext) *cobra.Command {
	var flags queueFlags
	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "Find extracted folders under DIR and optionally upload them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.buildQueue()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := q.ScanFolder(cmd.Context(), root, false); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := applyProfile(q, flags.profile); err != nil {
				return err
			}
			printQueue(out, q.Entries())
			if !flags.upload {
				return nil
			}
			return runQueueUpload(cmd, ctx, q, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueueWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		flags    queueFlags
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Keep scanning DIR and uploading new extractions until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.buildQueue()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			runCtx := cmd.Context()
			logger := logging.WithContext(runCtx, ctx.loggerValue())
			out := cmd.OutOrStdout()

			var wg sync.WaitGroup
			wg.Go(func() {
				if err := q.Watch(runCtx); err != nil {
					logging.WarnWithContext(logger, "queue watch stopped", "queue_watch_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "deleted folders stay queued until the next scan"),
					)
				}
			})
			defer wg.Wait()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			appendMode := false
			for {
				if err := q.ScanFolder(runCtx, root, appendMode); err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				appendMode = true
				if err := applyProfile(q, flags.profile); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s queued: %d\n", time.Now().Format(time.TimeOnly), q.Len())
				if flags.upload {
					if err := runQueueUpload(cmd, ctx, q, flags); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
				}
				select {
				case <-runCtx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Time between rescans")
	return cmd
}

func applyProfile(q *queue.Queue, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if q.SelectAll(name) == 0 && q.Len() > 0 {
		return fmt.Errorf("%w: no queued entry can use profile %q", queue.ErrNoProfile, name)
	}
	return nil
}

func runQueueUpload(cmd *cobra.Command, ctx *commandContext, q *queue.Queue, flags queueFlags) error {
	remove := flags.remove
	if !cmd.Flags().Changed("remove") {
		remove = ctx.configValue().Upload.DeleteAfterUpload
	}
	summary, err := q.UploadAll(cmd.Context(), remove)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploaded %d, failed %d, skipped %d\n", summary.Uploaded, summary.Failed, summary.Skipped)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		for _, e := range q.Entries() {
			if e.Status == queue.StatusFailed {
				fmt.Fprintf(out, "  %s: %s\n", e.Name(), e.Error)
			}
		}
		return fmt.Errorf("%d upload%s failed", summary.Failed, plural(summary.Failed, "", "s"))
	}
	return nil
}

func printQueue(out io.Writer, entries []queue.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No extracted folders found")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		profile := "(none)"
		if e.Selected != nil {
			profile = e.Selected.Name
		}
		rows = append(rows, []string{
			e.Name(),
			string(e.Info.Platform),
			profile,
			string(e.Status),
			e.Info.CreatedAt.Local().Format(time.DateTime),
			e.Folder,
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		headers: []string{"Project", "Platform", "Profile", "Status", "Extracted", "Folder"},
		color:   isTerminal(out),
	}, rows))
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded extractions and their upload status",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := ctx.historyStore()
			if err != nil {
				return err
			}
			filter := make([]queue.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := queue.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter = append(filter, status)
			}
			records, err := history.List(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No recorded extractions")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				uploaded := ""
				if rec.UploadedAt != nil {
					uploaded = rec.UploadedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					filepath.Base(rec.SourcePath),
					string(rec.Status),
					valueOr(rec.Profile, "-"),
					fmt.Sprintf("%d", rec.Attempts),
					rec.ExtractedAt.Local().Format(time.DateTime),
					uploaded,
					rec.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"Project", "Status", "Profile", "Attempts", "Extracted", "Uploaded", "Error"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				color:   isTerminal(out),
			}, rows))

			stats, err := history.Stats(cmd.Context())
			if err != nil {
				return err
			}
			parts := make([]string, 0, len(stats))
			for _, status := range []queue.Status{queue.StatusIdle, queue.StatusUploading, queue.StatusSuccess, queue.StatusFailed} {
				if n := stats[status]; n > 0 {
					parts = append(parts, fmt.Sprintf("%s %d", status, n))
				}
			}
			fmt.Fprintln(out, strings.Join(parts, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show records with these statuses")
	return cmd
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Forget recorded extractions whose folders no longer exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := ctx.historyStore()
			if err != nil {
				return err
			}
			removed, err := history.PruneMissing(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d record%s\n", removed, plural(removed, "", "s"))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"markerflow/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		raw       bool
		runID     string
		level     string
		component string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the markerflow log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts := logs.Options{
				Limit:  lines,
				Follow: follow,
				Filter: logs.Filter{
					RunID:     strings.TrimSpace(runID),
					MinLevel:  logs.ParseLevel(level),
					Component: strings.TrimSpace(component),
				},
			}
			return logs.Tail(cmd.Context(), cfg.LogFilePath(), opts, func(line string) {
				if raw {
					fmt.Fprintln(out, line)
					return
				}
				printLogLine(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unchanged")
	cmd.Flags().StringVar(&runID, "run", "", "Only show lines of one extraction run (id prefix)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn or error")
	cmd.Flags().StringVar(&component, "component", "", "Only show lines from one component")
	return cmd
}

func printLogLine(out io.Writer, line string) {
	entry, ok := logs.Parse(line)
	if !ok {
		fmt.Fprintln(out, line)
		return
	}
	var b strings.Builder
	b.WriteString(entry.Time)
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(entry.Level))
	if entry.Component != "" {
		b.WriteString(" [" + entry.Component + "]")
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.RunID != "" {
		b.WriteString(" run=" + shortID(entry.RunID))
	}
	fmt.Fprintln(out, b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

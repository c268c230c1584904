package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"markerflow/internal/deps"
	"markerflow/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external executables markerflow drives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			out := cmd.OutOrStdout()
			color := isTerminal(out)

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "ok"
				detail := s.Path
				if !s.Available {
					state = "missing"
					if s.Optional {
						state = "optional"
					}
					detail = s.Detail
				}
				if color {
					state = colorState(state)
				}
				rows = append(rows, []string{s.Name, s.Command, state, detail})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"Dependency", "Command", "State", "Detail"},
				color:   color,
			}, rows))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required %s missing", len(missing), plural(len(missing), "dependency is", "dependencies are"))
			}
			return nil
		},
	}
}

func colorState(state string) string {
	switch state {
	case "ok":
		return text.FgGreen.Sprint(state)
	case "missing":
		return text.FgRed.Sprint(state)
	default:
		return text.FgYellow.Sprint(state)
	}
}

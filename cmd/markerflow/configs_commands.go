package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"markerflow/internal/manifest"
	"markerflow/internal/settings"
)

func newConfigsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "configs",
		Aliases: []string{"configurations"},
		Short:   "Manage named export configurations",
	}
	cmd.AddCommand(
		newConfigsListCommand(ctx),
		newConfigsStatusCommand(ctx),
		newConfigsSaveCommand(ctx),
		newConfigsLoadCommand(ctx),
		newConfigsRemoveCommand(ctx),
		newConfigsRenameCommand(ctx),
		newConfigsDuplicateCommand(ctx),
		newConfigsSetCommand(ctx),
	)
	return cmd
}

func newConfigsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			names, err := store.Names()
			if err != nil {
				return err
			}
			active := store.Active()
			rows := [][]string{{settings.DefaultName, yesNo(settings.IsDefault(active)), "built in"}}
			for _, name := range names {
				detail := ""
				if snap, err := store.Read(name); err != nil {
					detail = "unreadable: " + err.Error()
				} else if snap.Profile.UploadProfile != "" {
					detail = "uploads to " + snap.Profile.UploadProfile
				}
				rows = append(rows, []string{name, yesNo(strings.EqualFold(name, active)), detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"Name", "Active", "Detail"},
				color:   isTerminal(out),
			}, rows))
			return nil
		},
	}
}

func newConfigsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active configuration and unsaved changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			changed, err := store.ChangedFields()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			snap := store.Current()
			fmt.Fprintf(out, "Active configuration: %s\n", store.Active())
			fmt.Fprintf(out, "Export folder: %s\n", valueOr(snap.ExportFolder, "(application default)"))
			fmt.Fprintf(out, "Upload profile: %s\n", valueOr(snap.Profile.UploadProfile, "(none)"))
			fmt.Fprintf(out, "Swatches: %s\n", yesNo(snap.Swatch.Enabled))
			if len(changed) == 0 {
				fmt.Fprintln(out, "Unsaved changes: no")
				return nil
			}
			fmt.Fprintf(out, "Unsaved changes: yes (%s)\n", strings.Join(changed, ", "))
			return nil
		},
	}
}

func newConfigsSaveCommand(ctx *commandContext) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:     "save NAME",
		Aliases: []string{"add"},
		Short:   "Save the current settings as a named configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if err := store.Save(args[0], replace); err != nil {
				return describeSettingsError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration %q\n", store.Active())
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing configuration with the same name")
	return cmd
}

func newConfigsLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load NAME",
		Short: "Make a configuration active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if _, err := store.Load(args[0]); err != nil {
				return describeSettingsError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active configuration: %s\n", store.Active())
			return nil
		},
	}
}

func newConfigsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return describeSettingsError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q; active configuration: %s\n", args[0], store.Active())
			return nil
		},
	}
}

func newConfigsRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if err := store.Rename(args[0], args[1]); err != nil {
				return describeSettingsError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", args[0], settings.NormalizeName(args[1]))
			return nil
		},
	}
}

func newConfigsDuplicateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate NAME NEW",
		Short: "Copy a configuration under a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if err := store.Duplicate(args[0], args[1]); err != nil {
				return describeSettingsError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Duplicated %q as %q\n", args[0], settings.NormalizeName(args[1]))
			return nil
		},
	}
}

// newConfigsSetCommand edits the active configuration. Edits are persisted
// through the store's autosave loop, which flushes when the command ends.
func newConfigsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Change settings of the active configuration",
		Long: "Change settings of the active configuration.\n\nKeys: " +
			strings.Join(settableKeys(), ", "),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			if settings.IsDefault(store.Active()) {
				return errors.New("the Default configuration cannot be edited; run `markerflow configs save NAME` first")
			}

			edits := make([]func(*settings.Snapshot) error, 0, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected KEY=VALUE, got %q", arg)
				}
				edit, err := settingSetter(strings.TrimSpace(key), strings.TrimSpace(value))
				if err != nil {
					return err
				}
				edits = append(edits, edit)
			}

			snap := store.Current()
			for _, edit := range edits {
				if err := edit(&snap); err != nil {
					return err
				}
			}

			saveCtx, cancel := context.WithCancel(cmd.Context())
			var wg sync.WaitGroup
			wg.Go(func() { store.AutoSave(saveCtx, 0) })
			store.SetCurrent(snap)
			cancel()
			wg.Wait()

			dirty, err := store.HasUnsavedChanges()
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("configuration %q was not saved; see the log for details", store.Active())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated configuration %q\n", store.Active())
			return nil
		},
	}
}

var settingSetters = map[string]func(*settings.Snapshot, string) error{
	"export_folder": func(s *settings.Snapshot, v string) error { s.ExportFolder = v; return nil },
	"export_format": func(s *settings.Snapshot, v string) error { s.ExportFormat = v; return nil },
	"image_format":  func(s *settings.Snapshot, v string) error { s.ImageFormat = v; return nil },
	"image_quality": intSetter(func(s *settings.Snapshot) *int { return &s.ImageQuality }),
	"image_width":   intSetter(func(s *settings.Snapshot) *int { return &s.ImageWidth }),
	"image_height":  intSetter(func(s *settings.Snapshot) *int { return &s.ImageHeight }),
	"swatch": func(s *settings.Snapshot, v string) error {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("swatch: %w", err)
		}
		s.Swatch.Enabled = enabled
		return nil
	},
	"swatch_colors":  intSetter(func(s *settings.Snapshot) *int { return &s.Swatch.ColorCount }),
	"upload_profile": func(s *settings.Snapshot, v string) error { s.Profile.UploadProfile = v; return nil },
	"platform": func(s *settings.Snapshot, v string) error {
		platform, err := manifest.ParsePlatform(v)
		if err != nil {
			return err
		}
		s.Profile.Platform = platform
		return nil
	},
	"excluded_roles": func(s *settings.Snapshot, v string) error {
		s.Roles.Excluded = nil
		for _, role := range strings.Split(v, ",") {
			if role = strings.TrimSpace(role); role != "" {
				s.Roles.Excluded = append(s.Roles.Excluded, role)
			}
		}
		return nil
	},
}

func intSetter(field func(*settings.Snapshot) *int) func(*settings.Snapshot, string) error {
	return func(s *settings.Snapshot, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("expected a non-negative integer, got %q", v)
		}
		*field(s) = n
		return nil
	}
}

func settingSetter(key, value string) (func(*settings.Snapshot) error, error) {
	set, ok := settingSetters[key]
	if !ok {
		return nil, fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(settableKeys(), ", "))
	}
	return func(s *settings.Snapshot) error { return set(s, value) }, nil
}

func settableKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// describeSettingsError rewrites store errors into the remediation users
// need.
func describeSettingsError(err error) error {
	var decodeErr *settings.DecodeError
	switch {
	case errors.Is(err, settings.ErrReservedName):
		return fmt.Errorf("%q is reserved for the built-in configuration: %w", settings.DefaultName, err)
	case errors.Is(err, settings.ErrNameExists):
		return fmt.Errorf("%w (pass --replace to overwrite)", err)
	case errors.Is(err, settings.ErrNotFound):
		return fmt.Errorf("%w; run `markerflow configs list`", err)
	case errors.As(err, &decodeErr):
		return fmt.Errorf("configuration %q could not be parsed: %w", decodeErr.Name, decodeErr.Err)
	default:
		return err
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

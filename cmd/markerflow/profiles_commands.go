package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"markerflow/internal/manifest"
	"markerflow/internal/profiles"
)

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage Notion and Airtable upload profiles",
	}
	cmd.AddCommand(
		newProfilesListCommand(ctx),
		newProfilesAddNotionCommand(ctx),
		newProfilesAddAirtableCommand(ctx),
		newProfilesRemoveCommand(ctx),
	)
	return cmd
}

func newProfilesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List upload profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profileStore()
			if err != nil {
				return err
			}
			items, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No upload profiles configured")
				return nil
			}
			title := cases.Title(language.English)
			rows := make([][]string, 0, len(items))
			for _, p := range items {
				target, token := profileTarget(p)
				rows = append(rows, []string{p.Name, title.String(string(p.Platform)), target, maskToken(token)})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"Name", "Platform", "Destination", "Token"},
				color:   isTerminal(out),
			}, rows))
			return nil
		},
	}
}

func newProfilesAddNotionCommand(ctx *commandContext) *cobra.Command {
	var (
		workspace string
		token     string
		database  string
		rename    string
		mergeOnly []string
		replace   bool
	)
	cmd := &cobra.Command{
		Use:   "add-notion NAME",
		Short: "Add a Notion upload profile",
		Long: "Add a Notion upload profile.\n\nWhen --token is omitted the uploader falls back to " +
			profiles.EnvNotionToken + ".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notion := &profiles.Notion{
				WorkspaceName:    strings.TrimSpace(workspace),
				Token:            strings.TrimSpace(token),
				DatabaseURL:      strings.TrimSpace(database),
				MergeOnlyColumns: mergeOnly,
			}
			if rename != "" {
				from, to, ok := strings.Cut(rename, ":")
				if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
					return fmt.Errorf("--rename-key-column expects FROM:TO, got %q", rename)
				}
				notion.RenameKeyColumn = &profiles.ColumnRename{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}
			}
			return saveProfile(cmd, ctx, profiles.Profile{
				Name:     args[0],
				Platform: manifest.PlatformNotion,
				Notion:   notion,
			}, replace)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "Notion workspace name")
	cmd.Flags().StringVar(&token, "token", "", "Notion integration token")
	cmd.Flags().StringVar(&database, "database-url", "", "Existing database to merge into")
	cmd.Flags().StringVar(&rename, "rename-key-column", "", "Rename the key column, as FROM:TO")
	cmd.Flags().StringArrayVar(&mergeOnly, "merge-only-column", nil, "Column only updated when merging (repeatable)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing profile with the same name")
	return cmd
}

func newProfilesAddAirtableCommand(ctx *commandContext) *cobra.Command {
	var (
		token       string
		baseID      string
		tableID     string
		credentials string
		replace     bool
	)
	cmd := &cobra.Command{
		Use:   "add-airtable NAME",
		Short: "Add an Airtable upload profile",
		Long: "Add an Airtable upload profile.\n\nWhen --token is omitted the uploader falls back to " +
			profiles.EnvAirtableToken + ".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			airtable := &profiles.Airtable{
				Token:   strings.TrimSpace(token),
				BaseID:  strings.TrimSpace(baseID),
				TableID: strings.TrimSpace(tableID),
			}
			if credentials != "" {
				data, err := os.ReadFile(credentials)
				if err != nil {
					return fmt.Errorf("read bucket credentials: %w", err)
				}
				airtable.BucketCredentials = strings.TrimSpace(string(data))
			}
			return saveProfile(cmd, ctx, profiles.Profile{
				Name:     args[0],
				Platform: manifest.PlatformAirtable,
				Airtable: airtable,
			}, replace)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Airtable personal access token")
	cmd.Flags().StringVar(&baseID, "base-id", "", "Airtable base identifier")
	cmd.Flags().StringVar(&tableID, "table-id", "", "Airtable table identifier")
	cmd.Flags().StringVar(&credentials, "bucket-credentials-file", "", "File holding the attachment bucket credentials")
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing profile with the same name")
	return cmd
}

func newProfilesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete an upload profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profileStore()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %q\n", args[0])
			return nil
		},
	}
}

func saveProfile(cmd *cobra.Command, ctx *commandContext, p profiles.Profile, replace bool) error {
	store, err := ctx.profileStore()
	if err != nil {
		return err
	}
	if err := store.Save(p, replace); err != nil {
		if errors.Is(err, profiles.ErrExists) {
			return fmt.Errorf("%w (pass --replace to overwrite)", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s profile %q\n", p.Platform, p.Name)
	return nil
}

func profileTarget(p profiles.Profile) (string, string) {
	switch {
	case p.Notion != nil:
		target := valueOr(p.Notion.DatabaseURL, "new database")
		if p.Notion.WorkspaceName != "" {
			target = p.Notion.WorkspaceName + " / " + target
		}
		return target, p.Notion.Token
	case p.Airtable != nil:
		return p.Airtable.BaseID + " / " + p.Airtable.TableID, p.Airtable.Token
	default:
		return "", ""
	}
}

func maskToken(token string) string {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return "(missing)"
	case len(token) <= 8:
		return "****"
	default:
		return token[:4] + "…" + token[len(token)-4:]
	}
}

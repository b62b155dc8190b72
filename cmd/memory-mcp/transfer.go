package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wty0512/memory-mcp-server/internal/export"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── export ──────────────────────────────────────────────────────────────────

func (a *app) exportCmd() *cobra.Command {
	var (
		format     string
		output     string
		global     bool
		noMetadata bool
	)
	cmd := &cobra.Command{
		Use:   "export [project]",
		Short: "Export a project, the global memory, or everything",
		Long: `Export entries oldest first in markdown, json, csv or txt.

With a project argument only that project is exported, with --global only the
global memory, and with neither every entry in the store.`,
		Example: `  memory-mcp export webapp -f json -o webapp.json
  memory-mcp export --global > global.md
  memory-mcp export -f json -o backup.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			project := ""
			if len(args) == 1 {
				project = args[0]
			}

			return a.withBackend(func(b store.Backend) error {
				entries, err := collectForExport(b, global, project)
				if err != nil {
					return err
				}
				data, err := export.EncodeBytes(entries, export.Options{
					Format:          f,
					IncludeMetadata: !noMetadata,
					Title:           project,
					Global:          global,
				})
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := export.WriteFile(output, data); err != nil {
					return store.Storage("export", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d %s to %s\n", len(entries), plural(len(entries), "entry", "entries"), output)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&format, "format", "f", "markdown", "markdown, json, csv or txt")
	fl.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	fl.BoolVarP(&global, "global", "g", false, "export the global memory")
	fl.BoolVar(&noMetadata, "no-metadata", false, "keep only titles and bodies")
	return cmd
}

// collectForExport returns the selected entries oldest first.
func collectForExport(b store.Backend, global bool, project string) ([]store.Entry, error) {
	var entries []store.Entry
	switch {
	case global:
		list, err := b.List(store.ListOptions{Scope: store.ScopeGlobal})
		if err != nil {
			return nil, err
		}
		entries = list
	case project != "":
		list, err := b.List(store.ListOptions{Scope: store.ScopeProject, Project: project})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, store.WithProjectHint(store.NotFound("export", "project %q has no entries", project), b, project)
		}
		entries = list
	default:
		// No scope lists every entry.
		list, err := b.List(store.ListOptions{})
		if err != nil {
			return nil, err
		}
		entries = list
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ─── import ──────────────────────────────────────────────────────────────────

func (a *app) importCmd() *cobra.Command {
	var (
		format string
		opts   store.ImportOptions
		global bool
	)
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import entries from an export file; all or nothing",
		Long: `Import entries from markdown, json, csv or txt. The format defaults to the
file extension. Either every entry is imported or none is.

--project or --global override the scope stored in the file. Ids from a json
export are kept when they are above every id the store has used; pass
--preserve-ids=false to always assign fresh ids. Other formats never keep ids
unless --preserve-ids is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = formatFromPath(path)
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			var data []byte
			if path == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return store.Format("import", err, "read %s", path)
			}

			entries, err := export.Decode(bytes.NewReader(data), f)
			if err != nil {
				return err
			}
			if global {
				opts.Scope = store.ScopeGlobal
			}
			if !cmd.Flags().Changed("preserve-ids") {
				opts.PreserveIDs = f == export.JSON
			}

			return a.withBackend(func(b store.Backend) error {
				n, err := b.Import(entries, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s\n", n, plural(n, "entry", "entries"))
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&format, "format", "f", "", "markdown, json, csv or txt (default from extension)")
	fl.StringVarP(&opts.Project, "project", "p", "", "import everything into this project")
	fl.BoolVarP(&global, "global", "g", false, "import everything into global memory")
	fl.BoolVar(&opts.PreserveIDs, "preserve-ids", false, "keep ids from the file when possible (default true for json)")
	return cmd
}

func formatFromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "markdown"
	}
	return ext
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wty0512/memory-mcp-server/internal/mcp"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// withBackend opens the configured backend for the duration of fn.
func (a *app) withBackend(fn func(b store.Backend) error) error {
	b, err := a.open()
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func scopeFor(global bool) store.Scope {
	if global {
		return store.ScopeGlobal
	}
	return store.ScopeProject
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.Validation("get", "entry_id", "invalid entry id %q", s)
	}
	return id, nil
}

// ─── save ────────────────────────────────────────────────────────────────────

func (a *app) saveCmd() *cobra.Command {
	var (
		p      store.CreateParams
		global bool
	)
	cmd := &cobra.Command{
		Use:   "save [content...]",
		Short: "Save a memory (reads stdin when no content is given)",
		Example: `  memory-mcp save -p webapp -t "Auth choice" -c decision "Sessions live in redis"
  git log -1 --format=%B | memory-mcp save -p webapp -c changelog`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.Join(args, " ")
			if len(args) == 0 || body == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				body = strings.TrimRight(string(data), "\r\n")
			}
			p.Body = body
			p.Scope = scopeFor(global)

			return a.withBackend(func(b store.Backend) error {
				id, err := b.Create(p)
				if err != nil {
					return err
				}
				if global {
					fmt.Fprintf(cmd.OutOrStdout(), "Saved entry #%d to global memory\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Saved entry #%d to project %q\n", id, strings.TrimSpace(p.Project))
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.Project, "project", "p", "", "project name")
	f.BoolVarP(&global, "global", "g", false, "save to global memory")
	f.StringVarP(&p.Title, "title", "t", "", "entry title")
	f.StringVarP(&p.Category, "category", "c", "", "category")
	f.StringVar(&p.EntryType, "type", "", "entry type")
	f.StringVar(&p.Summary, "summary", "", "one-line summary")
	return cmd
}

// ─── get ─────────────────────────────────────────────────────────────────────

func (a *app) getCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <entry_id>",
		Short: "Show one entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(func(b store.Backend) error {
				e, err := b.Get(id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), e)
				}
				fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatEntry(*e))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// ─── list ────────────────────────────────────────────────────────────────────

func (a *app) listCmd() *cobra.Command {
	var (
		opts   store.ListOptions
		global bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list [project]",
		Short: "List entries of a project (or every project), newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Scope = scopeFor(global)
			if len(args) == 1 {
				opts.Project = args[0]
			}
			return a.withBackend(func(b store.Backend) error {
				entries, err := b.List(opts)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No entries.")
					return nil
				}
				for _, e := range entries {
					line := mcp.FormatLine(e)
					if e.Scope == store.ScopeProject && opts.Project == "" {
						line += "  (" + e.ProjectName() + ")"
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&global, "global", "g", false, "list global memory")
	f.IntVarP(&opts.Limit, "limit", "n", 0, "maximum entries (0 means all)")
	f.IntVar(&opts.Offset, "offset", 0, "entries to skip")
	f.BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// ─── search ──────────────────────────────────────────────────────────────────

func (a *app) searchCmd() *cobra.Command {
	var (
		opts   store.SearchOptions
		global bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search memories by keyword",
		Example: `  memory-mcp search redis sessions -p webapp
  memory-mcp search --global "code review"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			opts.Scope = scopeFor(global)
			return a.withBackend(func(b store.Backend) error {
				results, err := b.Search(query, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, struct {
						Query   string        `json:"query"`
						Count   int           `json:"count"`
						Results []store.Entry `json:"results"`
					}{query, len(results), results})
				}
				if len(results) == 0 {
					fmt.Fprintf(out, "No memories found for: %q\n", query)
					return nil
				}
				fmt.Fprintf(out, "Found %d memories:\n\n", len(results))
				for i, e := range results {
					where := "global"
					if e.Scope == store.ScopeProject {
						where = "project: " + e.ProjectName()
					}
					fmt.Fprintf(out, "[%d] %s\n    %s\n    %s\n\n", i+1, mcp.FormatLine(e), truncate(e.Body, 300), where)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Project, "project", "p", "", "restrict to one project")
	f.BoolVarP(&global, "global", "g", false, "search global memory")
	f.StringVarP(&opts.Category, "category", "c", "", "exact category filter")
	f.IntVarP(&opts.Limit, "limit", "n", 0, "maximum results (default from config)")
	f.BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// ─── edit / delete ───────────────────────────────────────────────────────────

func selectorFlags(f *pflag.FlagSet, sel *store.Selector, global *bool) {
	f.StringVarP(&sel.Project, "project", "p", "", "project the entries belong to")
	f.BoolVarP(global, "global", "g", false, "select from global memory")
	f.Int64Var(&sel.ID, "id", 0, "entry id")
	f.StringVar(&sel.Timestamp, "timestamp", "", "created_at prefix, e.g. 2025-01-15 or 2025-01-15 10:30")
	f.StringVar(&sel.Title, "title-match", "", "case-insensitive title substring")
	f.StringVar(&sel.Category, "category-match", "", "case-insensitive category substring")
	f.StringVar(&sel.Body, "content-match", "", "case-insensitive content substring")
}

func (a *app) editCmd() *cobra.Command {
	var (
		sel    store.Selector
		global bool
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit every entry matching a selector",
		Example: `  memory-mcp edit -p webapp --id 12 --new-content "Sessions moved to postgres"
  memory-mcp edit -p webapp --category-match todo --new-category done`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel.Scope = scopeFor(global)
			var patch store.Patch
			f := cmd.Flags()
			for name, dst := range map[string]**string{
				"new-title":    &patch.Title,
				"new-category": &patch.Category,
				"new-type":     &patch.EntryType,
				"new-summary":  &patch.Summary,
				"new-content":  &patch.Body,
			} {
				if f.Changed(name) {
					v, _ := f.GetString(name)
					*dst = &v
				}
			}
			return a.withBackend(func(b store.Backend) error {
				n, err := b.Update(sel, patch)
				if err != nil {
					return store.WithProjectHint(err, b, sel.Project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d %s\n", n, plural(n, "entry", "entries"))
				return nil
			})
		},
	}
	f := cmd.Flags()
	selectorFlags(f, &sel, &global)
	f.String("new-title", "", "replacement title")
	f.String("new-category", "", "replacement category")
	f.String("new-type", "", "replacement entry type")
	f.String("new-summary", "", "replacement summary")
	f.String("new-content", "", "replacement content")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var (
		sel    store.Selector
		global bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every entry matching a selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel.Scope = scopeFor(global)
			return a.withBackend(func(b store.Backend) error {
				n, err := b.Delete(sel)
				if err != nil {
					return store.WithProjectHint(err, b, sel.Project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s\n", n, plural(n, "entry", "entries"))
				return nil
			})
		},
	}
	selectorFlags(cmd.Flags(), &sel, &global)
	return cmd
}

func (a *app) deleteProjectCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-project <project>",
		Short: "Delete a project and every entry in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]
			if !yes {
				return store.Validation("delete project", "yes", "refusing to delete project %q without --yes", project)
			}
			return a.withBackend(func(b store.Backend) error {
				n, err := b.DeleteProject(project)
				if err != nil {
					return store.WithProjectHint(err, b, project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %q (%d %s)\n", project, n, plural(n, "entry", "entries"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

// ─── projects / stats ────────────────────────────────────────────────────────

func (a *app) projectsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(func(b store.Backend) error {
				projects, err := b.ListProjects()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, projects)
				}
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects yet.")
					return nil
				}
				for _, p := range projects {
					fmt.Fprintf(out, "%-24s %4d %-7s  last activity %s\n",
						p.Project, p.Count, plural(p.Count, "entry", "entries"), p.LastActivity)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	var (
		global bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats [project]",
		Short: "Show statistics for a project or the global memory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := scopeFor(global || len(args) == 0)
			project := ""
			if scope == store.ScopeProject {
				project = args[0]
			}
			return a.withBackend(func(b store.Backend) error {
				sum, err := b.Stats(scope, project)
				if err != nil {
					return store.WithProjectHint(err, b, project)
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), sum)
				}
				fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatSummary(*sum))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&global, "global", "g", false, "global memory statistics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

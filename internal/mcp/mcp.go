// Package mcp implements the Model Context Protocol server for the memory
// store.
//
// It exposes project and global memory over MCP stdio so any agent (Claude
// Desktop, Claude Code, Gemini CLI, Cursor, ...) can save, search and curate
// entries just by adding the binary as an MCP server.
//
// Tool profiles allow agents to load only the tools they need:
//
//	memory-mcp mcp                     → every tool (default)
//	memory-mcp mcp --tools=agent       → save, read and search tools
//	memory-mcp mcp --tools=admin       → destructive and bulk tools
//	memory-mcp mcp --tools=agent,admin → combine profiles
//	memory-mcp mcp --tools=save_project_memory,search_project_memory
package mcp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wty0512/memory-mcp-server/internal/export"
	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// Version is reported in the initialize response.
var Version = "dev"

var readFile = os.ReadFile

// ─── Tool Profiles ───────────────────────────────────────────────────────────

// ProfileAgent contains the tools an agent uses while working.
var ProfileAgent = map[string]bool{
	"save_project_memory":         true,
	"save_global_memory":          true,
	"get_memory_entry":            true,
	"get_project_memory":          true,
	"get_recent_project_memory":   true,
	"get_global_memory":           true,
	"list_project_memory_entries": true,
	"search_project_memory":       true,
	"search_global_memory":        true,
	"edit_project_memory_entry":   true,
	"list_memory_projects":        true,
}

// ProfileAdmin contains destructive and bulk tools meant for manual curation.
var ProfileAdmin = map[string]bool{
	"delete_project_memory_entry": true,
	"delete_project_memory":       true,
	"get_project_memory_stats":    true,
	"get_global_memory_stats":     true,
	"export_project_memory":       true,
	"import_project_memory":       true,
}

var Profiles = map[string]map[string]bool{
	"agent": ProfileAgent,
	"admin": ProfileAdmin,
}

// ResolveTools takes a comma-separated string of profile names and/or
// individual tool names and returns the set of tool names to register.
// An empty input means "all".
func ResolveTools(input string) map[string]bool {
	input = strings.TrimSpace(input)
	if input == "" || input == "all" {
		return nil
	}

	result := make(map[string]bool)
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if token == "all" {
			return nil
		}
		if profile, ok := Profiles[token]; ok {
			for tool := range profile {
				result[tool] = true
			}
		} else {
			result[token] = true
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

const serverInstructions = `Persistent memory for AI assistants, kept per project and globally. ` +
	`Search these tools when you need to: save a decision, bug fix or convention ` +
	`for the current project; recall what was decided earlier; keep preferences ` +
	`that apply to every project in global memory. Key tools: save_project_memory, ` +
	`search_project_memory, get_project_memory, save_global_memory, search_global_memory.`

func NewServer(b store.Backend) *server.MCPServer {
	return NewServerWithTools(b, nil)
}

// NewServerWithTools registers only the tools in allowlist; nil means all.
func NewServerWithTools(b store.Backend, allowlist map[string]bool) *server.MCPServer {
	srv := server.NewMCPServer(
		"memory-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	registerTools(srv, b, allowlist)
	return srv
}

func shouldRegister(name string, allowlist map[string]bool) bool {
	if allowlist == nil {
		return true
	}
	return allowlist[name]
}

// selectorOptions are shared by the edit and delete tools.
func selectorOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("project",
			mcp.Description("Project name (required unless scope is global)"),
		),
		mcp.WithString("scope",
			mcp.Description("project (default) or global"),
		),
		mcp.WithNumber("entry_id",
			mcp.Description("Exact entry id"),
		),
		mcp.WithString("timestamp",
			mcp.Description("Prefix of the entry's created_at, e.g. 2025-03-01 or 2025-03-01 09:00"),
		),
		mcp.WithString("title",
			mcp.Description("Case-insensitive substring of the title"),
		),
		mcp.WithString("category",
			mcp.Description("Case-insensitive substring of the category"),
		),
		mcp.WithString("content_match",
			mcp.Description("Case-insensitive substring of the body"),
		),
	}
}

func registerTools(srv *server.MCPServer, b store.Backend, allowlist map[string]bool) {
	// ─── save_project_memory (profile: agent) ──────────────────────────
	if shouldRegister("save_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("save_project_memory",
				mcp.WithDescription(`Save an entry to a project's memory. Call this after a decision, bug fix, convention or discovery worth remembering in later sessions.

GUIDELINES:
- title: short and searchable, e.g. "Chose SQLite for local storage"
- category: decision, bug, architecture, convention, todo... (default: general)
- content: what happened, why, and anything a future session needs`),
				mcp.WithTitleAnnotation("Save Project Memory"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
				mcp.WithString("content",
					mcp.Required(),
					mcp.Description("Entry body"),
				),
				mcp.WithString("title",
					mcp.Description("Short title"),
				),
				mcp.WithString("category",
					mcp.Description("Category tag (default: general)"),
				),
				mcp.WithString("entry_type",
					mcp.Description("Free-form type label"),
				),
				mcp.WithString("summary",
					mcp.Description("One-line summary"),
				),
			),
			handleSave(b, store.ScopeProject),
		)
	}

	// ─── save_global_memory (profile: agent) ───────────────────────────
	if shouldRegister("save_global_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("save_global_memory",
				mcp.WithDescription("Save an entry to global memory: preferences, conventions and knowledge that apply across every project."),
				mcp.WithTitleAnnotation("Save Global Memory"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("content",
					mcp.Required(),
					mcp.Description("Entry body"),
				),
				mcp.WithString("title",
					mcp.Description("Short title"),
				),
				mcp.WithString("category",
					mcp.Description("Category tag (default: general)"),
				),
				mcp.WithString("entry_type",
					mcp.Description("Free-form type label"),
				),
				mcp.WithString("summary",
					mcp.Description("One-line summary"),
				),
			),
			handleSave(b, store.ScopeGlobal),
		)
	}

	// ─── get_memory_entry (profile: agent) ─────────────────────────────
	if shouldRegister("get_memory_entry", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_memory_entry",
				mcp.WithDescription("Get the full, untruncated content of one entry by id. Search results are truncated; use this to read an entry in full."),
				mcp.WithTitleAnnotation("Get Memory Entry"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithNumber("entry_id",
					mcp.Required(),
					mcp.Description("Entry id"),
				),
			),
			handleGet(b),
		)
	}

	// ─── get_project_memory (profile: agent) ───────────────────────────
	if shouldRegister("get_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_project_memory",
				mcp.WithDescription("Get a project's whole memory as one markdown document, oldest entry first. Use at the start of a session to load context."),
				mcp.WithTitleAnnotation("Get Project Memory"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
			),
			handleDocument(b, store.ScopeProject),
		)
	}

	// ─── get_global_memory (profile: agent) ────────────────────────────
	if shouldRegister("get_global_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_global_memory",
				mcp.WithDescription("Get all global memory as one markdown document, oldest entry first."),
				mcp.WithTitleAnnotation("Get Global Memory"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			handleDocument(b, store.ScopeGlobal),
		)
	}

	// ─── get_recent_project_memory (profile: agent) ────────────────────
	if shouldRegister("get_recent_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_recent_project_memory",
				mcp.WithDescription("Get the most recent entries of a project, newest first."),
				mcp.WithTitleAnnotation("Get Recent Project Memory"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Number of entries (default: 5)"),
				),
			),
			handleRecent(b),
		)
	}

	// ─── list_project_memory_entries (profile: agent) ──────────────────
	if shouldRegister("list_project_memory_entries", allowlist) {
		srv.AddTool(
			mcp.NewTool("list_project_memory_entries",
				mcp.WithDescription("List a project's entries as compact lines (id, timestamp, category, title), newest first. Use the id with get_memory_entry or the edit/delete tools."),
				mcp.WithTitleAnnotation("List Project Entries"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Max entries (default: all)"),
				),
				mcp.WithNumber("offset",
					mcp.Description("Entries to skip"),
				),
			),
			handleList(b),
		)
	}

	// ─── search_project_memory (profile: agent) ────────────────────────
	if shouldRegister("search_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("search_project_memory",
				mcp.WithDescription("Search project memory by keywords. Matches title, summary and body; entries matching more of the words rank first. Omit project to search every project."),
				mcp.WithTitleAnnotation("Search Project Memory"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Keywords"),
				),
				mcp.WithString("project",
					mcp.Description("Project name (default: all projects)"),
				),
				mcp.WithString("category",
					mcp.Description("Only entries with exactly this category"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Max results"),
				),
			),
			handleSearch(b, store.ScopeProject),
		)
	}

	// ─── search_global_memory (profile: agent) ─────────────────────────
	if shouldRegister("search_global_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("search_global_memory",
				mcp.WithDescription("Search global memory by keywords."),
				mcp.WithTitleAnnotation("Search Global Memory"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Keywords"),
				),
				mcp.WithString("category",
					mcp.Description("Only entries with exactly this category"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Max results"),
				),
			),
			handleSearch(b, store.ScopeGlobal),
		)
	}

	// ─── edit_project_memory_entry (profile: agent) ────────────────────
	if shouldRegister("edit_project_memory_entry", allowlist) {
		opts := []mcp.ToolOption{
			mcp.WithDescription(`Edit every entry matching the selector. Selector criteria are combined with AND; at least one is required. Prefer entry_id when you know it.

Only the new_* fields you pass are changed.`),
			mcp.WithTitleAnnotation("Edit Memory Entry"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(false),
		}
		opts = append(opts, selectorOptions()...)
		opts = append(opts,
			mcp.WithString("new_title", mcp.Description("Replacement title")),
			mcp.WithString("new_category", mcp.Description("Replacement category")),
			mcp.WithString("new_entry_type", mcp.Description("Replacement type label")),
			mcp.WithString("new_summary", mcp.Description("Replacement summary")),
			mcp.WithString("new_content", mcp.Description("Replacement body")),
		)
		srv.AddTool(mcp.NewTool("edit_project_memory_entry", opts...), handleEdit(b))
	}

	// ─── delete_project_memory_entry (profile: admin) ──────────────────
	if shouldRegister("delete_project_memory_entry", allowlist) {
		opts := []mcp.ToolOption{
			mcp.WithDescription("Delete every entry matching the selector. Selector criteria are combined with AND; at least one is required."),
			mcp.WithTitleAnnotation("Delete Memory Entry"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		}
		opts = append(opts, selectorOptions()...)
		srv.AddTool(mcp.NewTool("delete_project_memory_entry", opts...), handleDelete(b))
	}

	// ─── delete_project_memory (profile: admin) ────────────────────────
	if shouldRegister("delete_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("delete_project_memory",
				mcp.WithDescription("Delete a project and all of its entries. This cannot be undone."),
				mcp.WithTitleAnnotation("Delete Project Memory"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
			),
			handleDeleteProject(b),
		)
	}

	// ─── list_memory_projects (profile: agent) ─────────────────────────
	if shouldRegister("list_memory_projects", allowlist) {
		srv.AddTool(
			mcp.NewTool("list_memory_projects",
				mcp.WithDescription("List every project that has memory, most recently active first, with entry counts."),
				mcp.WithTitleAnnotation("List Memory Projects"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			handleListProjects(b),
		)
	}

	// ─── get_project_memory_stats (profile: admin) ─────────────────────
	if shouldRegister("get_project_memory_stats", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_project_memory_stats",
				mcp.WithDescription("Show statistics for one project: entry count, categories, date range, words and characters."),
				mcp.WithTitleAnnotation("Project Memory Stats"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Required(),
					mcp.Description("Project name"),
				),
			),
			handleStats(b, store.ScopeProject),
		)
	}

	// ─── get_global_memory_stats (profile: admin) ──────────────────────
	if shouldRegister("get_global_memory_stats", allowlist) {
		srv.AddTool(
			mcp.NewTool("get_global_memory_stats",
				mcp.WithDescription("Show statistics for global memory."),
				mcp.WithTitleAnnotation("Global Memory Stats"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
			),
			handleStats(b, store.ScopeGlobal),
		)
	}

	// ─── export_project_memory (profile: admin) ────────────────────────
	if shouldRegister("export_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("export_project_memory",
				mcp.WithDescription("Export a project's (or global) memory as markdown, json, csv or txt. Returns the document, or writes it to output_path when given."),
				mcp.WithTitleAnnotation("Export Memory"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Description("Project name (required unless scope is global)"),
				),
				mcp.WithString("scope",
					mcp.Description("project (default) or global"),
				),
				mcp.WithString("format",
					mcp.Description("markdown (default), json, csv or txt"),
				),
				mcp.WithBoolean("include_metadata",
					mcp.Description("Include ids, categories and timestamps (default: true)"),
				),
				mcp.WithString("output_path",
					mcp.Description("File to write instead of returning the document"),
				),
			),
			handleExport(b),
		)
	}

	// ─── import_project_memory (profile: admin) ────────────────────────
	if shouldRegister("import_project_memory", allowlist) {
		srv.AddTool(
			mcp.NewTool("import_project_memory",
				mcp.WithDescription("Import entries from a markdown, json, csv or txt document. All entries are imported or none are."),
				mcp.WithTitleAnnotation("Import Memory"),
				mcp.WithReadOnlyHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithOpenWorldHintAnnotation(false),
				mcp.WithString("project",
					mcp.Description("Target project; overrides the project recorded in the document"),
				),
				mcp.WithString("scope",
					mcp.Description("Scope for entries that carry none: project (default) or global"),
				),
				mcp.WithString("format",
					mcp.Description("markdown (default), json, csv or txt"),
				),
				mcp.WithString("content",
					mcp.Description("The document itself"),
				),
				mcp.WithString("input_path",
					mcp.Description("File to read when content is not given"),
				),
				mcp.WithBoolean("preserve_ids",
					mcp.Description("Keep ids from the document when they are above every id in use (default: true for json, false otherwise)"),
				),
			),
			handleImport(b),
		)
	}
}

// ─── Tool Handlers ───────────────────────────────────────────────────────────

func handleSave(b store.Backend, scope store.Scope) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := store.CreateParams{
			Scope:     scope,
			Project:   stringArg(req, "project"),
			Body:      stringArg(req, "content"),
			Title:     stringArg(req, "title"),
			Category:  stringArg(req, "category"),
			EntryType: stringArg(req, "entry_type"),
			Summary:   stringArg(req, "summary"),
		}
		id, err := b.Create(p)
		if err != nil {
			return toolError(err), nil
		}
		e, err := b.Get(id)
		if err != nil {
			return toolError(err), nil
		}

		where := "global memory"
		if scope == store.ScopeProject {
			where = fmt.Sprintf("project %q", e.ProjectName())
		}
		return mcp.NewToolResultText(fmt.Sprintf("Memory saved to %s: #%d %q (%s) at %s", where, e.ID, displayTitle(*e), e.Category, e.CreatedAt)), nil
	}
}

func handleGet(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := int64(intArg(req, "entry_id", 0))
		if id <= 0 {
			return toolError(store.Validation("get", "entry_id", "entry_id is required")), nil
		}
		e, err := b.Get(id)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(FormatEntry(*e)), nil
	}
}

func handleDocument(b store.Backend, scope store.Scope) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := stringArg(req, "project")
		if scope == store.ScopeProject && strings.TrimSpace(project) == "" {
			return toolError(store.Validation("get project memory", "project", "project is required")), nil
		}
		entries, err := b.List(store.ListOptions{Scope: scope, Project: project})
		if err != nil {
			return toolError(err), nil
		}
		if len(entries) == 0 {
			if scope == store.ScopeGlobal {
				return mcp.NewToolResultText("Global memory is empty."), nil
			}
			err := store.WithProjectHint(store.NotFound("get project memory", "project %q has no entries", project), b, project)
			return toolError(err), nil
		}

		reverse(entries)
		header := export.MarkdownHeader(project)
		if scope == store.ScopeGlobal {
			header = export.GlobalMarkdownHeader()
		}
		var buf bytes.Buffer
		if err := export.WriteMarkdown(&buf, header, entries, true); err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}

func handleRecent(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := stringArg(req, "project")
		limit := intArg(req, "limit", 5)
		if limit <= 0 {
			limit = 5
		}
		entries, err := b.List(store.ListOptions{Project: project, Limit: limit})
		if err != nil {
			return toolError(err), nil
		}
		if len(entries) == 0 {
			return toolError(store.WithProjectHint(store.NotFound("recent", "project %q has no entries", project), b, project)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Last %d entries of %q:\n\n", len(entries), project)
		for _, e := range entries {
			sb.WriteString(FormatEntry(e))
			sb.WriteString("\n\n")
		}
		return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
	}
}

func handleList(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := stringArg(req, "project")
		if strings.TrimSpace(project) == "" {
			return toolError(store.Validation("list", "project", "project is required")), nil
		}
		entries, err := b.List(store.ListOptions{
			Project: project,
			Limit:   intArg(req, "limit", 0),
			Offset:  intArg(req, "offset", 0),
		})
		if err != nil {
			return toolError(err), nil
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No entries for project %q.", project)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d entries in %q:\n", len(entries), project)
		for _, e := range entries {
			sb.WriteString(FormatLine(e))
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleSearch(b store.Backend, scope store.Scope) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := stringArg(req, "query")
		opts := store.SearchOptions{
			Scope:    scope,
			Project:  stringArg(req, "project"),
			Category: stringArg(req, "category"),
			Limit:    intArg(req, "limit", 0),
		}
		if scope == store.ScopeGlobal {
			opts.Project = ""
		}

		results, err := b.Search(query, opts)
		if err != nil {
			return toolError(err), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No memories found for: %q", query)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d memories:\n\n", len(results))
		for i, e := range results {
			where := "global"
			if e.Scope == store.ScopeProject {
				where = "project: " + e.ProjectName()
			}
			fmt.Fprintf(&sb, "[%d] #%d (%s) %s\n    %s\n    %s | %s\n\n",
				i+1, e.ID, e.Category, displayTitle(e),
				truncate(e.Body, 300),
				e.CreatedAt, where)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleEdit(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sel, err := selectorArg(req)
		if err != nil {
			return toolError(err), nil
		}
		patch := store.Patch{
			Title:     optionalString(req, "new_title"),
			Category:  optionalString(req, "new_category"),
			EntryType: optionalString(req, "new_entry_type"),
			Summary:   optionalString(req, "new_summary"),
			Body:      optionalString(req, "new_content"),
		}
		n, err := b.Update(sel, patch)
		if err != nil {
			return toolError(store.WithProjectHint(err, b, sel.Project)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Updated %d %s.", n, plural(n, "entry", "entries"))), nil
	}
}

func handleDelete(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sel, err := selectorArg(req)
		if err != nil {
			return toolError(err), nil
		}
		n, err := b.Delete(sel)
		if err != nil {
			return toolError(store.WithProjectHint(err, b, sel.Project)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %d %s.", n, plural(n, "entry", "entries"))), nil
	}
}

func handleDeleteProject(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := stringArg(req, "project")
		n, err := b.DeleteProject(project)
		if err != nil {
			return toolError(store.WithProjectHint(err, b, project)), nil
		}
		logger.ForComponent("mcp").Info("project deleted", "project", project, "entries", n)
		return mcp.NewToolResultText(fmt.Sprintf("Deleted project %q (%d %s).", project, n, plural(n, "entry", "entries"))), nil
	}
}

func handleListProjects(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := b.ListProjects()
		if err != nil {
			return toolError(err), nil
		}
		if len(projects) == 0 {
			return mcp.NewToolResultText("No projects yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d projects:\n", len(projects))
		for _, p := range projects {
			fmt.Fprintf(&sb, "- %s: %d %s, last activity %s\n", p.Project, p.Count, plural(p.Count, "entry", "entries"), p.LastActivity)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleStats(b store.Backend, scope store.Scope) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := stringArg(req, "project")
		sum, err := b.Stats(scope, project)
		if err != nil {
			return toolError(store.WithProjectHint(err, b, project)), nil
		}
		return mcp.NewToolResultText(FormatSummary(*sum)), nil
	}
}

func handleExport(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scope, err := scopeArg(req)
		if err != nil {
			return toolError(err), nil
		}
		format, err := export.ParseFormat(stringArg(req, "format"))
		if err != nil {
			return toolError(err), nil
		}
		project := stringArg(req, "project")
		if scope == store.ScopeProject && strings.TrimSpace(project) == "" {
			return toolError(store.Validation("export", "project", "project is required")), nil
		}

		entries, err := b.List(store.ListOptions{Scope: scope, Project: project})
		if err != nil {
			return toolError(err), nil
		}
		if scope == store.ScopeProject && len(entries) == 0 {
			return toolError(store.WithProjectHint(store.NotFound("export", "project %q has no entries", project), b, project)), nil
		}
		reverse(entries)

		data, err := export.EncodeBytes(entries, export.Options{
			Format:          format,
			IncludeMetadata: boolArg(req, "include_metadata", true),
			Title:           project,
			Global:          scope == store.ScopeGlobal,
		})
		if err != nil {
			return toolError(err), nil
		}

		if path := stringArg(req, "output_path"); path != "" {
			if err := export.WriteFile(path, data); err != nil {
				return toolError(store.Storage("export", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Exported %d %s to %s", len(entries), plural(len(entries), "entry", "entries"), path)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func handleImport(b store.Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scope, err := scopeArg(req)
		if err != nil {
			return toolError(err), nil
		}
		format, err := export.ParseFormat(stringArg(req, "format"))
		if err != nil {
			return toolError(err), nil
		}

		content := stringArg(req, "content")
		if content == "" {
			path := stringArg(req, "input_path")
			if path == "" {
				return toolError(store.Validation("import", "content", "content or input_path is required")), nil
			}
			data, err := readFile(path)
			if err != nil {
				return toolError(store.Storage("import", err)), nil
			}
			content = string(data)
		}

		entries, err := export.Decode(strings.NewReader(content), format)
		if err != nil {
			return toolError(err), nil
		}
		n, err := b.Import(entries, store.ImportOptions{
			Scope:       scope,
			Project:     stringArg(req, "project"),
			PreserveIDs: boolArg(req, "preserve_ids", format == export.JSON),
		})
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Imported %d %s.", n, plural(n, "entry", "entries"))), nil
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// toolError reports a failure as a tool result so the agent can read it.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", store.KindOf(err), err.Error()))
}

func selectorArg(req mcp.CallToolRequest) (store.Selector, error) {
	scope, err := scopeArg(req)
	if err != nil {
		return store.Selector{}, err
	}
	return store.Selector{
		Scope:     scope,
		Project:   stringArg(req, "project"),
		ID:        int64(intArg(req, "entry_id", 0)),
		Timestamp: stringArg(req, "timestamp"),
		Title:     stringArg(req, "title"),
		Category:  stringArg(req, "category"),
		Body:      stringArg(req, "content_match"),
	}, nil
}

func scopeArg(req mcp.CallToolRequest) (store.Scope, error) {
	raw := stringArg(req, "scope")
	if raw == "" {
		return store.ScopeProject, nil
	}
	return store.ParseScope(raw)
}

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func optionalString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func displayTitle(e store.Entry) string {
	if e.Title == "" {
		return "Untitled"
	}
	return e.Title
}

// FormatEntry renders one entry in full, body last.
func FormatEntry(e store.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d [%s] %s\n", e.ID, e.Category, displayTitle(e))
	if e.Scope == store.ScopeProject {
		fmt.Fprintf(&sb, "Project: %s\n", e.ProjectName())
	} else {
		sb.WriteString("Scope: global\n")
	}
	if e.EntryType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", e.EntryType)
	}
	if e.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", e.Summary)
	}
	fmt.Fprintf(&sb, "Created: %s\nUpdated: %s\n\n%s", e.CreatedAt, e.UpdatedAt, e.Body)
	return sb.String()
}

// FormatLine renders an entry as a single listing line.
func FormatLine(e store.Entry) string {
	return fmt.Sprintf("#%d %s [%s] %s", e.ID, e.CreatedAt, e.Category, displayTitle(e))
}

// FormatSummary renders statistics the same way for every surface.
func FormatSummary(s store.ProjectSummary) string {
	name := "Global memory"
	if s.Scope == store.ScopeProject {
		name = fmt.Sprintf("Project %q", s.Project)
	}
	categories := "none"
	if len(s.Categories) > 0 {
		categories = strings.Join(s.Categories, ", ")
	}
	out := fmt.Sprintf("%s\n- Entries: %d\n- Categories: %s\n- Words: %d\n- Characters: %d",
		name, s.Count, categories, s.TotalWords, s.TotalChars)
	if s.Count > 0 {
		out += fmt.Sprintf("\n- First entry: %s\n- Latest entry: %s\n- Last activity: %s", s.FirstCreated, s.LastCreated, s.LastActivity)
	}
	return out
}

func reverse(entries []store.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

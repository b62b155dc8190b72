package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcppkg "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wty0512/memory-mcp-server/internal/store"
)

func newMCPTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func callResultText(t *testing.T, res *mcppkg.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected non-empty tool result")
	}
	text, ok := mcppkg.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content")
	}
	return text.Text
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	req := mcppkg.CallToolRequest{Params: mcppkg.CallToolParams{Arguments: args}}
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return callResultText(t, res), res.IsError
}

func TestNewServerRegistersTools(t *testing.T) {
	s := newMCPTestStore(t)
	if srv := NewServer(s); srv == nil {
		t.Fatalf("expected MCP server instance")
	}
}

func TestResolveTools(t *testing.T) {
	if ResolveTools("") != nil || ResolveTools("all") != nil || ResolveTools("agent,all") != nil {
		t.Fatalf("empty and all must mean every tool")
	}
	got := ResolveTools("admin, search_project_memory")
	if !got["delete_project_memory"] || !got["search_project_memory"] {
		t.Fatalf("unexpected tool set: %v", got)
	}
	if got["save_project_memory"] {
		t.Fatalf("agent tool leaked into admin profile")
	}
	for name := range ProfileAgent {
		if ProfileAdmin[name] {
			t.Fatalf("%s is in both profiles", name)
		}
	}
}

func TestSaveThenGet(t *testing.T) {
	s := newMCPTestStore(t)
	text, isErr := call(t, handleSave(s, store.ScopeProject), map[string]any{
		"project":  "webapp",
		"title":    "Auth choice",
		"content":  "Sessions live in redis",
		"category": "decision",
	})
	if isErr {
		t.Fatalf("unexpected save error: %s", text)
	}
	if !strings.Contains(text, `project "webapp"`) || !strings.Contains(text, "#1") {
		t.Fatalf("unexpected save output: %q", text)
	}

	text, isErr = call(t, handleGet(s), map[string]any{"entry_id": float64(1)})
	if isErr {
		t.Fatalf("unexpected get error: %s", text)
	}
	if !strings.Contains(text, "Sessions live in redis") || !strings.Contains(text, "Project: webapp") {
		t.Fatalf("unexpected get output: %q", text)
	}
}

func TestSaveRequiresProjectAndContent(t *testing.T) {
	s := newMCPTestStore(t)
	text, isErr := call(t, handleSave(s, store.ScopeProject), map[string]any{"content": "x"})
	if !isErr || !strings.HasPrefix(text, "validation_error:") {
		t.Fatalf("expected validation error, got %q", text)
	}

	text, isErr = call(t, handleSave(s, store.ScopeGlobal), map[string]any{"title": "only title"})
	if !isErr || !strings.Contains(text, "body") {
		t.Fatalf("expected body validation error, got %q", text)
	}
}

func TestGetMissingEntryIsNotFound(t *testing.T) {
	s := newMCPTestStore(t)
	text, isErr := call(t, handleGet(s), map[string]any{"entry_id": float64(99)})
	if !isErr || !strings.HasPrefix(text, "not_found:") {
		t.Fatalf("expected not_found, got %q", text)
	}
}

func TestSearchProjectAndGlobal(t *testing.T) {
	s := newMCPTestStore(t)
	mustSave := func(scope store.Scope, args map[string]any) {
		if text, isErr := call(t, handleSave(s, scope), args); isErr {
			t.Fatalf("save: %s", text)
		}
	}
	mustSave(store.ScopeProject, map[string]any{"project": "webapp", "content": "Use SQLite in WAL mode"})
	mustSave(store.ScopeGlobal, map[string]any{"content": "Prefer SQLite for local tools"})

	text, _ := call(t, handleSearch(s, store.ScopeProject), map[string]any{"query": "sqlite"})
	if !strings.Contains(text, "Found 1 memories") || !strings.Contains(text, "project: webapp") {
		t.Fatalf("unexpected project search output: %q", text)
	}

	text, _ = call(t, handleSearch(s, store.ScopeGlobal), map[string]any{"query": "sqlite", "project": "webapp"})
	if !strings.Contains(text, "Found 1 memories") || !strings.Contains(text, "| global") {
		t.Fatalf("unexpected global search output: %q", text)
	}

	text, _ = call(t, handleSearch(s, store.ScopeProject), map[string]any{"query": "postgres"})
	if !strings.Contains(text, "No memories found") {
		t.Fatalf("expected empty result, got %q", text)
	}

	text, isErr := call(t, handleSearch(s, store.ScopeProject), map[string]any{"query": ""})
	if !isErr || !strings.HasPrefix(text, "validation_error:") {
		t.Fatalf("expected validation error for empty query, got %q", text)
	}
}

func TestEditAndDeleteBySelector(t *testing.T) {
	s := newMCPTestStore(t)
	for _, title := range []string{"alpha", "beta"} {
		if text, isErr := call(t, handleSave(s, store.ScopeProject), map[string]any{"project": "p", "title": title, "content": title + " body"}); isErr {
			t.Fatalf("save: %s", text)
		}
	}

	text, isErr := call(t, handleEdit(s), map[string]any{"project": "p", "title": "alp", "new_content": "rewritten"})
	if isErr || !strings.Contains(text, "Updated 1 entry") {
		t.Fatalf("unexpected edit output: %q", text)
	}
	e, err := s.Get(1)
	if err != nil || e.Body != "rewritten" {
		t.Fatalf("edit not applied: %+v %v", e, err)
	}

	text, isErr = call(t, handleEdit(s), map[string]any{"project": "p", "new_content": "x"})
	if !isErr || !strings.Contains(text, "selector") {
		t.Fatalf("expected selector validation error, got %q", text)
	}

	text, isErr = call(t, handleDelete(s), map[string]any{"project": "p", "entry_id": float64(2)})
	if isErr || !strings.Contains(text, "Deleted 1 entry") {
		t.Fatalf("unexpected delete output: %q", text)
	}
}

func TestDeleteProjectSuggestsNames(t *testing.T) {
	s := newMCPTestStore(t)
	if text, isErr := call(t, handleSave(s, store.ScopeProject), map[string]any{"project": "webapp", "content": "x"}); isErr {
		t.Fatalf("save: %s", text)
	}

	text, isErr := call(t, handleDeleteProject(s), map[string]any{"project": "wbapp"})
	if !isErr || !strings.HasPrefix(text, "not_found:") || !strings.Contains(text, `did you mean "webapp"`) {
		t.Fatalf("expected hinted not_found, got %q", text)
	}

	text, isErr = call(t, handleDeleteProject(s), map[string]any{"project": "webapp"})
	if isErr || !strings.Contains(text, "1 entry") {
		t.Fatalf("unexpected delete output: %q", text)
	}

	text, _ = call(t, handleListProjects(s), map[string]any{})
	if text != "No projects yet." {
		t.Fatalf("expected no projects, got %q", text)
	}
}

func TestStatsAndDocument(t *testing.T) {
	s := newMCPTestStore(t)
	for _, body := range []string{"first note here", "second note"} {
		if text, isErr := call(t, handleSave(s, store.ScopeProject), map[string]any{"project": "p", "content": body, "category": "notes"}); isErr {
			t.Fatalf("save: %s", text)
		}
	}

	text, isErr := call(t, handleStats(s, store.ScopeProject), map[string]any{"project": "p"})
	if isErr || !strings.Contains(text, "Entries: 2") || !strings.Contains(text, "Words: 5") || !strings.Contains(text, "Categories: notes") {
		t.Fatalf("unexpected stats: %q", text)
	}

	text, isErr = call(t, handleStats(s, store.ScopeGlobal), map[string]any{})
	if isErr || !strings.Contains(text, "Entries: 0") {
		t.Fatalf("unexpected global stats: %q", text)
	}

	text, isErr = call(t, handleDocument(s, store.ScopeProject), map[string]any{"project": "p"})
	if isErr || !strings.HasPrefix(text, "# AI Memory for p\n") {
		t.Fatalf("unexpected document: %q", text)
	}
	if strings.Index(text, "first note here") > strings.Index(text, "second note") {
		t.Fatalf("document must be oldest first: %q", text)
	}

	text, isErr = call(t, handleRecent(s), map[string]any{"project": "p", "limit": float64(1)})
	if isErr || !strings.Contains(text, "second note") || strings.Contains(text, "first note here") {
		t.Fatalf("unexpected recent output: %q", text)
	}
}

func TestExportImportThroughFiles(t *testing.T) {
	src := newMCPTestStore(t)
	if text, isErr := call(t, handleSave(src, store.ScopeProject), map[string]any{"project": "p", "title": "kept", "content": "survives export"}); isErr {
		t.Fatalf("save: %s", text)
	}

	path := filepath.Join(t.TempDir(), "p.json")
	text, isErr := call(t, handleExport(src), map[string]any{"project": "p", "format": "json", "output_path": path})
	if isErr || !strings.Contains(text, "Exported 1 entry") {
		t.Fatalf("unexpected export output: %q", text)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	dst := newMCPTestStore(t)
	text, isErr = call(t, handleImport(dst), map[string]any{"format": "json", "input_path": path, "project": "copy"})
	if isErr || !strings.Contains(text, "Imported 1 entry") {
		t.Fatalf("unexpected import output: %q", text)
	}
	entries, err := dst.List(store.ListOptions{Project: "copy"})
	if err != nil || len(entries) != 1 || entries[0].Title != "kept" {
		t.Fatalf("import not applied: %+v %v", entries, err)
	}

	text, isErr = call(t, handleImport(dst), map[string]any{"format": "json", "content": "{not json"})
	if !isErr || !strings.HasPrefix(text, "format_error:") {
		t.Fatalf("expected format error, got %q", text)
	}

	text, isErr = call(t, handleExport(src), map[string]any{"project": "p", "format": "xml"})
	if !isErr || !strings.HasPrefix(text, "format_error:") {
		t.Fatalf("expected format error for xml, got %q", text)
	}
}

func TestJSONImportKeepsIDsUnlessDisabled(t *testing.T) {
	src := newMCPTestStore(t)
	if _, err := src.Create(store.CreateParams{Project: "other", Body: "not exported"}); err != nil {
		t.Fatal(err)
	}
	keptID, err := src.Create(store.CreateParams{Project: "p", Title: "kept", Body: "exported"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "p.json")
	if text, isErr := call(t, handleExport(src), map[string]any{"project": "p", "format": "json", "output_path": path}); isErr {
		t.Fatalf("export: %s", text)
	}

	dst := newMCPTestStore(t)
	if text, isErr := call(t, handleImport(dst), map[string]any{"format": "json", "input_path": path}); isErr {
		t.Fatalf("import: %s", text)
	}
	e, err := dst.Get(keptID)
	if err != nil || e.Title != "kept" {
		t.Fatalf("expected id %d preserved by default: %+v %v", keptID, e, err)
	}

	fresh := newMCPTestStore(t)
	if text, isErr := call(t, handleImport(fresh), map[string]any{"format": "json", "input_path": path, "preserve_ids": false}); isErr {
		t.Fatalf("import: %s", text)
	}
	e, err = fresh.Get(1)
	if err != nil || e.Title != "kept" {
		t.Fatalf("expected a fresh id with preserve_ids=false: %+v %v", e, err)
	}
}

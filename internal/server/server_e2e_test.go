package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/wty0512/memory-mcp-server/internal/mdstore"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

func newE2EServer(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	httpServer := httptest.NewServer(New(s, 0).Handler())
	t.Cleanup(func() {
		httpServer.Close()
		_ = s.Close()
	})

	return s, httpServer
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return out
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func expectError(t *testing.T, resp *http.Response, status int, kind string) errorBody {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, body)
	}
	out := decodeJSON[errorBody](t, resp)
	if out.Error.Kind != kind {
		t.Fatalf("expected kind %q, got %+v", kind, out.Error)
	}
	return out
}

func createEntry(t *testing.T, ts *httptest.Server, body map[string]any) int64 {
	t.Helper()
	resp := postJSON(t, ts.Client(), ts.URL+"/entries", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating entry, got %d", resp.StatusCode)
	}
	out := decodeJSON[map[string]any](t, resp)
	return int64(out["id"].(float64))
}

func TestHealth(t *testing.T) {
	_, ts := newE2EServer(t)
	resp := get(t, ts.Client(), ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decodeJSON[map[string]any](t, resp)
	if out["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", out)
	}
}

func TestEntryLifecycleE2E(t *testing.T) {
	_, ts := newE2EServer(t)
	client := ts.Client()

	id := createEntry(t, ts, map[string]any{
		"project":  "webapp",
		"title":    "Auth architecture",
		"body":     "Use middleware chain for auth",
		"category": "architecture",
	})

	entry := decodeJSON[store.Entry](t, get(t, client, ts.URL+"/entries/"+strconv.FormatInt(id, 10)))
	if entry.ProjectName() != "webapp" || entry.CreatedAt != entry.UpdatedAt {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	editResp := postJSON(t, client, ts.URL+"/entries/edit", map[string]any{
		"project":     "webapp",
		"entry_id":    id,
		"new_content": "Move auth to the gateway",
	})
	if editResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 editing, got %d", editResp.StatusCode)
	}
	if n := decodeJSON[map[string]any](t, editResp)["updated"]; n != float64(1) {
		t.Fatalf("expected 1 updated, got %v", n)
	}

	search := decodeJSON[map[string]any](t, get(t, client, ts.URL+"/search?q=gateway&project=webapp"))
	if search["count"] != float64(1) {
		t.Fatalf("expected edited body to be searchable, got %v", search)
	}
	search = decodeJSON[map[string]any](t, get(t, client, ts.URL+"/search?q=middleware&project=webapp"))
	if search["count"] != float64(0) {
		t.Fatalf("old body must no longer match, got %v", search)
	}

	delResp := postJSON(t, client, ts.URL+"/entries/delete", map[string]any{"project": "webapp", "entry_id": id})
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deleting, got %d", delResp.StatusCode)
	}
	delResp.Body.Close()

	expectError(t, get(t, client, ts.URL+"/entries/"+strconv.FormatInt(id, 10)), http.StatusNotFound, "not_found")
}

func TestErrorMappingE2E(t *testing.T) {
	_, ts := newE2EServer(t)
	client := ts.Client()

	out := expectError(t, postJSON(t, client, ts.URL+"/entries", map[string]any{"project": "p"}), http.StatusBadRequest, "validation_error")
	if out.Error.Field != "body" {
		t.Fatalf("expected field body, got %+v", out.Error)
	}

	expectError(t, get(t, client, ts.URL+"/search?q="), http.StatusBadRequest, "validation_error")
	expectError(t, get(t, client, ts.URL+"/entries/abc"), http.StatusBadRequest, "validation_error")
	expectError(t, postJSON(t, client, ts.URL+"/entries/delete", map[string]any{"project": "p"}), http.StatusBadRequest, "validation_error")

	resp, err := client.Post(ts.URL+"/import?format=json", "application/json", strings.NewReader(`{"version": 2, "entries": []}`))
	if err != nil {
		t.Fatal(err)
	}
	expectError(t, resp, http.StatusConflict, "conflict")

	resp, err = client.Post(ts.URL+"/import?format=csv", "text/csv", strings.NewReader("title\nno body column\n"))
	if err != nil {
		t.Fatal(err)
	}
	expectError(t, resp, http.StatusUnprocessableEntity, "format_error")
}

func TestProjectsStatsAndDeleteProjectE2E(t *testing.T) {
	_, ts := newE2EServer(t)
	client := ts.Client()

	createEntry(t, ts, map[string]any{"project": "p1", "body": "one two three"})
	createEntry(t, ts, map[string]any{"project": "p2", "body": "four"})

	projects := decodeJSON[struct {
		Count    int                    `json:"count"`
		Projects []store.ProjectSummary `json:"projects"`
	}](t, get(t, client, ts.URL+"/projects"))
	if projects.Count != 2 {
		t.Fatalf("expected 2 projects, got %+v", projects)
	}

	stats := decodeJSON[store.ProjectSummary](t, get(t, client, ts.URL+"/projects/p1/stats"))
	if stats.Count != 1 || stats.TotalWords != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/projects/p1", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deleting project, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/projects/p1", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	expectError(t, resp, http.StatusNotFound, "not_found")

	list := decodeJSON[map[string]any](t, get(t, client, ts.URL+"/projects/p1/entries"))
	if list["count"] != float64(0) {
		t.Fatalf("deleted project must list no entries, got %v", list)
	}
}

func TestGlobalRoutesE2E(t *testing.T) {
	_, ts := newE2EServer(t)
	client := ts.Client()

	resp := postJSON(t, client, ts.URL+"/global/entries", map[string]any{"project": "ignored", "body": "Always write tests first"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	createEntry(t, ts, map[string]any{"project": "p", "body": "tests are flaky here"})

	search := decodeJSON[map[string]any](t, get(t, client, ts.URL+"/global/search?q=tests"))
	if search["count"] != float64(1) {
		t.Fatalf("global search must only see global entries, got %v", search)
	}

	stats := decodeJSON[store.ProjectSummary](t, get(t, client, ts.URL+"/global/stats"))
	if stats.Scope != store.ScopeGlobal || stats.Count != 1 {
		t.Fatalf("unexpected global stats: %+v", stats)
	}

	list := decodeJSON[map[string]any](t, get(t, client, ts.URL+"/global/entries"))
	if list["count"] != float64(1) {
		t.Fatalf("unexpected global list: %v", list)
	}
}

func TestExportImportRoundTripE2E(t *testing.T) {
	_, src := newE2EServer(t)
	createEntry(t, src, map[string]any{"project": "p", "title": "first", "body": "alpha"})
	createEntry(t, src, map[string]any{"project": "p", "title": "second", "body": "beta"})

	resp := get(t, src.Client(), src.URL+"/projects/p/export?format=json")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	// The markdown backend serves the same routes.
	md, err := mdstore.New(t.TempDir(), mdstore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	dst := httptest.NewServer(New(md, 0).Handler())
	defer dst.Close()

	q := url.Values{"format": {"json"}, "project": {"copy"}, "preserve_ids": {"true"}}
	resp, err = dst.Client().Post(dst.URL+"/import?"+q.Encode(), "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 importing, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	list := decodeJSON[struct {
		Entries []store.Entry `json:"entries"`
	}](t, get(t, dst.Client(), dst.URL+"/projects/copy/entries"))
	if len(list.Entries) != 2 || list.Entries[0].Title != "second" || list.Entries[1].ID != 1 {
		t.Fatalf("unexpected imported entries: %+v", list.Entries)
	}

	resp = get(t, dst.Client(), dst.URL+"/projects/copy/export?format=markdown&include_metadata=false")
	doc, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(string(doc), "# AI Memory for copy\n") || strings.Contains(string(doc), "<!-- memory") {
		t.Fatalf("unexpected markdown export: %q", doc)
	}
}

func TestImportRejectsOversizedPayloadE2E(t *testing.T) {
	old := maxImportBytes
	maxImportBytes = 64
	t.Cleanup(func() { maxImportBytes = old })

	s, ts := newE2EServer(t)
	payload := strings.Repeat("line of text that keeps going\n", 10)
	resp, err := ts.Client().Post(ts.URL+"/import?format=txt&project=p", "text/plain", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	expectError(t, resp, http.StatusUnprocessableEntity, "format_error")

	entries, err := s.List(store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("oversized payload imported %d entries", len(entries))
	}
}

func TestJSONImportKeepsIDsByDefaultE2E(t *testing.T) {
	_, src := newE2EServer(t)
	createEntry(t, src, map[string]any{"project": "other", "body": "not exported"})
	kept := createEntry(t, src, map[string]any{"project": "p", "title": "kept", "body": "exported"})

	resp := get(t, src.Client(), src.URL+"/projects/p/export?format=json")
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	_, dst := newE2EServer(t)
	resp, err = dst.Client().Post(dst.URL+"/import?format=json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 importing, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	e := decodeJSON[store.Entry](t, get(t, dst.Client(), dst.URL+"/entries/"+strconv.FormatInt(kept, 10)))
	if e.ID != kept || e.Title != "kept" || e.ProjectName() != "p" {
		t.Fatalf("expected id %d preserved, got %+v", kept, e)
	}
}

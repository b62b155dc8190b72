// Package mdstore is the human-readable backend: one markdown file per
// project plus one for global entries, all in a single directory.
//
// It satisfies the same store.Backend contract as the SQLite store. There is
// no index; search runs both tiers in memory over the parsed files. Writes
// go through a temp file and rename, and a mutex serializes operations
// inside the process.
package mdstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/wty0512/memory-mcp-server/internal/export"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

const (
	globalFile = "_global.md"
	stateFile  = ".state.yaml"
)

type Options struct {
	DefaultSearchResults int
	MaxSearchResults     int
}

type Store struct {
	mu   sync.Mutex
	dir  string
	opts Options
}

var _ store.Backend = (*Store)(nil)

type state struct {
	NextID int64 `yaml:"next_id"`
}

// document is one file on disk.
type document struct {
	path    string
	project string
	global  bool
	entries []store.Entry
	dirty   bool
}

func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, store.Storage("open", fmt.Errorf("create markdown dir: %w", err))
	}
	if opts.DefaultSearchResults <= 0 {
		opts.DefaultSearchResults = 10
	}
	s := &Store{dir: dir, opts: opts}

	// Loading once assigns ids to hand-written sections and persists them.
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

// Dir is the directory holding the markdown files.
func (s *Store) Dir() string { return s.dir }

// ─── Loading / Saving ────────────────────────────────────────────────────────

func (s *Store) readState() (state, error) {
	var st state
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, store.Storage("load", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, store.Storage("load", fmt.Errorf("parse %s: %w", stateFile, err))
	}
	return st, nil
}

func (s *Store) writeState(st state) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return store.Storage("save", err)
	}
	return store.Storage("save", export.WriteFile(filepath.Join(s.dir, stateFile), data))
}

// load parses every markdown file. Sections without an id get the next
// free one and their file is rewritten.
func (s *Store) load() ([]*document, state, error) {
	st, err := s.readState()
	if err != nil {
		return nil, st, err
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.md"))
	if err != nil {
		return nil, st, store.Storage("load", err)
	}
	sort.Strings(paths)

	var docs []*document
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, st, store.Storage("load", err)
		}
		parsed, err := export.ParseMarkdown(f)
		f.Close()
		if err != nil {
			return nil, st, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}

		doc := &document{path: path, project: parsed.Project, global: parsed.Global}
		if filepath.Base(path) == globalFile {
			doc.global = true
		}
		if !doc.global && doc.project == "" {
			doc.project = strings.TrimSuffix(filepath.Base(path), ".md")
		}
		for _, e := range parsed.Entries {
			doc.entries = append(doc.entries, s.adopt(doc, e))
		}
		for _, e := range doc.entries {
			if e.ID >= st.NextID {
				st.NextID = e.ID + 1
			}
		}
		docs = append(docs, doc)
	}

	if st.NextID == 0 {
		st.NextID = 1
	}
	assigned := false
	for _, doc := range docs {
		for i := range doc.entries {
			if doc.entries[i].ID == 0 {
				doc.entries[i].ID = st.NextID
				st.NextID++
				doc.dirty = true
				assigned = true
			}
		}
	}
	if assigned {
		if err := s.writeState(st); err != nil {
			return nil, st, err
		}
		if err := s.save(docs); err != nil {
			return nil, st, err
		}
	}
	return docs, st, nil
}

// adopt forces a parsed entry into the scope of the file holding it.
func (s *Store) adopt(doc *document, e store.Entry) store.Entry {
	if doc.global {
		e.Scope, e.Project = store.ScopeGlobal, nil
	} else {
		p := doc.project
		e.Scope, e.Project = store.ScopeProject, &p
	}
	if e.CreatedAt == "" {
		e.CreatedAt = store.Now()
	}
	if e.UpdatedAt == "" || e.UpdatedAt < e.CreatedAt {
		e.UpdatedAt = e.CreatedAt
	}
	return e
}

// save rewrites every dirty document. All temp files are written before
// any rename so a failed render leaves every file untouched.
func (s *Store) save(docs []*document) error {
	type pending struct {
		path string
		data []byte
	}
	var writes []pending
	for _, doc := range docs {
		if !doc.dirty {
			continue
		}
		if len(doc.entries) == 0 {
			writes = append(writes, pending{path: doc.path})
			continue
		}
		header := export.MarkdownHeader(doc.project)
		if doc.global {
			header = export.GlobalMarkdownHeader()
		}
		entries := append([]store.Entry(nil), doc.entries...)
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].CreatedAt != entries[j].CreatedAt {
				return entries[i].CreatedAt < entries[j].CreatedAt
			}
			return entries[i].ID < entries[j].ID
		})
		var buf bytes.Buffer
		if err := export.WriteMarkdown(&buf, header, entries, true); err != nil {
			return store.Storage("save", err)
		}
		writes = append(writes, pending{path: doc.path, data: buf.Bytes()})
	}

	for _, w := range writes {
		if w.data == nil {
			if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
				return store.Storage("save", err)
			}
			continue
		}
		if err := export.WriteFile(w.path, w.data); err != nil {
			return store.Storage("save", err)
		}
	}
	for _, doc := range docs {
		doc.dirty = false
	}
	return nil
}

// docFor finds or creates the document for an entry's scope.
func (s *Store) docFor(docs []*document, e store.Entry) ([]*document, *document) {
	for _, doc := range docs {
		if e.Scope == store.ScopeGlobal && doc.global {
			return docs, doc
		}
		if e.Scope == store.ScopeProject && !doc.global && doc.project == e.ProjectName() {
			return docs, doc
		}
	}
	doc := &document{global: e.Scope == store.ScopeGlobal}
	if doc.global {
		doc.path = filepath.Join(s.dir, globalFile)
	} else {
		doc.project = e.ProjectName()
		doc.path = s.projectPath(docs, doc.project)
	}
	return append(docs, doc), doc
}

// projectPath picks a file name for a new project that no other document
// already uses.
func (s *Store) projectPath(docs []*document, project string) string {
	base := Slug(project)
	taken := make(map[string]bool, len(docs))
	for _, d := range docs {
		taken[d.path] = true
	}
	path := filepath.Join(s.dir, base+".md")
	for i := 2; taken[path]; i++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s-%d.md", base, i))
	}
	return path
}

// Slug maps a project name to a safe file stem.
func Slug(project string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(project) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), ".")
	if slug == "" || slug == strings.TrimSuffix(globalFile, ".md") {
		slug = "project_" + slug
	}
	return slug
}

func allEntries(docs []*document) []store.Entry {
	var out []store.Entry
	for _, doc := range docs {
		out = append(out, doc.entries...)
	}
	return out
}

func inScope(e store.Entry, scope store.Scope, project string) bool {
	switch {
	case scope == store.ScopeGlobal:
		return e.Scope == store.ScopeGlobal
	case project != "":
		return e.Scope == store.ScopeProject && e.ProjectName() == project
	case scope == store.ScopeProject:
		return e.Scope == store.ScopeProject
	default:
		return true
	}
}

// ─── Backend ─────────────────────────────────────────────────────────────────

// All returns every entry in every file, newest first.
func (s *Store) All() ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, _, err := s.load()
	if err != nil {
		return nil, err
	}
	out := allEntries(docs)
	store.SortRecent(out)
	return out, nil
}

func (s *Store) Create(p store.CreateParams) (int64, error) {
	e, err := p.Normalize("create")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, st, err := s.load()
	if err != nil {
		return 0, err
	}
	ts := store.Now()
	e.ID, e.CreatedAt, e.UpdatedAt = st.NextID, ts, ts
	st.NextID++

	// The counter is persisted first so an id is burned even if the
	// document write fails.
	if err := s.writeState(st); err != nil {
		return 0, err
	}
	_, doc := s.docFor(docs, e)
	doc.entries = append(doc.entries, e)
	doc.dirty = true
	if err := s.save([]*document{doc}); err != nil {
		return 0, err
	}
	return e.ID, nil
}

func (s *Store) Get(id int64) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, _, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, e := range allEntries(docs) {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, store.NotFound("get", "entry #%d not found", id)
}

func (s *Store) List(opts store.ListOptions) ([]store.Entry, error) {
	if opts.Offset < 0 {
		return nil, store.Validation("list", "offset", "offset must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, _, err := s.load()
	if err != nil {
		return nil, err
	}
	project := strings.TrimSpace(opts.Project)
	out := []store.Entry{}
	for _, e := range allEntries(docs) {
		if inScope(e, opts.Scope, project) {
			out = append(out, e)
		}
	}
	store.SortRecent(out)
	return store.Page(out, opts.Limit, opts.Offset), nil
}

// mutate applies fn to every entry the selector matches and saves the
// touched documents. fn returns false to drop the entry.
func (s *Store) mutate(op string, sel store.Selector, fn func(e *store.Entry) bool) (int, error) {
	if err := sel.Validate(op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, _, err := s.load()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, doc := range docs {
		kept := doc.entries[:0:0]
		for _, e := range doc.entries {
			if !sel.Matches(e) {
				kept = append(kept, e)
				continue
			}
			n++
			doc.dirty = true
			if fn(&e) {
				kept = append(kept, e)
			}
		}
		doc.entries = kept
	}
	if n == 0 {
		return 0, store.NotFound(op, "no entries match the selector")
	}
	if err := s.save(docs); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Update(sel store.Selector, patch store.Patch) (int, error) {
	if err := patch.Validate("update"); err != nil {
		return 0, err
	}
	ts := store.Now()
	return s.mutate("update", sel, func(e *store.Entry) bool {
		patch.Apply(e, ts)
		return true
	})
}

func (s *Store) Delete(sel store.Selector) (int, error) {
	return s.mutate("delete", sel, func(*store.Entry) bool { return false })
}

func (s *Store) DeleteProject(project string) (int, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return 0, store.Validation("delete project", "project", "project is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, _, err := s.load()
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if doc.global || doc.project != project || len(doc.entries) == 0 {
			continue
		}
		n := len(doc.entries)
		doc.entries = nil
		doc.dirty = true
		if err := s.save([]*document{doc}); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, store.NotFound("delete project", "project %q has no entries", project)
}

func (s *Store) Search(query string, opts store.SearchOptions) ([]store.Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, store.Validation("search", "query", "query must not be empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.opts.DefaultSearchResults
	}
	if s.opts.MaxSearchResults > 0 && limit > s.opts.MaxSearchResults {
		limit = s.opts.MaxSearchResults
	}

	candidates, err := s.List(store.ListOptions{Scope: opts.Scope, Project: opts.Project})
	if err != nil {
		return nil, err
	}
	if opts.Category != "" {
		filtered := candidates[:0]
		for _, e := range candidates {
			if e.Category == opts.Category {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
	}
	return store.RankInMemory(candidates, query, limit), nil
}

func (s *Store) Stats(scope store.Scope, project string) (*store.ProjectSummary, error) {
	project = strings.TrimSpace(project)
	if scope == "" {
		scope = store.ScopeProject
	}
	if scope == store.ScopeGlobal {
		project = ""
	} else if project == "" {
		return nil, store.Validation("stats", "project", "project is required")
	}
	entries, err := s.List(store.ListOptions{Scope: scope, Project: project})
	if err != nil {
		return nil, err
	}
	if scope == store.ScopeProject && len(entries) == 0 {
		return nil, store.NotFound("stats", "project %q has no entries", project)
	}
	sum := store.Summarize(scope, project, entries)
	return &sum, nil
}

func (s *Store) ListProjects() ([]store.ProjectSummary, error) {
	entries, err := s.List(store.ListOptions{Scope: store.ScopeProject})
	if err != nil {
		return nil, err
	}
	return store.GroupProjects(entries), nil
}

// Import adds entries all-or-nothing: nothing is written until every entry
// validated. Ids are preserved only above the current counter.
func (s *Store) Import(entries []store.Entry, opts store.ImportOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, st, err := s.load()
	if err != nil {
		return 0, err
	}

	ts := store.Now()
	prepared := make([]store.Entry, 0, len(entries))
	for i, e := range entries {
		p, err := store.PrepareImport("import", i, e, opts, ts)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, p)
	}

	for _, e := range prepared {
		if !opts.PreserveIDs || e.ID < st.NextID {
			e.ID = st.NextID
		}
		st.NextID = e.ID + 1
		var doc *document
		docs, doc = s.docFor(docs, e)
		doc.entries = append(doc.entries, e)
		doc.dirty = true
	}
	if err := s.writeState(st); err != nil {
		return 0, err
	}
	if err := s.save(docs); err != nil {
		return 0, err
	}
	return len(prepared), nil
}

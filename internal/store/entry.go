package store

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// ─── Types ───────────────────────────────────────────────────────────────────

type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// ParseScope maps user input to a Scope. Empty input means project scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "project":
		return ScopeProject, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return "", Validation("scope", "scope", "unknown scope %q (want project or global)", s)
	}
}

type Entry struct {
	ID        int64   `json:"id"`
	Scope     Scope   `json:"scope"`
	Project   *string `json:"project,omitempty"`
	Category  string  `json:"category"`
	EntryType string  `json:"entry_type"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Body      string  `json:"body"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// ProjectName returns the project or "" for global entries.
func (e Entry) ProjectName() string {
	if e.Project == nil {
		return ""
	}
	return *e.Project
}

// IndexText is the text the full-text index holds for an entry.
func (e Entry) IndexText() string {
	return e.Title + "\n" + e.Summary + "\n" + e.Body
}

type CreateParams struct {
	Scope     Scope  `json:"scope,omitempty"`
	Project   string `json:"project,omitempty"`
	Category  string `json:"category,omitempty"`
	EntryType string `json:"entry_type,omitempty"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Body      string `json:"body"`
}

type ListOptions struct {
	Scope   Scope  `json:"scope,omitempty"`
	Project string `json:"project,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

type SearchOptions struct {
	Scope    Scope  `json:"scope,omitempty"`
	Project  string `json:"project,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ImportOptions struct {
	Scope       Scope  `json:"scope,omitempty"`
	Project     string `json:"project,omitempty"`
	PreserveIDs bool   `json:"preserve_ids,omitempty"`
}

// ProjectSummary is derived from entries on demand and never stored.
type ProjectSummary struct {
	Scope        Scope    `json:"scope"`
	Project      string   `json:"project,omitempty"`
	Count        int      `json:"count"`
	Categories   []string `json:"categories"`
	FirstCreated string   `json:"first_created,omitempty"`
	LastCreated  string   `json:"last_created,omitempty"`
	LastActivity string   `json:"last_activity,omitempty"`
	TotalChars   int      `json:"total_chars"`
	TotalWords   int      `json:"total_words"`
}

// Backend is the capability set shared by the SQLite store and the
// markdown file store. One is chosen at startup.
type Backend interface {
	Create(p CreateParams) (int64, error)
	Get(id int64) (*Entry, error)
	List(opts ListOptions) ([]Entry, error)
	Update(sel Selector, patch Patch) (int, error)
	Delete(sel Selector) (int, error)
	DeleteProject(project string) (int, error)
	Search(query string, opts SearchOptions) ([]Entry, error)
	Stats(scope Scope, project string) (*ProjectSummary, error)
	ListProjects() ([]ProjectSummary, error)
	Import(entries []Entry, opts ImportOptions) (int, error)
	Close() error
}

// ─── Time ────────────────────────────────────────────────────────────────────

// TimeLayout is fixed-width so lexical order matches chronological order.
const TimeLayout = "2006-01-02 15:04:05.000000"

var now = func() time.Time { return time.Now() }

// Now returns the current time formatted for storage.
func Now() string {
	return now().UTC().Format(TimeLayout)
}

var acceptedLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp parses the timestamp shapes found in exports and
// hand-written markdown and reformats them with TimeLayout.
func NormalizeTimestamp(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(TimeLayout), true
		}
	}
	return "", false
}

// ─── Validation ──────────────────────────────────────────────────────────────

const defaultCategory = "general"

// Normalize validates create input and returns the entry to insert,
// without id or timestamps.
func (p CreateParams) Normalize(op string) (Entry, error) {
	scope := p.Scope
	if scope == "" {
		scope = ScopeProject
	}
	if scope != ScopeProject && scope != ScopeGlobal {
		return Entry{}, Validation(op, "scope", "unknown scope %q", scope)
	}
	e := Entry{
		Scope:     scope,
		Category:  strings.TrimSpace(p.Category),
		EntryType: strings.TrimSpace(p.EntryType),
		Title:     strings.TrimSpace(p.Title),
		Summary:   strings.TrimSpace(p.Summary),
		Body:      p.Body,
	}
	if scope == ScopeProject {
		project := strings.TrimSpace(p.Project)
		if project == "" {
			return Entry{}, Validation(op, "project", "project is required for project-scoped entries")
		}
		e.Project = &project
	}
	if strings.TrimSpace(e.Body) == "" {
		return Entry{}, Validation(op, "body", "body must not be empty")
	}
	if e.Category == "" {
		e.Category = defaultCategory
	}
	return e, nil
}

// PrepareImport fills in scope, project and timestamps for an imported entry.
func PrepareImport(op string, i int, e Entry, opts ImportOptions, ts string) (Entry, error) {
	if e.Scope == "" {
		e.Scope = opts.Scope
	}
	if e.Scope == "" {
		e.Scope = ScopeProject
	}
	switch e.Scope {
	case ScopeGlobal:
		e.Project = nil
	case ScopeProject:
		if p := strings.TrimSpace(opts.Project); p != "" {
			e.Project = &p
		}
		if e.Project == nil || strings.TrimSpace(*e.Project) == "" {
			return Entry{}, Validation(op, "project", "entry %d: project is required", i+1)
		}
	default:
		return Entry{}, Validation(op, "scope", "entry %d: unknown scope %q", i+1, e.Scope)
	}
	if strings.TrimSpace(e.Body) == "" {
		return Entry{}, Validation(op, "body", "entry %d: body must not be empty", i+1)
	}

	if e.CreatedAt == "" {
		e.CreatedAt = ts
	} else if v, ok := NormalizeTimestamp(e.CreatedAt); ok {
		e.CreatedAt = v
	} else {
		return Entry{}, Validation(op, "created_at", "entry %d: bad timestamp %q", i+1, e.CreatedAt)
	}
	if e.UpdatedAt == "" {
		e.UpdatedAt = e.CreatedAt
	} else if v, ok := NormalizeTimestamp(e.UpdatedAt); ok {
		e.UpdatedAt = v
	} else {
		return Entry{}, Validation(op, "updated_at", "entry %d: bad timestamp %q", i+1, e.UpdatedAt)
	}
	if e.UpdatedAt < e.CreatedAt {
		e.UpdatedAt = e.CreatedAt
	}
	return e, nil
}

// ─── Selector ────────────────────────────────────────────────────────────────

// Selector picks entries inside one project (or the global scope). Every
// criterion that is set must match.
type Selector struct {
	Scope     Scope  `json:"scope,omitempty"`
	Project   string `json:"project,omitempty"`
	ID        int64  `json:"entry_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Body      string `json:"content_match,omitempty"`
}

func (s Selector) normalized() Selector {
	if s.Scope == "" {
		s.Scope = ScopeProject
	}
	s.Project = strings.TrimSpace(s.Project)
	s.Timestamp = strings.TrimSpace(s.Timestamp)
	return s
}

func (s Selector) hasCriteria() bool {
	return s.ID != 0 || s.Timestamp != "" || s.Title != "" || s.Category != "" || s.Body != ""
}

// Validate rejects selectors that could only be satisfied by accident:
// no criteria at all, or a project selector without a project.
func (s Selector) Validate(op string) error {
	s = s.normalized()
	switch s.Scope {
	case ScopeProject:
		if s.Project == "" {
			return Validation(op, "project", "project is required")
		}
	case ScopeGlobal:
	default:
		return Validation(op, "scope", "unknown scope %q", s.Scope)
	}
	if s.ID < 0 {
		return Validation(op, "entry_id", "entry id must be positive")
	}
	if !s.hasCriteria() {
		return Validation(op, "selector", "at least one of entry_id, timestamp, title, category or content_match is required")
	}
	return nil
}

// Matches reports whether e is in the selector's scope and satisfies
// every set criterion.
func (s Selector) Matches(e Entry) bool {
	s = s.normalized()
	if e.Scope != s.Scope {
		return false
	}
	if s.Scope == ScopeProject && e.ProjectName() != s.Project {
		return false
	}
	if s.ID != 0 && e.ID != s.ID {
		return false
	}
	if s.Timestamp != "" && !strings.HasPrefix(e.CreatedAt, s.Timestamp) {
		return false
	}
	if s.Title != "" && !containsFold(e.Title, s.Title) {
		return false
	}
	if s.Category != "" && !containsFold(e.Category, s.Category) {
		return false
	}
	if s.Body != "" && !containsFold(e.Body, s.Body) {
		return false
	}
	return true
}

// ─── Patch ───────────────────────────────────────────────────────────────────

// Patch carries only the fields to change; nil means untouched.
type Patch struct {
	Title     *string `json:"new_title,omitempty"`
	Category  *string `json:"new_category,omitempty"`
	EntryType *string `json:"new_entry_type,omitempty"`
	Summary   *string `json:"new_summary,omitempty"`
	Body      *string `json:"new_content,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.EntryType == nil && p.Summary == nil && p.Body == nil
}

func (p Patch) Validate(op string) error {
	if p.Empty() {
		return Validation(op, "patch", "nothing to change")
	}
	if p.Body != nil && strings.TrimSpace(*p.Body) == "" {
		return Validation(op, "new_content", "body must not be empty")
	}
	return nil
}

// Apply writes the patch into e and advances UpdatedAt.
func (p Patch) Apply(e *Entry, ts string) {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Category != nil {
		e.Category = strings.TrimSpace(*p.Category)
	}
	if p.EntryType != nil {
		e.EntryType = strings.TrimSpace(*p.EntryType)
	}
	if p.Summary != nil {
		e.Summary = strings.TrimSpace(*p.Summary)
	}
	if p.Body != nil {
		e.Body = *p.Body
	}
	if ts < e.CreatedAt {
		ts = e.CreatedAt
	}
	e.UpdatedAt = ts
}

// ─── Summaries ───────────────────────────────────────────────────────────────

// Summarize aggregates entries of one project (or the global scope).
func Summarize(scope Scope, project string, entries []Entry) ProjectSummary {
	sum := ProjectSummary{Scope: scope, Project: project, Categories: []string{}}
	cats := make(map[string]bool)
	for _, e := range entries {
		sum.Count++
		if e.Category != "" && !cats[e.Category] {
			cats[e.Category] = true
			sum.Categories = append(sum.Categories, e.Category)
		}
		if sum.FirstCreated == "" || e.CreatedAt < sum.FirstCreated {
			sum.FirstCreated = e.CreatedAt
		}
		if e.CreatedAt > sum.LastCreated {
			sum.LastCreated = e.CreatedAt
		}
		if e.UpdatedAt > sum.LastActivity {
			sum.LastActivity = e.UpdatedAt
		}
		text := e.Title + e.Summary + e.Body
		sum.TotalChars += utf8.RuneCountInString(text)
		sum.TotalWords += len(strings.Fields(e.Title)) + len(strings.Fields(e.Summary)) + len(strings.Fields(e.Body))
	}
	sort.Strings(sum.Categories)
	return sum
}

// GroupProjects builds one summary per distinct project, most recent
// activity first. Global entries are ignored.
func GroupProjects(entries []Entry) []ProjectSummary {
	byProject := make(map[string][]Entry)
	for _, e := range entries {
		if e.Scope != ScopeProject || e.Project == nil {
			continue
		}
		byProject[*e.Project] = append(byProject[*e.Project], e)
	}
	out := make([]ProjectSummary, 0, len(byProject))
	for name, list := range byProject {
		out = append(out, Summarize(ScopeProject, name, list))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].Project < out[j].Project
	})
	return out
}

// SortRecent orders entries newest first with id as the tie-break.
func SortRecent(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt > entries[j].CreatedAt
		}
		return entries[i].ID > entries[j].ID
	})
}

package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// useClock makes Now advance by step on every call.
func useClock(t *testing.T, step time.Duration) {
	t.Helper()
	old := now
	cur := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now = func() time.Time {
		cur = cur.Add(step)
		return cur
	}
	t.Cleanup(func() { now = old })
}

func mustCreate(t *testing.T, s *Store, p CreateParams) int64 {
	t.Helper()
	id, err := s.Create(p)
	if err != nil {
		t.Fatalf("create %+v: %v", p, err)
	}
	return id
}

func ids(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateThenGetHasEqualTimestamps(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	id := mustCreate(t, s, CreateParams{Project: "p1", Title: "Auth", Category: "decision", Body: "Use JWT"})
	e, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.CreatedAt != e.UpdatedAt {
		t.Fatalf("expected created_at == updated_at, got %q / %q", e.CreatedAt, e.UpdatedAt)
	}
	if e.Scope != ScopeProject || e.ProjectName() != "p1" {
		t.Fatalf("unexpected scope/project: %s %q", e.Scope, e.ProjectName())
	}
	if e.Title != "Auth" || e.Body != "Use JWT" || e.Category != "decision" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(CreateParams{Scope: ScopeProject, Body: "no project"})
	if !errors.Is(err, ErrValidation) || FieldOf(err) != "project" {
		t.Fatalf("expected validation error on project, got %v", err)
	}

	_, err = s.Create(CreateParams{Project: "p1", Body: "   "})
	if !errors.Is(err, ErrValidation) || FieldOf(err) != "body" {
		t.Fatalf("expected validation error on body, got %v", err)
	}

	id := mustCreate(t, s, CreateParams{Scope: ScopeGlobal, Project: "ignored", Body: "global note"})
	e, err := s.Get(id)
	if err != nil {
		t.Fatalf("get global: %v", err)
	}
	if e.Project != nil {
		t.Fatalf("expected global entry without project, got %q", *e.Project)
	}
	if e.Category != "general" {
		t.Fatalf("expected default category, got %q", e.Category)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected kind not_found, got %q", KindOf(err))
	}
}

func TestListOrdersByCreatedThenID(t *testing.T) {
	s := newTestStore(t)
	// A frozen clock gives every entry the same created_at.
	useClock(t, 0)

	a := mustCreate(t, s, CreateParams{Project: "p1", Body: "one"})
	b := mustCreate(t, s, CreateParams{Project: "p1", Body: "two"})
	c := mustCreate(t, s, CreateParams{Project: "p1", Body: "three"})
	mustCreate(t, s, CreateParams{Project: "p2", Body: "other"})

	all, err := s.List(ListOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !sameIDs(ids(all), []int64{c, b, a}) {
		t.Fatalf("expected id-desc tie break, got %v", ids(all))
	}

	page, err := s.List(ListOptions{Project: "p1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if !sameIDs(ids(page), []int64{b}) {
		t.Fatalf("expected second page to be [%d], got %v", b, ids(page))
	}
}

func TestScenarioSearchReturnsMatchesMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	first := mustCreate(t, s, CreateParams{Project: "p1", Body: "alpha beta"})
	second := mustCreate(t, s, CreateParams{Project: "p1", Body: "beta gamma"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "gamma delta"})

	results, err := s.Search("beta", SearchOptions{Project: "p1", Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameIDs(ids(results), []int64{second, first}) {
		t.Fatalf("expected [%d %d], got %v", second, first, ids(results))
	}
}

func TestScenarioUpdateTouchesOnlyTargetEntry(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	one := mustCreate(t, s, CreateParams{Project: "p1", Category: "notes", Title: "one", Body: "alpha beta"})
	two := mustCreate(t, s, CreateParams{Project: "p1", Category: "notes", Title: "two", Body: "beta gamma"})
	before1, _ := s.Get(one)
	before2, _ := s.Get(two)

	title := "T"
	n, err := s.Update(Selector{Project: "p1", ID: two}, Patch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 updated, got %d", n)
	}

	after2, _ := s.Get(two)
	if after2.Title != "T" {
		t.Fatalf("expected new title, got %q", after2.Title)
	}
	if after2.Body != before2.Body || after2.Category != before2.Category {
		t.Fatalf("expected body/category untouched, got %+v", after2)
	}
	if after2.UpdatedAt <= before2.UpdatedAt {
		t.Fatalf("expected updated_at to advance: %q -> %q", before2.UpdatedAt, after2.UpdatedAt)
	}
	if after2.CreatedAt != before2.CreatedAt {
		t.Fatalf("created_at changed")
	}

	after1, _ := s.Get(one)
	if after1.Title != "one" || after1.UpdatedAt != before1.UpdatedAt {
		t.Fatalf("entry %d changed: %+v", one, after1)
	}

	res, err := s.Search("gamma", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search after update: %v", err)
	}
	if !sameIDs(ids(res), []int64{two}) {
		t.Fatalf("expected updated entry to stay indexed, got %v", ids(res))
	}
}

func TestScenarioDeleteProjectRemovesItFromListing(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "b"})
	mustCreate(t, s, CreateParams{Project: "p2", Body: "c"})

	n, err := s.DeleteProject("p1")
	if err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Project != "p2" {
		t.Fatalf("expected only p2, got %+v", projects)
	}

	if _, err := s.DeleteProject("p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found deleting p1 again, got %v", err)
	}

	missing, orphaned, err := s.IndexConsistency()
	if err != nil {
		t.Fatalf("index check: %v", err)
	}
	if missing != 0 || orphaned != 0 {
		t.Fatalf("index drift: missing=%d orphaned=%d", missing, orphaned)
	}
}

func TestDeleteRemovesEntryAndIndexRow(t *testing.T) {
	s := newTestStore(t)

	id := mustCreate(t, s, CreateParams{Project: "p1", Body: "unique zebra crossing"})
	n, err := s.Delete(Selector{Project: "p1", ID: id})
	if err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}

	if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	res, err := s.Search("zebra", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("expected deleted entry to vanish from search, got %v", ids(res))
	}
	missing, orphaned, _ := s.IndexConsistency()
	if missing != 0 || orphaned != 0 {
		t.Fatalf("index drift: missing=%d orphaned=%d", missing, orphaned)
	}
}

func TestIDsAreNeverReused(t *testing.T) {
	s := newTestStore(t)

	a := mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})
	b := mustCreate(t, s, CreateParams{Project: "p1", Body: "b"})
	if _, err := s.DeleteProject("p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	c := mustCreate(t, s, CreateParams{Project: "p1", Body: "c"})
	if c <= b || c == a {
		t.Fatalf("expected fresh id above %d, got %d", b, c)
	}
}

func TestSelectorCriteriaAreANDed(t *testing.T) {
	s := newTestStore(t)

	id := mustCreate(t, s, CreateParams{Project: "p1", Category: "bugfix", Title: "Fix login", Body: "token refresh"})
	mustCreate(t, s, CreateParams{Project: "p1", Category: "decision", Title: "Choose DB", Body: "sqlite"})

	title := "changed"
	_, err := s.Update(Selector{Project: "p1", ID: id, Category: "decision"}, Patch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for conflicting id+category, got %v", err)
	}
	e, _ := s.Get(id)
	if e.Title != "Fix login" {
		t.Fatalf("entry changed despite failed selector: %q", e.Title)
	}

	n, err := s.Update(Selector{Project: "p1", ID: id, Category: "BUG"}, Patch{Title: &title})
	if err != nil || n != 1 {
		t.Fatalf("expected case-insensitive category match, n=%d err=%v", n, err)
	}

	// Same criteria in another project never match.
	if _, err := s.Delete(Selector{Project: "p2", ID: id}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected project to scope selector, got %v", err)
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newTestStore(t)

	const workers, rounds = 16, 30
	entryIDs := make([]int64, workers)
	for i := range entryIDs {
		entryIDs[i] = mustCreate(t, s, CreateParams{Project: "p", Body: fmt.Sprintf("entry %d", i)})
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				title := fmt.Sprintf("round %d", r)
				if _, err := s.Update(Selector{Project: "p", ID: id}, Patch{Title: &title}); err != nil {
					errs <- err
				}
			}
		}(entryIDs[w])
	}
	wg.Wait()
	close(errs)

	failed := 0
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d of %d concurrent updates failed, first: %v", failed, workers*rounds, first)
	}

	for _, id := range entryIDs {
		e, err := s.Get(id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if e.Title != fmt.Sprintf("round %d", rounds-1) {
			t.Fatalf("entry %d title = %q, want last round", id, e.Title)
		}
	}
}

func TestSelectorMatchesManyEntries(t *testing.T) {
	s := newTestStore(t)

	mustCreate(t, s, CreateParams{Project: "p1", Category: "todo", Body: "write docs"})
	mustCreate(t, s, CreateParams{Project: "p1", Category: "todo", Body: "write tests"})
	mustCreate(t, s, CreateParams{Project: "p1", Category: "done", Body: "write code"})

	cat := "done"
	n, err := s.Update(Selector{Project: "p1", Category: "todo", Body: "WRITE"}, Patch{Category: &cat})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated, got %d", n)
	}

	n, err = s.Delete(Selector{Project: "p1", Category: "done"})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, n=%d err=%v", n, err)
	}
}

func TestSelectorByTimestampPrefix(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Hour)

	first := mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "b"})
	e, _ := s.Get(first)

	n, err := s.Delete(Selector{Project: "p1", Timestamp: e.CreatedAt[:13]})
	if err != nil || n != 1 {
		t.Fatalf("expected hour prefix to match one entry, n=%d err=%v", n, err)
	}
}

func TestSelectorAndPatchValidation(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})

	if _, err := s.Delete(Selector{Project: "p1"}); !errors.Is(err, ErrValidation) || FieldOf(err) != "selector" {
		t.Fatalf("expected selector validation error, got %v", err)
	}
	if _, err := s.Delete(Selector{ID: 1}); !errors.Is(err, ErrValidation) || FieldOf(err) != "project" {
		t.Fatalf("expected project validation error, got %v", err)
	}
	if _, err := s.Update(Selector{Project: "p1", ID: 1}, Patch{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty patch validation error, got %v", err)
	}
	empty := " "
	if _, err := s.Update(Selector{Project: "p1", ID: 1}, Patch{Body: &empty}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty body validation error, got %v", err)
	}
}

func TestSearchEmptyQueryIsValidationError(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})

	for _, q := range []string{"", "   "} {
		_, err := s.Search(q, SearchOptions{Project: "p1"})
		if !errors.Is(err, ErrValidation) || FieldOf(err) != "query" {
			t.Fatalf("query %q: expected validation error, got %v", q, err)
		}
	}
}

func TestSearchTrigramIndexMatchesInsideUnsegmentedText(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	cjk := mustCreate(t, s, CreateParams{Project: "p1", Body: "我们决定使用数据库迁移工具"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "unrelated english text"})

	res, err := s.Search("数据库", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameIDs(ids(res), []int64{cjk}) {
		t.Fatalf("expected trigram hit, got %v", ids(res))
	}

	// Two characters are below the trigram window; the fallback scan answers.
	res, err = s.Search("迁移", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search short: %v", err)
	}
	if !sameIDs(ids(res), []int64{cjk}) {
		t.Fatalf("expected fallback hit, got %v", ids(res))
	}
}

func TestSearchFallbackFoldsCase(t *testing.T) {
	s := newTestStore(t)

	id := mustCreate(t, s, CreateParams{Project: "p1", Title: "Straße", Body: "street naming"})
	res, err := s.Search("STRASSE", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameIDs(ids(res), []int64{id}) {
		t.Fatalf("expected folded match, got %v", ids(res))
	}
}

func TestSearchIndexKeepsExactSpelling(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	exact := mustCreate(t, s, CreateParams{Project: "p1", Body: "die Straße ist lang"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "strasse und mehr"})

	res, err := s.Search("Straße", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, e := range res {
		if e.ID == exact {
			found = true
		}
	}
	if !found {
		t.Fatalf("entry containing the query verbatim missing from %v", ids(res))
	}
}

func TestSearchRanksByDistinctTerms(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	both := mustCreate(t, s, CreateParams{Project: "p1", Body: "redis cache eviction"})
	newer := mustCreate(t, s, CreateParams{Project: "p1", Body: "redis cluster"})

	res, err := s.Search("redis eviction", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameIDs(ids(res), []int64{both, newer}) {
		t.Fatalf("expected two-term match first, got %v", ids(res))
	}
}

func TestSearchFiltersScopeAndCategory(t *testing.T) {
	s := newTestStore(t)

	g := mustCreate(t, s, CreateParams{Scope: ScopeGlobal, Category: "pref", Body: "prefer tabs"})
	p := mustCreate(t, s, CreateParams{Project: "p1", Category: "pref", Body: "prefer spaces"})
	mustCreate(t, s, CreateParams{Project: "p1", Category: "style", Body: "prefer short names"})

	res, err := s.Search("prefer", SearchOptions{Scope: ScopeGlobal})
	if err != nil {
		t.Fatalf("global search: %v", err)
	}
	if !sameIDs(ids(res), []int64{g}) {
		t.Fatalf("expected only global entry, got %v", ids(res))
	}

	res, err = s.Search("prefer", SearchOptions{Project: "p1", Category: "pref"})
	if err != nil {
		t.Fatalf("category search: %v", err)
	}
	if !sameIDs(ids(res), []int64{p}) {
		t.Fatalf("expected only pref entry in p1, got %v", ids(res))
	}

	res, err = s.Search("prefer", SearchOptions{Limit: 2})
	if err != nil {
		t.Fatalf("unscoped search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected limit to truncate to 2, got %d", len(res))
	}
}

func TestReindexIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Second)

	mustCreate(t, s, CreateParams{Project: "p1", Body: "alpha beta"})
	mustCreate(t, s, CreateParams{Project: "p1", Body: "beta gamma"})

	before, err := s.Search("beta", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 0; i < 2; i++ {
		n, err := s.Reindex()
		if err != nil {
			t.Fatalf("reindex: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 rows reindexed, got %d", n)
		}
	}
	after, err := s.Search("beta", SearchOptions{Project: "p1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameIDs(ids(before), ids(after)) {
		t.Fatalf("reindex changed results: %v -> %v", ids(before), ids(after))
	}
}

func TestStatsAndProjects(t *testing.T) {
	s := newTestStore(t)
	useClock(t, time.Minute)

	mustCreate(t, s, CreateParams{Project: "p1", Category: "b", Body: "one two"})
	mustCreate(t, s, CreateParams{Project: "p1", Category: "a", Body: "three"})
	mustCreate(t, s, CreateParams{Project: "p2", Body: "four"})
	mustCreate(t, s, CreateParams{Scope: ScopeGlobal, Body: "five"})

	st, err := s.Stats(ScopeProject, "p1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Count != 2 || strings.Join(st.Categories, ",") != "a,b" || st.TotalWords != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.FirstCreated >= st.LastCreated {
		t.Fatalf("expected first < last: %+v", st)
	}

	if _, err := s.Stats(ScopeProject, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}

	gs, err := s.Stats(ScopeGlobal, "")
	if err != nil || gs.Count != 1 {
		t.Fatalf("global stats: %+v %v", gs, err)
	}

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 || projects[0].Project != "p2" {
		t.Fatalf("expected p2 (most recent) first, got %+v", projects)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Import([]Entry{
		{Body: "fine"},
		{Body: ""},
	}, ImportOptions{Project: "p1"})
	if !errors.Is(err, ErrValidation) || n != 0 {
		t.Fatalf("expected validation failure, n=%d err=%v", n, err)
	}
	all, _ := s.List(ListOptions{})
	if len(all) != 0 {
		t.Fatalf("expected nothing committed, got %d entries", len(all))
	}
}

func TestImportPreservesOnlyFreshIDs(t *testing.T) {
	s := newTestStore(t)

	mustCreate(t, s, CreateParams{Project: "p1", Body: "a"})
	old := mustCreate(t, s, CreateParams{Project: "p1", Body: "b"})
	if _, err := s.Delete(Selector{Project: "p1", ID: old}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := s.Import([]Entry{
		{ID: old, Body: "reuses a deleted id"},
		{ID: 50, Body: "fresh id"},
	}, ImportOptions{Project: "p1", PreserveIDs: true})
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	if _, err := s.Get(old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted id %d must not be reused", old)
	}
	e, err := s.Get(50)
	if err != nil || e.Body != "fresh id" {
		t.Fatalf("expected id 50 preserved: %+v %v", e, err)
	}
}

func TestSyncChunksSkipsRecordedChunks(t *testing.T) {
	s := newTestStore(t)
	p := "p1"
	chunks := []Chunk{
		{ID: "c1", Entry: Entry{Scope: ScopeProject, Project: &p, Body: "from file", CreatedAt: "2024-01-02 03:04:05"}},
		{ID: "c2", Entry: Entry{Scope: ScopeGlobal, Body: "global from file"}},
	}

	first, err := s.SyncChunks(chunks)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if first.Imported != 2 || first.Skipped != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	second, err := s.SyncChunks(chunks)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if second.Imported != 0 || second.Skipped != 2 {
		t.Fatalf("unexpected second result: %+v", second)
	}

	all, _ := s.List(ListOptions{})
	if len(all) != 2 {
		t.Fatalf("expected 2 entries after two syncs, got %d", len(all))
	}
	synced, err := s.SyncedChunks()
	if err != nil || !synced["c1"] || !synced["c2"] {
		t.Fatalf("ledger missing chunks: %v %v", synced, err)
	}
}

func TestErrorKindsAndMessages(t *testing.T) {
	err := Validation("create", "body", "body must not be empty")
	if KindOf(err) != KindValidation {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if !strings.Contains(err.Error(), `field "body"`) {
		t.Fatalf("expected field in message: %s", err)
	}
	if KindOf(errors.New("disk full")) != KindStorage {
		t.Fatalf("foreign errors must map to storage_error")
	}
	wrapped := Storage("update", NotFound("update", "nothing"))
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("Storage must not mask an existing kind")
	}
}

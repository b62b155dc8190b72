// Package store implements the memory entry engine.
//
// It keeps project and global memory entries in SQLite and mirrors their
// text into an FTS5 trigram index inside the same transaction, so a reader
// never sees an entry without its index row or the other way round. The
// MCP server, HTTP API, CLI and TUI all talk to a Backend, and this package
// provides the durable one.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ─── Config ──────────────────────────────────────────────────────────────────

type Config struct {
	DataDir string
	// DefaultSearchResults applies when a search passes no limit.
	DefaultSearchResults int
	MaxSearchResults     int
	// FallbackScanLimit bounds the substring scan to the newest N entries.
	FallbackScanLimit int
}

func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:              filepath.Join(home, ".memory-mcp"),
		DefaultSearchResults: 10,
		MaxSearchResults:     100,
		FallbackScanLimit:    5000,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

type Store struct {
	db  *sql.DB
	cfg Config
}

var _ Backend = (*Store)(nil)

var openDB = sql.Open

// DBFile is the database file name inside the data dir.
const DBFile = "memory.db"

func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, Storage("open", fmt.Errorf("create data dir: %w", err))
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	// _txlock=immediate makes BEGIN take the write lock, so a transaction
	// that reads before writing waits on busy_timeout instead of failing
	// with SQLITE_BUSY when another connection committed in between.
	dsn := "file:" + filepath.Join(cfg.DataDir, DBFile) +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, Storage("open", fmt.Errorf("open database: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Storage("open", fmt.Errorf("ping database: %w", err))
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, Storage("open", fmt.Errorf("migration: %w", err))
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			scope      TEXT    NOT NULL DEFAULT 'project',
			project    TEXT,
			category   TEXT    NOT NULL DEFAULT '',
			entry_type TEXT    NOT NULL DEFAULT '',
			title      TEXT    NOT NULL DEFAULT '',
			summary    TEXT    NOT NULL DEFAULT '',
			body       TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			updated_at TEXT    NOT NULL,
			CHECK (scope IN ('project', 'global')),
			CHECK ((scope = 'project' AND project IS NOT NULL AND project <> '')
				OR (scope = 'global' AND project IS NULL))
		);

		CREATE INDEX IF NOT EXISTS idx_entries_scope   ON entries(scope, project, created_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC, id DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			text,
			tokenize = 'trigram'
		);

		CREATE TABLE IF NOT EXISTS sync_chunks (
			chunk_id    TEXT PRIMARY KEY,
			imported_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Databases created before entry_type/summary existed.
	if err := s.addColumnIfNotExists("entries", "entry_type", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := s.addColumnIfNotExists("entries", "summary", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := s.addColumnIfNotExists("sync_chunks", "entry_id", "INTEGER"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category)`); err != nil {
		return err
	}
	return nil
}

func (s *Store) addColumnIfNotExists(tableName, columnName, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", tableName, columnName, definition))
	return err
}

// ─── Transactions ────────────────────────────────────────────────────────────

// withTx runs fn in one transaction. The entry rows and their index rows
// commit together or not at all.
func (s *Store) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return Storage(op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return Storage(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ─── Entries ─────────────────────────────────────────────────────────────────

const entryColumns = `id, scope, project, category, entry_type, title, summary, body, created_at, updated_at`

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var scope string
	err := r.Scan(&e.ID, &scope, &e.Project, &e.Category, &e.EntryType,
		&e.Title, &e.Summary, &e.Body, &e.CreatedAt, &e.UpdatedAt)
	e.Scope = Scope(scope)
	return e, err
}

func queryEntries(q queryer, query string, args ...any) ([]Entry, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// scopeClause restricts a query on entries to a scope and project.
// Empty project with project scope means every project.
func scopeClause(scope Scope, project string) (string, []any) {
	switch {
	case scope == ScopeGlobal:
		return "scope = 'global'", nil
	case project != "":
		return "scope = 'project' AND project = ?", []any{project}
	case scope == ScopeProject:
		return "scope = 'project'", nil
	default:
		return "1 = 1", nil
	}
}

func insertEntry(tx *sql.Tx, e Entry, withID bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if withID {
		res, err = tx.Exec(
			`INSERT INTO entries (id, scope, project, category, entry_type, title, summary, body, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, string(e.Scope), e.Project, e.Category, e.EntryType, e.Title, e.Summary, e.Body, e.CreatedAt, e.UpdatedAt,
		)
	} else {
		res, err = tx.Exec(
			`INSERT INTO entries (scope, project, category, entry_type, title, summary, body, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(e.Scope), e.Project, e.Category, e.EntryType, e.Title, e.Summary, e.Body, e.CreatedAt, e.UpdatedAt,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	if err := indexEntry(tx, id, e.IndexText()); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Create(p CreateParams) (int64, error) {
	e, err := p.Normalize("create")
	if err != nil {
		return 0, err
	}
	ts := Now()
	e.CreatedAt, e.UpdatedAt = ts, ts

	var id int64
	err = s.withTx("create", func(tx *sql.Tx) error {
		id, err = insertEntry(tx, e, false)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Get(id int64) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("get", "entry #%d not found", id)
	}
	if err != nil {
		return nil, Storage("get", err)
	}
	return &e, nil
}

// List returns entries newest first, ties broken by id descending.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	if opts.Offset < 0 {
		return nil, Validation("list", "offset", "offset must not be negative")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	where, args := scopeClause(opts.Scope, strings.TrimSpace(opts.Project))
	args = append(args, limit, opts.Offset)
	entries, err := queryEntries(s.db,
		`SELECT `+entryColumns+` FROM entries WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, Storage("list", err)
	}
	return entries, nil
}

// selectTargets loads the entries a selector matches inside tx.
func selectTargets(tx *sql.Tx, op string, sel Selector) ([]Entry, error) {
	sel = sel.normalized()
	where, args := scopeClause(sel.Scope, sel.Project)
	if sel.ID != 0 {
		where += " AND id = ?"
		args = append(args, sel.ID)
	}
	candidates, err := queryEntries(tx, `SELECT `+entryColumns+` FROM entries WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	var matched []Entry
	for _, e := range candidates {
		if sel.Matches(e) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil, NotFound(op, "no entries match %s", describeSelector(sel))
	}
	return matched, nil
}

// Update applies patch to every entry sel matches and returns the count.
func (s *Store) Update(sel Selector, patch Patch) (int, error) {
	if err := sel.Validate("update"); err != nil {
		return 0, err
	}
	if err := patch.Validate("update"); err != nil {
		return 0, err
	}
	ts := Now()

	var n int
	err := s.withTx("update", func(tx *sql.Tx) error {
		targets, err := selectTargets(tx, "update", sel)
		if err != nil {
			return err
		}
		for _, e := range targets {
			patch.Apply(&e, ts)
			if _, err := tx.Exec(
				`UPDATE entries SET title = ?, category = ?, entry_type = ?, summary = ?, body = ?, updated_at = ?
				 WHERE id = ?`,
				e.Title, e.Category, e.EntryType, e.Summary, e.Body, e.UpdatedAt, e.ID,
			); err != nil {
				return fmt.Errorf("update entry %d: %w", e.ID, err)
			}
			if err := indexEntry(tx, e.ID, e.IndexText()); err != nil {
				return err
			}
		}
		n = len(targets)
		return nil
	})
	return n, err
}

// Delete removes every entry sel matches together with its index rows.
func (s *Store) Delete(sel Selector) (int, error) {
	if err := sel.Validate("delete"); err != nil {
		return 0, err
	}

	var n int
	err := s.withTx("delete", func(tx *sql.Tx) error {
		targets, err := selectTargets(tx, "delete", sel)
		if err != nil {
			return err
		}
		for _, e := range targets {
			if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, e.ID); err != nil {
				return fmt.Errorf("delete entry %d: %w", e.ID, err)
			}
			if err := removeEntry(tx, e.ID); err != nil {
				return err
			}
		}
		n = len(targets)
		return nil
	})
	return n, err
}

// DeleteProject removes all entries of a project. Projects exist only
// through their entries, so an unknown project is not found.
func (s *Store) DeleteProject(project string) (int, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return 0, Validation("delete project", "project", "project is required")
	}

	var n int
	err := s.withTx("delete project", func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`DELETE FROM entries_fts WHERE rowid IN (SELECT id FROM entries WHERE scope = 'project' AND project = ?)`,
			project,
		); err != nil {
			return fmt.Errorf("remove index rows: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM entries WHERE scope = 'project' AND project = ?`, project)
		if err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFound("delete project", "project %q has no entries", project)
		}
		n = int(affected)
		return nil
	})
	return n, err
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats aggregates one project, or the global scope when scope is global.
func (s *Store) Stats(scope Scope, project string) (*ProjectSummary, error) {
	project = strings.TrimSpace(project)
	if scope == "" {
		scope = ScopeProject
	}
	if scope == ScopeGlobal {
		project = ""
	} else if project == "" {
		return nil, Validation("stats", "project", "project is required")
	}

	entries, err := s.List(ListOptions{Scope: scope, Project: project})
	if err != nil {
		return nil, err
	}
	if scope == ScopeProject && len(entries) == 0 {
		return nil, NotFound("stats", "project %q has no entries", project)
	}
	sum := Summarize(scope, project, entries)
	return &sum, nil
}

func (s *Store) ListProjects() ([]ProjectSummary, error) {
	entries, err := s.List(ListOptions{Scope: ScopeProject})
	if err != nil {
		return nil, err
	}
	return GroupProjects(entries), nil
}

// ProjectNames lists distinct project names, alphabetically.
func (s *Store) ProjectNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT project FROM entries WHERE scope = 'project' ORDER BY project`)
	if err != nil {
		return nil, Storage("projects", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, Storage("projects", err)
		}
		names = append(names, p)
	}
	return names, rows.Err()
}

// ─── Import ──────────────────────────────────────────────────────────────────

// Import inserts entries all-or-nothing. With PreserveIDs, an id above the
// table's high-water mark is kept; any other id is reassigned so deleted
// ids are never reused.
func (s *Store) Import(entries []Entry, opts ImportOptions) (int, error) {
	ts := Now()
	prepared := make([]Entry, 0, len(entries))
	for i, e := range entries {
		p, err := PrepareImport("import", i, e, opts, ts)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, p)
	}

	err := s.withTx("import", func(tx *sql.Tx) error {
		hw, err := highWaterMark(tx)
		if err != nil {
			return err
		}
		for _, e := range prepared {
			keep := opts.PreserveIDs && e.ID > hw
			id, err := insertEntry(tx, e, keep)
			if err != nil {
				return err
			}
			if id > hw {
				hw = id
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prepared), nil
}

func highWaterMark(tx *sql.Tx) (int64, error) {
	var seq, maxID sql.NullInt64
	if err := tx.QueryRow(`SELECT seq FROM sqlite_sequence WHERE name = 'entries'`).Scan(&seq); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	if err := tx.QueryRow(`SELECT MAX(id) FROM entries`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("read max id: %w", err)
	}
	if maxID.Int64 > seq.Int64 {
		return maxID.Int64, nil
	}
	return seq.Int64, nil
}

// ─── Sync Chunk Tracking ─────────────────────────────────────────────────────

// Chunk is one unit of external content to reconcile into the store.
type Chunk struct {
	ID    string
	Entry Entry
}

type SyncResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// SyncChunks inserts every chunk not yet recorded in the ledger and records
// it in the same transaction, so re-running a sync never duplicates.
func (s *Store) SyncChunks(chunks []Chunk) (*SyncResult, error) {
	ts := Now()
	result := &SyncResult{}
	err := s.withTx("sync", func(tx *sql.Tx) error {
		for i, c := range chunks {
			var exists int
			err := tx.QueryRow(`SELECT COUNT(*) FROM sync_chunks WHERE chunk_id = ?`, c.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check chunk: %w", err)
			}
			if exists > 0 {
				result.Skipped++
				continue
			}
			e, err := PrepareImport("sync", i, c.Entry, ImportOptions{}, ts)
			if err != nil {
				return err
			}
			id, err := insertEntry(tx, e, false)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				`INSERT INTO sync_chunks (chunk_id, entry_id, imported_at) VALUES (?, ?, ?)`,
				c.ID, id, ts,
			); err != nil {
				return fmt.Errorf("record chunk: %w", err)
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SyncedChunks returns the ids already recorded in the ledger.
func (s *Store) SyncedChunks() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT chunk_id FROM sync_chunks")
	if err != nil {
		return nil, Storage("sync", fmt.Errorf("get synced chunks: %w", err))
	}
	defer rows.Close()

	chunks := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Storage("sync", err)
		}
		chunks[id] = true
	}
	return chunks, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func describeSelector(sel Selector) string {
	var parts []string
	if sel.Scope == ScopeGlobal {
		parts = append(parts, "scope=global")
	} else {
		parts = append(parts, fmt.Sprintf("project=%q", sel.Project))
	}
	if sel.ID != 0 {
		parts = append(parts, fmt.Sprintf("entry_id=%d", sel.ID))
	}
	if sel.Timestamp != "" {
		parts = append(parts, fmt.Sprintf("timestamp=%q", sel.Timestamp))
	}
	if sel.Title != "" {
		parts = append(parts, fmt.Sprintf("title=%q", sel.Title))
	}
	if sel.Category != "" {
		parts = append(parts, fmt.Sprintf("category=%q", sel.Category))
	}
	if sel.Body != "" {
		parts = append(parts, fmt.Sprintf("content_match=%q", sel.Body))
	}
	return strings.Join(parts, " ")
}

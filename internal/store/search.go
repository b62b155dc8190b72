package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// ─── Full-Text Index ─────────────────────────────────────────────────────────
//
// entries_fts uses the trigram tokenizer: text is split into overlapping
// three-character windows, so any substring of three or more characters
// matches regardless of script or word boundaries. Index rows share the
// entry's rowid and are written only from inside the entry's transaction.

// indexEntry (re)indexes id. Deleting first keeps it idempotent.
func indexEntry(tx *sql.Tx, id int64, text string) error {
	if err := removeEntry(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO entries_fts (rowid, text) VALUES (?, ?)`, id, text); err != nil {
		return fmt.Errorf("index entry %d: %w", id, err)
	}
	return nil
}

func removeEntry(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM entries_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("unindex entry %d: %w", id, err)
	}
	return nil
}

// Reindex rebuilds the whole index from the entries table.
func (s *Store) Reindex() (int, error) {
	var n int
	err := s.withTx("reindex", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM entries_fts`); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		res, err := tx.Exec(
			`INSERT INTO entries_fts (rowid, text)
			 SELECT id, title || char(10) || summary || char(10) || body FROM entries`,
		)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		affected, _ := res.RowsAffected()
		n = int(affected)
		return nil
	})
	return n, err
}

// IndexConsistency counts entries without an index row and index rows
// without an entry. Both are zero on a healthy store.
func (s *Store) IndexConsistency() (missing, orphaned int, err error) {
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM entries WHERE id NOT IN (SELECT rowid FROM entries_fts)`,
	).Scan(&missing); err != nil {
		return 0, 0, Storage("index check", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM entries_fts WHERE rowid NOT IN (SELECT id FROM entries)`,
	).Scan(&orphaned); err != nil {
		return 0, 0, Storage("index check", err)
	}
	return missing, orphaned, nil
}

// ─── Search ──────────────────────────────────────────────────────────────────

// Search runs the index tier and, when the index found nothing or could not
// see every term, the substring fallback tier. Index hits keep their
// relevance order ahead of fallback hits.
func (s *Store) Search(query string, opts SearchOptions) ([]Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Validation("search", "query", "query must not be empty")
	}
	limit := s.clampLimit(opts.Limit)

	where, args := scopeClause(opts.Scope, strings.TrimSpace(opts.Project))
	if opts.Category != "" {
		where += " AND category = ?"
		args = append(args, opts.Category)
	}

	m := NewMatcher(query)
	primary, err := s.queryIndex(m.IndexableTerms(), where, args)
	if err != nil {
		return nil, Storage("search", err)
	}
	if len(primary) > 0 && m.Complete() {
		return Merge(primary, nil, limit), nil
	}

	fallback, err := s.scanFallback(m, where, args)
	if err != nil {
		return nil, Storage("search", err)
	}
	return Merge(primary, fallback, limit), nil
}

// queryIndex runs one MATCH per term and scores each entry by the number
// of distinct terms it matched.
func (s *Store) queryIndex(terms []string, where string, args []any) ([]Entry, error) {
	hits := make(map[int64]*scoredEntry)
	for _, term := range terms {
		q := `SELECT ` + prefixed("e.", entryColumns) + `
			FROM entries_fts
			JOIN entries e ON e.id = entries_fts.rowid
			WHERE entries_fts MATCH ? AND ` + where
		entries, err := queryEntries(s.db, q, append([]any{quoteFTS(term)}, args...)...)
		if err != nil {
			return nil, fmt.Errorf("index query %q: %w", term, err)
		}
		for _, e := range entries {
			if h, ok := hits[e.ID]; ok {
				h.score++
				continue
			}
			hits[e.ID] = &scoredEntry{Entry: e, score: 1}
		}
	}
	list := make([]scoredEntry, 0, len(hits))
	for _, h := range hits {
		list = append(list, *h)
	}
	return rankScored(list), nil
}

// scanFallback walks the newest in-scope entries and keeps those whose
// text contains the query, compared case-insensitively.
func (s *Store) scanFallback(m *Matcher, where string, args []any) ([]Entry, error) {
	scanLimit := s.cfg.FallbackScanLimit
	if scanLimit <= 0 {
		scanLimit = -1
	}
	rows, err := s.db.Query(
		`SELECT `+entryColumns+` FROM entries WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		append(args, scanLimit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("fallback scan: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if m.Matches(e) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultSearchResults
	}
	if limit <= 0 {
		limit = 10
	}
	if s.cfg.MaxSearchResults > 0 && limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}
	return limit
}

// quoteFTS turns a raw term into an FTS5 string literal so operators and
// punctuation in user input are matched literally.
func quoteFTS(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

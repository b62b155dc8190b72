package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── JSON ────────────────────────────────────────────────────────────────────

// SchemaVersion is the JSON document version this build writes and the
// highest it reads.
const SchemaVersion = 1

type jsonDocument struct {
	Version    int             `json:"version"`
	ExportedAt string          `json:"exported_at,omitempty"`
	Count      int             `json:"count"`
	Entries    json.RawMessage `json:"entries"`
}

type titleBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func encodeJSON(w io.Writer, entries []store.Entry, includeMeta bool) error {
	var payload any = entries
	if !includeMeta {
		slim := make([]titleBody, len(entries))
		for i, e := range entries {
			slim[i] = titleBody{Title: e.Title, Body: e.Body}
		}
		payload = slim
	}
	if entries == nil {
		payload = []store.Entry{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	doc := jsonDocument{
		Version: SchemaVersion,
		Count:   len(entries),
		Entries: raw,
	}
	if includeMeta {
		doc.ExportedAt = store.Now()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func decodeJSON(r io.Reader) ([]store.Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, store.Format("import", err, "read payload")
	}
	data = bytes.TrimSpace(data)

	// A bare array is accepted as well as the versioned document.
	raw := json.RawMessage(data)
	if !bytes.HasPrefix(data, []byte("[")) {
		var doc jsonDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, store.Format("import", err, "malformed json document")
		}
		if doc.Version > SchemaVersion {
			return nil, store.Conflict("import", "json document version %d is newer than supported version %d", doc.Version, SchemaVersion)
		}
		if doc.Entries == nil {
			return nil, store.Format("import", nil, "json document has no entries field")
		}
		raw = doc.Entries
	}

	var entries []store.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, store.Format("import", err, "malformed json entries")
	}
	for i, e := range entries {
		if e.Scope != "" && e.Scope != store.ScopeProject && e.Scope != store.ScopeGlobal {
			return nil, store.Format("import", nil, "entry %d: unknown scope %q", i+1, e.Scope)
		}
	}
	return entries, nil
}

// ─── CSV ─────────────────────────────────────────────────────────────────────

var csvColumns = []string{"id", "scope", "project", "category", "entry_type", "title", "summary", "body", "created_at", "updated_at"}

func encodeCSV(w io.Writer, entries []store.Entry, includeMeta bool) error {
	cw := csv.NewWriter(w)
	if !includeMeta {
		if err := cw.Write([]string{"title", "body"}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write([]string{e.Title, e.Body}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10), string(e.Scope), e.ProjectName(), e.Category, e.EntryType,
			e.Title, e.Summary, e.Body, e.CreatedAt, e.UpdatedAt,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeCSV(r io.Reader) ([]store.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, store.Format("import", nil, "empty csv payload")
	}
	if err != nil {
		return nil, store.Format("import", err, "malformed csv header")
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["body"]; !ok {
		return nil, store.Format("import", nil, "csv header has no body column")
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var entries []store.Entry
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, store.Format("import", err, "malformed csv row %d", line)
		}
		e := store.Entry{
			Scope:     store.Scope(get(row, "scope")),
			Category:  get(row, "category"),
			EntryType: get(row, "entry_type"),
			Title:     get(row, "title"),
			Summary:   get(row, "summary"),
			Body:      get(row, "body"),
			CreatedAt: get(row, "created_at"),
			UpdatedAt: get(row, "updated_at"),
		}
		if e.Scope != "" && e.Scope != store.ScopeProject && e.Scope != store.ScopeGlobal {
			return nil, store.Format("import", nil, "csv row %d: unknown scope %q", line, e.Scope)
		}
		if p := get(row, "project"); p != "" {
			e.Project = &p
		}
		if v := get(row, "id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, store.Format("import", err, "csv row %d: bad id %q", line, v)
			}
			e.ID = id
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ─── Plain text ──────────────────────────────────────────────────────────────

// Plain text carries bodies only, one per block, blocks split by "---".
func encodeText(w io.Writer, entries []store.Entry) error {
	for i, e := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"+separator+"\n\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, escapeBody(e.Body)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func decodeText(r io.Reader) ([]store.Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, store.Format("import", err, "read payload")
	}
	var (
		entries []store.Entry
		block   []string
	)
	flush := func() {
		body := strings.Trim(strings.Join(block, "\n"), "\n")
		if strings.TrimSpace(body) != "" {
			entries = append(entries, store.Entry{Body: body})
		}
		block = block[:0]
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == separator {
			flush()
			continue
		}
		block = append(block, unescapeLine(line))
	}
	flush()
	return entries, nil
}

// Package export serializes memory entries to markdown, JSON, CSV and plain
// text, and reads them back.
//
// JSON is the full-fidelity format: every field survives a round trip.
// The other formats are best effort on the way back in.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wty0512/memory-mcp-server/internal/store"
)

type Format string

const (
	Markdown Format = "markdown"
	JSON     Format = "json"
	CSV      Format = "csv"
	Text     Format = "txt"
)

// Formats lists the supported format tokens in display order.
var Formats = []Format{Markdown, JSON, CSV, Text}

// ParseFormat accepts the canonical tokens and a few common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "txt", "text", "plain":
		return Text, nil
	default:
		return "", store.Format("format", nil, "unsupported format %q (want markdown, json, csv or txt)", s)
	}
}

// Extension returns the file extension used when writing a format to disk.
func (f Format) Extension() string {
	if f == Markdown {
		return ".md"
	}
	return "." + string(f)
}

type Options struct {
	Format Format
	// IncludeMetadata=false keeps only title and body.
	IncludeMetadata bool
	// Title names the document in formats that have a header.
	Title string
	// Global selects the global memory header.
	Global bool
}

// Encode writes entries in the requested format.
func Encode(w io.Writer, entries []store.Entry, opts Options) error {
	switch opts.Format {
	case Markdown:
		header := MarkdownHeader(opts.Title)
		if opts.Global {
			header = GlobalMarkdownHeader()
		} else if opts.Title == "" {
			header = MarkdownHeader("export")
		}
		return WriteMarkdown(w, header, entries, opts.IncludeMetadata)
	case JSON:
		return encodeJSON(w, entries, opts.IncludeMetadata)
	case CSV:
		return encodeCSV(w, entries, opts.IncludeMetadata)
	case Text:
		return encodeText(w, entries)
	default:
		return store.Format("export", nil, "unsupported format %q", opts.Format)
	}
}

// EncodeBytes is Encode into a buffer.
func EncodeBytes(entries []store.Entry, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, entries, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a payload back into entries. Malformed input is a
// format_error; a JSON document from a newer schema is a conflict.
func Decode(r io.Reader, format Format) ([]store.Entry, error) {
	var (
		entries []store.Entry
		err     error
	)
	switch format {
	case Markdown:
		var doc *MarkdownDoc
		doc, err = ParseMarkdown(r)
		if err == nil {
			entries = doc.Entries
		}
	case JSON:
		entries, err = decodeJSON(r)
	case CSV:
		entries, err = decodeCSV(r)
	case Text:
		entries, err = decodeText(r)
	default:
		return nil, store.Format("import", nil, "unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, store.Format("import", nil, "no entries found in %s payload", format)
	}
	return entries, nil
}

// WriteFile writes data to path atomically: a temp file in the same
// directory is renamed over the target.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ─── Escaping ────────────────────────────────────────────────────────────────
//
// Body lines that look like structure (section headings, separators, the
// metadata marker) get a leading backslash, as do lines that already start
// with one, so unescape is exact.

func escapeBody(body string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if needsEscape(l) {
			lines[i] = `\` + l
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(l string) string {
	if strings.HasPrefix(l, `\`) {
		return l[1:]
	}
	return l
}

func needsEscape(l string) bool {
	return strings.HasPrefix(l, "## ") ||
		strings.TrimSpace(l) == separator ||
		strings.HasPrefix(l, metaOpen) ||
		strings.HasPrefix(l, `\`)
}

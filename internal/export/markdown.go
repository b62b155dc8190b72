package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── Markdown layout ─────────────────────────────────────────────────────────
//
//	# AI Memory for <project>
//
//	## <created_at> - <title> #<category>
//	<!-- memory
//	id: 7
//	...
//	-->
//
//	<body>
//
//	---
//
// The metadata comment is optional: hand-written sections with only the
// heading line are accepted and get their fields from the heading.

const (
	separator     = "---"
	metaOpen      = "<!-- memory"
	metaClose     = "-->"
	projectPrefix = "AI Memory for "
	globalTitle   = "AI Memory (global)"
	untitled      = "Untitled"
)

var (
	headingRe  = regexp.MustCompile(`^## (\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?) - (.*)$`)
	categoryRe = regexp.MustCompile(`^(.*?)\s+#(\S+)$`)
)

// MarkdownHeader is the document title for a project file.
func MarkdownHeader(project string) string { return projectPrefix + project }

// GlobalMarkdownHeader is the document title for the global file.
func GlobalMarkdownHeader() string { return globalTitle }

// MarkdownDoc is a parsed markdown memory file.
type MarkdownDoc struct {
	Header  string
	Project string
	Global  bool
	Entries []store.Entry
}

type sectionMeta struct {
	ID        int64       `yaml:"id,omitempty"`
	Scope     store.Scope `yaml:"scope,omitempty"`
	Project   string      `yaml:"project,omitempty"`
	Category  string      `yaml:"category,omitempty"`
	EntryType string      `yaml:"entry_type,omitempty"`
	Title     string      `yaml:"title,omitempty"`
	Summary   string      `yaml:"summary,omitempty"`
	CreatedAt string      `yaml:"created_at,omitempty"`
	UpdatedAt string      `yaml:"updated_at,omitempty"`
}

// WriteMarkdown renders a document. Without metadata each section is just
// the title heading and the body.
func WriteMarkdown(w io.Writer, header string, entries []store.Entry, includeMeta bool) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n\n", header)

	for _, e := range entries {
		title := strings.Join(strings.Fields(e.Title), " ")
		if title == "" {
			title = untitled
		}
		if includeMeta {
			heading := fmt.Sprintf("## %s - %s", e.CreatedAt, title)
			if e.Category != "" && !strings.ContainsAny(e.Category, " \t\n") {
				heading += " #" + e.Category
			}
			bw.WriteString(heading + "\n")

			meta, err := yaml.Marshal(sectionMeta{
				ID:        e.ID,
				Scope:     e.Scope,
				Project:   e.ProjectName(),
				Category:  e.Category,
				EntryType: e.EntryType,
				Title:     e.Title,
				Summary:   e.Summary,
				CreatedAt: e.CreatedAt,
				UpdatedAt: e.UpdatedAt,
			})
			if err != nil {
				return fmt.Errorf("marshal metadata for entry %d: %w", e.ID, err)
			}
			bw.WriteString(metaOpen + "\n")
			bw.Write(meta)
			bw.WriteString(metaClose + "\n")
		} else {
			bw.WriteString("## " + title + "\n")
		}
		bw.WriteString("\n" + escapeBody(e.Body) + "\n\n" + separator + "\n\n")
	}
	return bw.Flush()
}

type section struct {
	heading string
	line    int
	meta    []string
	hasMeta bool
	inMeta  bool
	body    []string
}

// ParseMarkdown reads a markdown memory document.
func ParseMarkdown(r io.Reader) (*MarkdownDoc, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, store.Format("parse markdown", err, "read payload")
	}

	doc := &MarkdownDoc{}
	var cur *section
	flush := func() error {
		if cur == nil {
			return nil
		}
		e, err := cur.entry(doc)
		if err != nil {
			return err
		}
		doc.Entries = append(doc.Entries, e)
		cur = nil
		return nil
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case cur != nil && cur.inMeta:
			if strings.TrimSpace(line) == metaClose {
				cur.inMeta = false
			} else {
				cur.meta = append(cur.meta, line)
			}
		case strings.HasPrefix(line, "## "):
			if err := flush(); err != nil {
				return nil, err
			}
			cur = &section{heading: line, line: i + 1}
		case cur == nil:
			if doc.Header == "" && strings.HasPrefix(line, "# ") {
				doc.setHeader(strings.TrimSpace(strings.TrimPrefix(line, "# ")))
			}
		case strings.HasPrefix(line, metaOpen) && !cur.hasMeta && len(cur.body) == 0:
			cur.hasMeta, cur.inMeta = true, true
		case strings.TrimSpace(line) == separator:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.body = append(cur.body, unescapeLine(line))
		}
	}
	if cur != nil && cur.inMeta {
		return nil, store.Format("parse markdown", nil, "line %d: unterminated metadata block", cur.line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *MarkdownDoc) setHeader(h string) {
	d.Header = h
	switch {
	case h == globalTitle:
		d.Global = true
	case strings.HasPrefix(h, projectPrefix):
		d.Project = strings.TrimSpace(strings.TrimPrefix(h, projectPrefix))
	}
}

func (s *section) entry(doc *MarkdownDoc) (store.Entry, error) {
	e := store.Entry{Body: strings.Trim(strings.Join(s.body, "\n"), "\n")}

	rest := strings.TrimPrefix(s.heading, "## ")
	if m := headingRe.FindStringSubmatch(s.heading); m != nil {
		if ts, ok := store.NormalizeTimestamp(m[1]); ok {
			e.CreatedAt = ts
		}
		rest = m[2]
	}
	if m := categoryRe.FindStringSubmatch(rest); m != nil {
		rest, e.Category = m[1], m[2]
	}
	e.Title = strings.TrimSpace(rest)
	if e.Title == untitled {
		e.Title = ""
	}

	switch {
	case doc.Global:
		e.Scope = store.ScopeGlobal
	case doc.Project != "":
		p := doc.Project
		e.Scope, e.Project = store.ScopeProject, &p
	}

	if s.hasMeta {
		var meta sectionMeta
		if err := yaml.Unmarshal([]byte(strings.Join(s.meta, "\n")), &meta); err != nil {
			return store.Entry{}, store.Format("parse markdown", err, "line %d: bad metadata", s.line)
		}
		e.ID = meta.ID
		e.Title = meta.Title
		e.Category = meta.Category
		e.EntryType = meta.EntryType
		e.Summary = meta.Summary
		if meta.Scope != "" {
			e.Scope = meta.Scope
		}
		if meta.Project != "" {
			p := meta.Project
			e.Project = &p
		}
		if meta.CreatedAt != "" {
			e.CreatedAt = meta.CreatedAt
		}
		if meta.UpdatedAt != "" {
			e.UpdatedAt = meta.UpdatedAt
		}
	}
	if e.Scope == store.ScopeGlobal {
		e.Project = nil
	}
	return e, nil
}

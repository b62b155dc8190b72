package store

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// MinIndexedTermRunes is the trigram window size. Shorter terms cannot be
// answered by the index and force the fallback scan.
const MinIndexedTermRunes = 3

// fold returns a caseless form of s. A Caser is stateful, so one is built
// per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

// ParseTerms splits a query into distinct whitespace-delimited terms with
// surrounding quotes removed. Duplicates are detected case-insensitively.
func ParseTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, `"'`)
		if w == "" {
			continue
		}
		k := fold(w)
		if seen[k] {
			continue
		}
		seen[k] = true
		terms = append(terms, w)
	}
	return terms
}

// Matcher evaluates a parsed query against entry text in memory. The
// markdown backend uses it for both tiers; the SQLite backend only for
// the fallback tier.
type Matcher struct {
	query string
	terms []matchTerm
}

// matchTerm keeps the term as typed for the FTS index, whose trigram
// tokenizer folds case itself, and the fully folded form for in-memory
// comparison.
type matchTerm struct {
	raw    string
	folded string
}

func (t matchTerm) indexable() bool {
	return utf8.RuneCountInString(t.raw) >= MinIndexedTermRunes
}

func NewMatcher(query string) *Matcher {
	m := &Matcher{query: fold(strings.TrimSpace(query))}
	for _, t := range ParseTerms(query) {
		m.terms = append(m.terms, matchTerm{raw: t, folded: fold(t)})
	}
	return m
}

// IndexableTerms returns the terms long enough for the trigram index, as
// typed.
func (m *Matcher) IndexableTerms() []string {
	var out []string
	for _, t := range m.terms {
		if t.indexable() {
			out = append(out, t.raw)
		}
	}
	return out
}

// Complete is true when every term can be answered by the index.
func (m *Matcher) Complete() bool {
	for _, t := range m.terms {
		if !t.indexable() {
			return false
		}
	}
	return true
}

// Score counts the distinct indexable terms contained in e.
func (m *Matcher) Score(e Entry) int {
	text := fold(e.IndexText())
	n := 0
	for _, t := range m.terms {
		if t.indexable() && strings.Contains(text, t.folded) {
			n++
		}
	}
	return n
}

// Matches is the fallback predicate: the whole query, or every term, is a
// substring of title, summary or body.
func (m *Matcher) Matches(e Entry) bool {
	text := fold(e.IndexText())
	if m.query != "" && strings.Contains(text, m.query) {
		return true
	}
	if len(m.terms) == 0 {
		return false
	}
	for _, t := range m.terms {
		if !strings.Contains(text, t.folded) {
			return false
		}
	}
	return true
}

type scoredEntry struct {
	Entry
	score int
}

// rankScored orders by score, then recency, then id.
func rankScored(hits []scoredEntry) []Entry {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID > b.ID
	})
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.Entry
	}
	return out
}

// Merge keeps the order of primary, appends unseen ids from secondary and
// truncates to limit.
func Merge(primary, secondary []Entry, limit int) []Entry {
	seen := make(map[int64]bool, len(primary))
	out := make([]Entry, 0, len(primary)+len(secondary))
	for _, list := range [][]Entry{primary, secondary} {
		for _, e := range list {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RankInMemory runs both search tiers over an in-memory candidate set.
// Candidates must already be filtered by scope, project and category.
func RankInMemory(candidates []Entry, query string, limit int) []Entry {
	m := NewMatcher(query)
	var hits []scoredEntry
	if len(m.IndexableTerms()) > 0 {
		for _, e := range candidates {
			if n := m.Score(e); n > 0 {
				hits = append(hits, scoredEntry{Entry: e, score: n})
			}
		}
	}
	primary := rankScored(hits)
	if len(primary) > 0 && m.Complete() {
		return Merge(primary, nil, limit)
	}

	recent := append([]Entry(nil), candidates...)
	SortRecent(recent)
	var fallback []Entry
	for _, e := range recent {
		if m.Matches(e) {
			fallback = append(fallback, e)
		}
	}
	return Merge(primary, fallback, limit)
}

// Page applies offset and limit to an ordered slice. limit <= 0 means all.
func Page(entries []Entry, limit, offset int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

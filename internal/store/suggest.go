package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

const maxSuggestions = 3

// SuggestProjects returns known project names that look like name, best
// match first.
func SuggestProjects(known []string, name string) []string {
	name = strings.TrimSpace(name)
	if name == "" || len(known) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] && s != name && len(out) < maxSuggestions {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range fuzzy.Find(name, known) {
		add(m.Str)
	}
	// fuzzy needs every pattern rune in order; a shorter known name that the
	// query contains (typo appended) is still worth offering.
	for _, k := range known {
		if containsFold(name, k) || containsFold(k, name) {
			add(k)
		}
	}
	return out
}

// WithProjectHint appends "did you mean" suggestions to a not-found error
// about project. Other errors pass through untouched.
func WithProjectHint(err error, b Backend, project string) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNotFound {
		return err
	}
	projects, lerr := b.ListProjects()
	if lerr != nil {
		return err
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Project)
	}
	hints := SuggestProjects(names, project)
	if len(hints) == 0 {
		return err
	}
	hinted := *e
	hinted.Msg = fmt.Sprintf("%s; did you mean %s?", e.Msg, strings.Join(quoteAll(hints), " or "))
	return &hinted
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

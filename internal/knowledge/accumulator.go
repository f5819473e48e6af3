package knowledge

import (
	"fmt"
	"html"
)

// Accumulator holds the knowledge document being built plus the set of
// files already folded in. The set only grows and the document is only
// replaced through Commit, so a rejected merge can never lose summaries
// accepted earlier.
type Accumulator struct {
	xml    string
	merged map[string]struct{}
}

// NewAccumulator seeds the document with the project skeleton.
func NewAccumulator(project, overview string) *Accumulator {
	return &Accumulator{
		xml:    initialXML(project, overview),
		merged: make(map[string]struct{}),
	}
}

func initialXML(project, overview string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<codebase_knowledge project=%q>
  <overview>%s</overview>
  <files>
  </files>
</codebase_knowledge>`, project, html.EscapeString(overview))
}

// XML returns the current document.
func (a *Accumulator) XML() string { return a.xml }

// Merged reports whether path has already been folded in.
func (a *Accumulator) Merged(path string) bool {
	_, ok := a.merged[path]
	return ok
}

// MergedCount returns how many files the document covers.
func (a *Accumulator) MergedCount() int { return len(a.merged) }

// Commit replaces the document and records the batch as merged.
// Callers commit only after the candidate has been validated.
func (a *Accumulator) Commit(xml string, paths []string) {
	a.xml = xml
	for _, p := range paths {
		a.merged[p] = struct{}{}
	}
}

// Replace swaps the document without touching the merged set. Used by
// enrichment passes that rewrite the whole document rather than adding
// files.
func (a *Accumulator) Replace(xml string) {
	a.xml = xml
}

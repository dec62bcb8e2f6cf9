package lsp

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DocumentFilter narrows a registration to documents by language id, URI
// scheme and/or path glob. Empty fields match anything.
type DocumentFilter struct {
	Language string `json:"language,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

// Document carries the attributes a DocumentFilter is evaluated against.
// LanguageID is empty when unknown.
type Document struct {
	URI        DocumentURI
	LanguageID string
}

// Matches reports whether the document satisfies every non-empty criterion
// of the filter. A language criterion never matches a document whose
// language is unknown.
func (f DocumentFilter) Matches(doc Document) bool {
	if f.Language != "" && f.Language != doc.LanguageID {
		return false
	}
	if f.Scheme != "" && f.Scheme != doc.URI.Scheme() {
		return false
	}
	if f.Pattern != "" {
		ok, err := doublestar.Match(strings.TrimPrefix(f.Pattern, "/"), strings.TrimPrefix(doc.URI.Path(), "/"))
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// DocumentSelector is an ordered set of filters; a document matches the
// selector if it matches any filter. A nil or empty selector matches every
// document.
type DocumentSelector []DocumentFilter

// ForPattern builds a selector with one filter per glob pattern.
func ForPattern(patterns ...string) DocumentSelector {
	sel := make(DocumentSelector, 0, len(patterns))
	for _, p := range patterns {
		sel = append(sel, DocumentFilter{Pattern: p})
	}
	return sel
}

// ForLanguage builds a selector with one filter per language id.
func ForLanguage(languages ...string) DocumentSelector {
	sel := make(DocumentSelector, 0, len(languages))
	for _, l := range languages {
		sel = append(sel, DocumentFilter{Language: l})
	}
	return sel
}

// ForScheme builds a selector with one filter per URI scheme.
func ForScheme(schemes ...string) DocumentSelector {
	sel := make(DocumentSelector, 0, len(schemes))
	for _, s := range schemes {
		sel = append(sel, DocumentFilter{Scheme: s})
	}
	return sel
}

// Matches reports whether any filter matches the document.
func (s DocumentSelector) Matches(doc Document) bool {
	if len(s) == 0 {
		return true
	}
	for _, f := range s {
		if f.Matches(doc) {
			return true
		}
	}
	return false
}

// Key returns a canonical form of the selector. Two selectors have the same
// key iff they contain the same set of filters, irrespective of order and
// duplicates. Nil and empty selectors share the empty key.
func (s DocumentSelector) Key() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s))
	for _, f := range s {
		b, _ := json.Marshal(f)
		parts = append(parts, string(b))
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return strings.Join(parts, "\x1f")
}

// Equivalent reports whether both selectors contain the same filter set.
func (s DocumentSelector) Equivalent(other DocumentSelector) bool {
	return s.Key() == other.Key()
}

// String renders the selector for logs.
func (s DocumentSelector) String() string {
	if len(s) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(s))
	for _, f := range s {
		var crit []string
		if f.Language != "" {
			crit = append(crit, "language="+f.Language)
		}
		if f.Scheme != "" {
			crit = append(crit, "scheme="+f.Scheme)
		}
		if f.Pattern != "" {
			crit = append(crit, "pattern="+f.Pattern)
		}
		parts = append(parts, strings.Join(crit, ","))
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

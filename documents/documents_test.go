package documents

import (
	"errors"
	"testing"

	"github.com/ggoodman/lsp-server-go/lsp"
)

func edit(sl, sc, el, ec int, text string) lsp.TextDocumentContentChangeEvent {
	r := lsp.NewRange(sl, sc, el, ec)
	return lsp.TextDocumentContentChangeEvent{Range: &r, Text: text}
}

func TestApplyChanges(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		changes []lsp.TextDocumentContentChangeEvent
		want    string
	}{
		{"insert", "hello world", []lsp.TextDocumentContentChangeEvent{edit(0, 5, 0, 5, ",")}, "hello, world"},
		{"replace second line", "a\nbcd\ne", []lsp.TextDocumentContentChangeEvent{edit(1, 1, 1, 3, "X")}, "a\nbX\ne"},
		{"crlf", "a\r\nbc", []lsp.TextDocumentContentChangeEvent{edit(1, 0, 1, 1, "B")}, "a\r\nBc"},
		{"across lines", "one\ntwo\nthree", []lsp.TextDocumentContentChangeEvent{edit(0, 2, 2, 1, "")}, "onhree"},
		{"full replace", "old", []lsp.TextDocumentContentChangeEvent{{Text: "new"}}, "new"},
		{"sequential", "abc", []lsp.TextDocumentContentChangeEvent{edit(0, 0, 0, 1, "x"), edit(0, 3, 0, 3, "!")}, "xbc!"},
		{"clamped past end", "ab\ncd", []lsp.TextDocumentContentChangeEvent{edit(1, 9, 7, 0, "!")}, "ab\ncd!"},
		// the emoji is two UTF-16 code units and four bytes
		{"surrogate pair", "a😀b", []lsp.TextDocumentContentChangeEvent{edit(0, 3, 0, 4, "c")}, "a😀c"},
		{"cjk", "日本語", []lsp.TextDocumentContentChangeEvent{edit(0, 1, 0, 2, "-")}, "日-語"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyChanges(tc.text, tc.changes)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestApplyChangesRejectsInvertedRange(t *testing.T) {
	_, err := ApplyChanges("abc", []lsp.TextDocumentContentChangeEvent{edit(0, 2, 0, 1, "")})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestDocumentApply(t *testing.T) {
	doc := FromItem(lsp.TextDocumentItem{URI: "file:///a.txt", LanguageID: "plaintext", Version: 1, Text: "abc"})
	if err := doc.Apply(2, []lsp.TextDocumentContentChangeEvent{edit(0, 1, 0, 2, "B")}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if doc.Text != "aBc" || doc.Version != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

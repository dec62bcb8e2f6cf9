package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNegativePosition is returned when a decoded Position carries a
	// negative line or character offset.
	ErrNegativePosition = errors.New("lsp: negative position component")
	// ErrIncompletePosition is returned when a decoded Position omits line or
	// character.
	ErrIncompletePosition = errors.New("lsp: position requires line and character")
)

// DocumentURI identifies a text document, e.g. file:///home/me/main.go.
type DocumentURI string

// Scheme returns the URI scheme ("file", "untitled", ...) or "" if the URI
// cannot be parsed.
func (u DocumentURI) Scheme() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Scheme
}

// Path returns the unescaped path component of the URI. Windows drive paths
// (file:///c:/x) keep their leading slash; glob matching strips it.
func (u DocumentURI) Path() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return string(u)
	}
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	return parsed.Path
}

// FileURI converts an absolute slash-separated path into a file URI.
func FileURI(path string) DocumentURI {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// Position is a zero-based line and UTF-16 character offset in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// UnmarshalJSON rejects incomplete and negative positions as malformed input.
func (p *Position) UnmarshalJSON(data []byte) error {
	var wire struct {
		Line      *int `json:"line"`
		Character *int `json:"character"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Line == nil || wire.Character == nil {
		return ErrIncompletePosition
	}
	if *wire.Line < 0 || *wire.Character < 0 {
		return fmt.Errorf("%w: line=%d character=%d", ErrNegativePosition, *wire.Line, *wire.Character)
	}
	p.Line = *wire.Line
	p.Character = *wire.Character
	return nil
}

// Range is a span between two positions. Start and End are not required to
// be ordered.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewRange builds a Range from two line/character pairs.
func NewRange(startLine, startChar, endLine, endChar int) Range {
	return Range{
		Start: Position{Line: startLine, Character: startChar},
		End:   Position{Line: endLine, Character: endChar},
	}
}

// Location is a range inside a specific document.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextEdit replaces the text in Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier names a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a whole document on didOpen.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams points at a position inside a document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextDocumentURI implements TextDocumentParams.
func (p TextDocumentPositionParams) TextDocumentURI() DocumentURI { return p.TextDocument.URI }

// TextDocumentParams is implemented by every params shape that targets a
// single document. The dispatcher uses it to evaluate document selectors.
type TextDocumentParams interface {
	TextDocumentURI() DocumentURI
}

// Bool returns a pointer to b. Optional booleans use pointers so that an
// explicit false survives a round trip distinct from "absent".
func Bool(b bool) *bool { return &b }

// BoolValue returns *b, or false when b is nil.
func BoolValue(b *bool) bool { return b != nil && *b }

// Package documents tracks the text of the documents a client has open.
//
// The engine keeps a Store in sync with textDocument/didOpen, didChange and
// didClose before handlers see those notifications, so handlers can read the
// current text of any open document through Store.Get.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ggoodman/lsp-server-go/lsp"
)

var (
	// ErrNotFound is returned when changing a document that is not open.
	ErrNotFound = errors.New("document not open")
	// ErrInvalidRange is returned for an edit whose end precedes its start.
	ErrInvalidRange = errors.New("invalid edit range")
)

// Document is the server's copy of an open text document.
type Document struct {
	URI        lsp.DocumentURI `json:"uri"`
	LanguageID string          `json:"languageId"`
	Version    int             `json:"version"`
	Text       string          `json:"text"`
}

// FromItem converts a didOpen payload into a Document.
func FromItem(item lsp.TextDocumentItem) Document {
	return Document{URI: item.URI, LanguageID: item.LanguageID, Version: item.Version, Text: item.Text}
}

// Store holds open documents. Implementations must be safe for concurrent use.
type Store interface {
	// Open records a document, replacing any previous copy.
	Open(ctx context.Context, item lsp.TextDocumentItem) error
	// Change applies content changes in order and returns the new document.
	// It returns ErrNotFound if the document is not open.
	Change(ctx context.Context, uri lsp.DocumentURI, version int, changes []lsp.TextDocumentContentChangeEvent) (*Document, error)
	// Close forgets a document. Closing an unknown document is not an error.
	Close(ctx context.Context, uri lsp.DocumentURI) error
	// Get returns the document, or nil if it is not open.
	Get(ctx context.Context, uri lsp.DocumentURI) (*Document, error)
}

// Apply applies changes to doc in order. A change without a range replaces
// the whole text.
func (doc *Document) Apply(version int, changes []lsp.TextDocumentContentChangeEvent) error {
	text, err := ApplyChanges(doc.Text, changes)
	if err != nil {
		return err
	}
	doc.Text = text
	doc.Version = version
	return nil
}

// ApplyChanges returns text with changes applied in order. Ranges use UTF-16
// code unit offsets; positions past the end of a line or of the document are
// clamped.
func ApplyChanges(text string, changes []lsp.TextDocumentContentChangeEvent) (string, error) {
	for i, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		start := Offset(text, c.Range.Start)
		end := Offset(text, c.Range.End)
		if end < start {
			return "", fmt.Errorf("%w: change %d: %v", ErrInvalidRange, i, *c.Range)
		}
		text = text[:start] + c.Text + text[end:]
	}
	return text, nil
}

// Offset converts pos into a byte offset in text.
func Offset(text string, pos lsp.Position) int {
	i := 0
	for line := 0; line < pos.Line; line++ {
		j := strings.IndexAny(text[i:], "\r\n")
		if j < 0 {
			return len(text)
		}
		i += j
		if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			i += 2
		} else {
			i++
		}
	}

	units := 0
	for i < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '\n' || r == '\r' {
			break
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		// never split a surrogate pair
		if units+n > pos.Character {
			break
		}
		units += n
		i += size
	}
	return i
}

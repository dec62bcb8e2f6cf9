package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/lsp"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := New(2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	uri := lsp.DocumentURI("file:///main.go")
	if err := s.Open(ctx, lsp.TextDocumentItem{URI: uri, LanguageID: "go", Version: 1, Text: "package main\n"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	r := lsp.NewRange(0, 8, 0, 12)
	doc, err := s.Change(ctx, uri, 2, []lsp.TextDocumentContentChangeEvent{{Range: &r, Text: "demo"}})
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if doc.Text != "package demo\n" || doc.Version != 2 || doc.LanguageID != "go" {
		t.Fatalf("unexpected document %+v", doc)
	}

	got, err := s.Get(ctx, uri)
	if err != nil || got == nil || got.Text != "package demo\n" {
		t.Fatalf("unexpected get %+v, %v", got, err)
	}

	if err := s.Close(ctx, uri); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, _ := s.Get(ctx, uri); got != nil {
		t.Fatalf("expected closed document to be gone, got %+v", got)
	}
	if _, err := s.Change(ctx, uri, 3, nil); !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, _ := New(2)
	for _, uri := range []lsp.DocumentURI{"file:///a", "file:///b"} {
		_ = s.Open(ctx, lsp.TextDocumentItem{URI: uri, Text: string(uri)})
	}
	// touch a so that b is the eviction candidate
	if got, _ := s.Get(ctx, "file:///a"); got == nil {
		t.Fatalf("expected a to be open")
	}
	_ = s.Open(ctx, lsp.TextDocumentItem{URI: "file:///c"})

	if got, _ := s.Get(ctx, "file:///b"); got != nil {
		t.Fatalf("expected b to be evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 documents, got %d", s.Len())
	}
}

func TestMemoryStoreChangeErrorKeepsDocument(t *testing.T) {
	ctx := context.Background()
	s, _ := New(0)
	uri := lsp.DocumentURI("file:///x")
	_ = s.Open(ctx, lsp.TextDocumentItem{URI: uri, Version: 1, Text: "abc"})

	r := lsp.NewRange(0, 2, 0, 1)
	if _, err := s.Change(ctx, uri, 2, []lsp.TextDocumentContentChangeEvent{{Range: &r}}); !errors.Is(err, documents.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	got, _ := s.Get(ctx, uri)
	if got.Text != "abc" || got.Version != 1 {
		t.Fatalf("expected document to be unchanged, got %+v", got)
	}
}

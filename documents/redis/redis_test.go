package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = client.Close()
	})

	s, err := New(Config{Client: client, KeyPrefix: "lsp:test:", TTL: ttl})
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	return s
}

func TestRedisStore(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	uri := lsp.DocumentURI("file:///notes.md")

	if err := s.Open(ctx, lsp.TextDocumentItem{URI: uri, LanguageID: "markdown", Version: 1, Text: "# Title\n"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	r := lsp.NewRange(0, 2, 0, 7)
	doc, err := s.Change(ctx, uri, 2, []lsp.TextDocumentContentChangeEvent{{Range: &r, Text: "Notes"}})
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if doc.Text != "# Notes\n" || doc.Version != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}

	got, err := s.Get(ctx, uri)
	if err != nil || got == nil || got.LanguageID != "markdown" || got.Text != "# Notes\n" {
		t.Fatalf("unexpected get %+v, %v", got, err)
	}

	if err := s.Close(ctx, uri); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, err := s.Get(ctx, uri); err != nil || got != nil {
		t.Fatalf("expected closed document to be gone, got %+v, %v", got, err)
	}
	if _, err := s.Change(ctx, uri, 3, nil); !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	s := newTestStore(t, 100*time.Millisecond)
	ctx := context.Background()
	uri := lsp.DocumentURI("file:///tmp.txt")

	if err := s.Open(ctx, lsp.TextDocumentItem{URI: uri, Text: "x"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	if got, err := s.Get(ctx, uri); err != nil || got != nil {
		t.Fatalf("expected expired document, got %+v, %v", got, err)
	}
}

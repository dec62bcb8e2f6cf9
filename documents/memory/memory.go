// Package memory provides an in-memory documents.Store backed by
// github.com/hashicorp/golang-lru/v2. When more documents are open than the
// store can hold, the least recently used one is forgotten.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/lsp"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxDocuments bounds the store when New is given a non-positive size.
const DefaultMaxDocuments = 1024

// Store implements documents.Store in memory.
type Store struct {
	// mu serializes read-modify-write in Change.
	mu    sync.Mutex
	cache *lru.Cache[lsp.DocumentURI, documents.Document]
}

// New creates a store holding at most maxDocuments documents.
func New(maxDocuments int) (*Store, error) {
	if maxDocuments <= 0 {
		maxDocuments = DefaultMaxDocuments
	}
	cache, err := lru.New[lsp.DocumentURI, documents.Document](maxDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

func (s *Store) Open(ctx context.Context, item lsp.TextDocumentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(item.URI, documents.FromItem(item))
	return nil
}

func (s *Store) Change(ctx context.Context, uri lsp.DocumentURI, version int, changes []lsp.TextDocumentContentChangeEvent) (*documents.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.cache.Get(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %s", documents.ErrNotFound, uri)
	}
	if err := doc.Apply(version, changes); err != nil {
		return nil, err
	}
	s.cache.Add(uri, doc)
	return &doc, nil
}

func (s *Store) Close(ctx context.Context, uri lsp.DocumentURI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(uri)
	return nil
}

func (s *Store) Get(ctx context.Context, uri lsp.DocumentURI) (*documents.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cache.Get(uri)
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// Len returns the number of open documents held.
func (s *Store) Len() int { return s.cache.Len() }

var _ documents.Store = (*Store)(nil)

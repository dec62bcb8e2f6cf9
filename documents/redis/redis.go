// Package redis provides a documents.Store that keeps open documents in Redis
// so that several server processes behind one client can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/lsp"
	"github.com/redis/go-redis/v9"
)

const maxChangeRetries = 5

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "lsp:documents:"
	KeyPrefix string

	// TTL expires documents that were not touched for this long. Zero keeps
	// them until didClose.
	TTL time.Duration
}

// Store implements documents.Store using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "lsp:documents:"
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

func (s *Store) key(uri lsp.DocumentURI) string { return s.keyPrefix + string(uri) }

func (s *Store) Open(ctx context.Context, item lsp.TextDocumentItem) error {
	data, err := json.Marshal(documents.FromItem(item))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := s.client.Set(ctx, s.key(item.URI), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", s.key(item.URI), err)
	}
	return nil
}

// Change applies the edits inside an optimistic transaction on the
// document key, retrying when another writer got there first.
func (s *Store) Change(ctx context.Context, uri lsp.DocumentURI, version int, changes []lsp.TextDocumentContentChangeEvent) (*documents.Document, error) {
	key := s.key(uri)
	var out *documents.Document

	txf := func(tx *redis.Tx) error {
		doc, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("%w: %s", documents.ErrNotFound, uri)
		}
		if err := doc.Apply(version, changes); err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			out = doc
		}
		return err
	}

	for range maxChangeRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("change %s: too much contention", uri)
}

func (s *Store) Close(ctx context.Context, uri lsp.DocumentURI) error {
	if err := s.client.Del(ctx, s.key(uri)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", s.key(uri), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, uri lsp.DocumentURI) (*documents.Document, error) {
	return s.load(ctx, s.client, s.key(uri))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, c getter, key string) (*documents.Document, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	var doc documents.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored document: %w", err)
	}
	return &doc, nil
}

// Shutdown closes the Redis client.
func (s *Store) Shutdown() error {
	return s.client.Close()
}

var _ documents.Store = (*Store)(nil)

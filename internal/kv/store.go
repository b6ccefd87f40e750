// Package kv provides small key-value stores: a durable store for
// assistant state that must survive restarts, and an in-process LRU
// session store for per-user conversational context.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is absent or its entry expired.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is a durable key-value store with optional per-key expiry.
// A zero TTL means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ABOUTME: Cache interface and sentinel errors for client-side persistence
// ABOUTME: The cache mirrors in-memory state; it is never read back mid-lifetime

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when a stored value cannot be decoded
var ErrCorrupt = errors.New("corrupt cache entry")

// ErrClosed is returned for operations on a closed cache
var ErrClosed = errors.New("cache closed")

// KV is the subset of cache operations a component needs to persist its own keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache is a string-keyed store that survives process restarts.
type Cache interface {
	KV

	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the cache
	Close() error
}

// GetJSON reads key and decodes it into v. Returns ErrNotFound for a missing
// key and an error wrapping ErrCorrupt when the value does not decode.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes v and writes it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}

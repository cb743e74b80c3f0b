// ABOUTME: Key namespacing so each component owns a disjoint slice of the cache
// ABOUTME: Namespaced views prefix every key with "<namespace>."

package store

import (
	"context"
	"strings"
)

// Namespaced is a view of a Cache restricted to keys under one prefix.
type Namespaced struct {
	cache  Cache
	prefix string
}

// Namespace returns a view of c whose keys are stored as "<ns>.<key>".
func Namespace(c Cache, ns string) *Namespaced {
	return &Namespaced{cache: c, prefix: ns + "."}
}

// Key returns the fully-qualified key stored in the underlying cache.
func (n *Namespaced) Key(key string) string {
	return n.prefix + key
}

// Get reads a key from this namespace.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.cache.Get(ctx, n.Key(key))
}

// Set writes a key in this namespace.
func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.cache.Set(ctx, n.Key(key), value)
}

// Delete removes keys from this namespace. Missing keys are not an error.
func (n *Namespaced) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.Key(k)
	}
	return n.cache.Delete(ctx, full...)
}

// Keys lists the keys in this namespace, without the prefix.
func (n *Namespaced) Keys(ctx context.Context) ([]string, error) {
	keys, err := n.cache.Keys(ctx, n.prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

// Clear removes every key in this namespace.
func (n *Namespaced) Clear(ctx context.Context) error {
	keys, err := n.cache.Keys(ctx, n.prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return n.cache.Delete(ctx, keys...)
}

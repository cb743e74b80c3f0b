// Package store provides the client's persisted cache: a small string-keyed
// store that survives process restarts.
//
// # Role
//
// In-memory component state is authoritative. The cache is a write-through
// mirror: components write their keys after every state change and read them
// back exactly once, at startup. Nothing reads the cache mid-lifetime to
// "refresh" memory.
//
// # Backends
//
//   - SQLiteCache: one table (cache_entries) in a SQLite file. The default
//     driver is modernc.org/sqlite (pure Go); "sqlite3" selects
//     github.com/mattn/go-sqlite3, which needs cgo.
//   - MemoryCache: map-backed, for tests and throwaway sessions.
//
// # Namespaces
//
// Each component owns a disjoint key namespace and only writes its own keys:
//
//	auth := store.Namespace(cache, "compliai.auth")   // token, user
//	chat := store.Namespace(cache, "compliai.chat")   // conversations, messages, active_conversation
//
// GetJSON/SetJSON encode values as JSON. An entry that fails to decode is
// reported as ErrCorrupt so callers can treat it as absent.
package store

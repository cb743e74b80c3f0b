// Package session owns the authenticated identity of the client process.
//
// # Overview
//
// Manager holds the single active Session and its bearer credential. It
// exposes Login, Register and Logout, mirrors the identity into the
// persisted cache, restores it once at startup, and reacts to expiry
// signals on the event bus.
//
// Validator runs in the background while a session is active and
// periodically calls the backend's "who am I" endpoint. A 401 there is
// published as events.KindTokenExpired; any other failure is logged and
// retried on the next tick.
//
// # Expiry protocol
//
// On token_expired or unauthorized the Manager stops the Validator, clears
// the session from memory and cache, emits events.KindLogout and sends the
// user to the sign-in entry point with SessionExpiredNotice. A user-initiated
// Logout runs the same sequence silently.
//
// A successful Login or Register while a session is active ends that session
// first: the Validator stops, the cache is purged and events.KindLogout is
// emitted with ReasonReplaced before events.KindLogin, without navigation.
//
// # Concurrency
//
// Login, Register, Logout and the expiry reaction are serialised by one
// operation lock. State reads (Session, Token, LastError) never wait on a
// network call. No lock is held while the bus delivers events.
package session

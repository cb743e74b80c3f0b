// Package conversation holds the client's chat state.
//
// # Overview
//
// Store owns the conversation list, the message buffer of the active
// conversation and the active conversation id. It keeps that state in sync
// with the backend and mirrors it into the persisted cache after every
// change. Memory is authoritative: the cache is read once, by Init, and
// otherwise only written.
//
// # Sending
//
// SendMessage appends the user's message before the request goes out. On
// success the assistant reply is appended and the conversation list is
// refreshed; on failure exactly that optimistic message is removed again.
// If the active conversation is replaced while a send is in flight, the
// late reply is not appended to the unrelated buffer.
//
// # Session coupling
//
// Store subscribes to the event bus and wipes its state and cache keys on
// logout. Expiry arrives as the logout the session manager emits once it has
// torn the session down, so a stale token_expired for a replaced credential
// leaves the new session's conversations alone. A 401 from any chat call is
// published as events.KindUnauthorized instead of being shown as an error.
//
// # Change notifications
//
// Watch returns a channel of Change values so a UI can redraw without
// polling. The terminal client uses it to drop stale listings and redraw its
// prompt when the session ends in the background:
//
//	changes := st.Watch(ctx)
//	for ch := range changes {
//		render(st.Messages())
//	}
package conversation

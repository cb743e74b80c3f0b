// Package app assembles the CompliAI client.
//
// # Overview
//
// App owns every long-lived component of the client process and the order
// they start and stop in:
//
//	cache (store.Cache)
//	  └─ bus (events.Bus)
//	       ├─ client (client.Client, credential read from the session manager)
//	       ├─ sessions (session.Manager + its Validator)
//	       └─ chat (conversation.Store)
//
// # Startup
//
// Start restores the persisted session first. Conversation state is only
// restored when a session survived; otherwise it belongs to whoever was
// signed in before and is wiped.
//
//	a, err := app.New(cfg, logger)
//	if err != nil { ... }
//	defer a.Close()
//	a.Start(ctx)
//
// # Expiry
//
// No wiring is needed for expiry: the validator and the conversation store
// report 401s on the bus, the session manager reacts by emitting logout and
// the conversation store clears itself on that event.
package app

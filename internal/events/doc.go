// Package events provides the in-process event bus that carries session
// lifecycle signals between components that do not know about each other.
//
// # Event Kinds
//
//   - token_expired: the token validator saw a 401 from the "who am I" endpoint
//   - unauthorized: any other authenticated call came back 401
//   - logout: the session was cleared (user initiated, after expiry, or
//     replaced by a new login)
//   - login: a session was established
//
// # Delivery
//
// Emit calls every listener registered at the time of the call, synchronously
// and in registration order, on the emitter's goroutine. There is no queue and
// no replay: a listener registered after an emission never sees it. A listener
// that returns an error or panics is logged and skipped; delivery continues.
//
//	bus := events.NewBus(logger)
//	unsubscribe := bus.Subscribe(func(ev events.Event) error {
//		if ev.Kind == events.KindLogout {
//			store.ClearAllData()
//		}
//		return nil
//	})
//	defer unsubscribe()
//
// Listeners must not hold locks that the emitter may also need; components in
// this module release their own state lock before calling Emit.
package events

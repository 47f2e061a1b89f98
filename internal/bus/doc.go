// Package bus provides the in-process publish/subscribe transport vehicles
// use to exchange state, schedule groups, proposals, scores and final
// assignments.
//
// # Main Types
//
//   - [Transport]: the interface participants depend on
//   - [Bus]: synchronous topic dispatcher with wildcard patterns
//   - [Filter]: a Transport wrapper that drops selected messages
//
// # Topic Patterns
//
// Topics are "/"-separated, for example "proposal/2/0". Subscriptions use
// patterns in which "*" matches one segment and a trailing "**" matches the
// rest of the topic:
//
//	b.Subscribe("state/1/0/**", h) // every vehicle of fleet 1/0
//	b.Subscribe("map/*", h)        // every lane's schedule group
//	b.Subscribe("**", h)           // everything
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publisher's goroutine and protected against panics. A handler must not
// publish while holding a lock its own subscriptions also take.
package bus

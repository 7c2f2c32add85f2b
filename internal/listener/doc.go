// Package listener implements the change listener: it owns the single upstream
// database session, exports every known resource once at startup and then keeps
// the exported files current as change notifications arrive.
//
// # Startup
//
// Run applies the session time zone, subscribes to the notification channel and
// bootstraps every registered resource in registry order. Notifications sent
// while bootstrap is running are buffered by the connection and picked up by
// the first poll.
//
// # Steady state
//
// The loop alternates between two phases:
//
//  1. Poll: wait for notifications until one tick (300ms by default) expires,
//     collecting each payload into a pending set. Duplicate names collapse.
//  2. Drain: fetch each distinct pending name once, sequentially.
//
// Fetches never overlap with each other or with polling. The order in which
// distinct names are drained is unspecified.
//
// # Failures
//
// Names that are not registered are logged and skipped. Every other failure
// (session setup, a fetch, receiving a notification) is fatal: Run returns a
// *SetupError, *FetchError or *NotificationError and performs no retry. The
// caller decides whether to exit or restart.
package listener

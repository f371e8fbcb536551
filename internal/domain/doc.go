// Package domain defines the follower notifier's value types and the
// contracts between its layers.
//
// Files are grouped by concept (follower.go, event.go, session.go,
// settings.go). No implementation code lives here; interfaces are declared
// next to the types they move so adapters and app can depend on them without
// importing each other.
package domain

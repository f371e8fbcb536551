// Package app provides the application layer.
//
// Poller schedules detection passes with adaptive backoff. Service owns the
// loaded session and orchestrates the use cases behind the HTTP and WebSocket
// surfaces: login and restore, the follower snapshot, test injection and
// settings. Depends on domain interfaces, not concrete adapters.
package app

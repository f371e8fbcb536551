// Package broadcast fans follower events out to live overlay connections.
//
// Pool owns the set of admitted connections: admission against a limit,
// activity tracking and the periodic staleness sweep. Bus delivers events to
// one bounded queue per subscriber and never blocks the publisher; a
// subscriber that falls behind loses its oldest undelivered events. Neither
// type knows about the transport beyond an io.Closer.
package broadcast

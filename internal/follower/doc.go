// Package follower detects follower changes for the monitored channel.
//
// A poll cycle reads a Snapshot through the SnapshotCache, hands it to the
// Detector which compares it against the fingerprint History, and pushes
// every newly detected follower onto the pending Notifications queues before
// publishing it. Each component guards its own state with a single mutex and
// no component calls out while holding it.
package follower

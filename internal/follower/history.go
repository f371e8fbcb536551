package follower

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/pscheid92/fazzk/internal/domain"
)

// DefaultHistoryCapacity bounds the number of remembered followers.
const DefaultHistoryCapacity = 100

// fingerprint stands in for a follower: a 64-bit hash of the identity hash
// and the unix second it was first observed.
type fingerprint struct {
	hash   uint64
	seenAt uint32
}

func fingerprintOf(userIDHash string, at time.Time) fingerprint {
	return fingerprint{hash: xxhash.Sum64String(userIDHash), seenAt: uint32(at.Unix())}
}

// History is a fixed-capacity FIFO of follower fingerprints. Eviction follows
// insertion order; lookups do not refresh an entry.
//
// History is not safe for concurrent use. The Detector serializes access.
type History struct {
	ring    []fingerprint
	head    int // index of the oldest entry
	size    int
	members map[uint64]struct{}
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		ring:    make([]fingerprint, capacity),
		members: make(map[uint64]struct{}, capacity),
	}
}

func (h *History) Contains(f domain.Follower) bool {
	_, ok := h.members[xxhash.Sum64String(f.User.UserIDHash)]
	return ok
}

// Insert remembers f. It reports false if f was already a member. At
// capacity the oldest fingerprint is dropped first.
func (h *History) Insert(f domain.Follower, at time.Time) bool {
	fp := fingerprintOf(f.User.UserIDHash, at)
	if _, ok := h.members[fp.hash]; ok {
		return false
	}

	if h.size == len(h.ring) {
		oldest := h.ring[h.head]
		delete(h.members, oldest.hash)
		h.ring[h.head] = fp
		h.head = (h.head + 1) % len(h.ring)
	} else {
		h.ring[(h.head+h.size)%len(h.ring)] = fp
		h.size++
	}
	h.members[fp.hash] = struct{}{}
	return true
}

// Rebuild replaces the contents with followers. The list is expected newest
// first, so it is inserted back to front to keep the newest entries furthest
// from eviction.
func (h *History) Rebuild(followers []domain.Follower, at time.Time) {
	h.head, h.size = 0, 0
	clear(h.members)

	for i := len(followers) - 1; i >= 0; i-- {
		h.Insert(followers[i], at)
	}
}

func (h *History) Len() int {
	return h.size
}

func (h *History) Capacity() int {
	return len(h.ring)
}

// entries returns the fingerprints in insertion order.
func (h *History) entries() []fingerprint {
	out := make([]fingerprint, h.size)
	for i := range h.size {
		out[i] = h.ring[(h.head+i)%len(h.ring)]
	}
	return out
}

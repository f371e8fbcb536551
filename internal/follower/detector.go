package follower

import (
	"sync"
	"time"

	"github.com/pscheid92/fazzk/internal/domain"
)

// DefaultDedupWindow is the minimum gap between two confirmed sightings of
// the highlighted account before it counts as a new follow again.
const DefaultDedupWindow = 30 * time.Second

// Changes is the outcome of comparing one snapshot against the history.
type Changes struct {
	// New holds newly detected followers in snapshot order.
	New []domain.Follower

	// HighlightedUnfollowed is set when the highlighted account disappeared.
	HighlightedUnfollowed bool

	// Initialized is set for the first snapshot, which only seeds state.
	Initialized bool

	// Rebuilt is set when the history was rebuilt after the count dropped.
	Rebuilt bool
}

// highlightState tracks the one account that is kept out of History.
// lastConfirmed survives an absence so that a brief flicker does not
// re-announce the account inside the dedup window.
type highlightState struct {
	following     bool
	lastConfirmed time.Time
}

// Detector classifies followers of successive snapshots as new or known.
type Detector struct {
	mu          sync.Mutex
	history     *History
	highlighted string
	dedupWindow time.Duration

	initialized bool
	lastCount   int
	last        *domain.Snapshot
	highlight   highlightState
}

// NewDetector creates a detector. An empty highlightedHash disables the
// special handling.
func NewDetector(history *History, highlightedHash string, dedupWindow time.Duration) *Detector {
	return &Detector{
		history:     history,
		highlighted: highlightedHash,
		dedupWindow: dedupWindow,
	}
}

// Observe compares snap with the known state and updates it. Observing the
// same snapshot twice is a no-op, and so is an empty page: the upstream
// returns one on hiccups, and treating it as a mass unfollow would replay
// every follower on the next full page.
func (d *Detector) Observe(snap *domain.Snapshot) Changes {
	d.mu.Lock()
	defer d.mu.Unlock()

	if snap == nil || snap == d.last || len(snap.Followers) == 0 {
		return Changes{}
	}
	d.last = snap
	now := snap.FetchedAt

	present := false
	regular := make([]domain.Follower, 0, len(snap.Followers))
	for _, f := range snap.Followers {
		if d.isHighlighted(f) {
			present = true
			continue
		}
		regular = append(regular, f)
	}

	if !d.initialized {
		d.initialized = true
		d.history.Rebuild(regular, now)
		d.lastCount = len(snap.Followers)
		if present {
			d.highlight = highlightState{following: true, lastConfirmed: now}
		}
		return Changes{Initialized: true}
	}

	var changes Changes
	highlightSeen := false
	for _, f := range snap.Followers {
		if d.isHighlighted(f) {
			if !highlightSeen && d.highlightIsNew(now) {
				changes.New = append(changes.New, f)
			}
			highlightSeen = true
			continue
		}
		if d.history.Insert(f, now) {
			changes.New = append(changes.New, f)
		}
	}

	if present {
		d.highlight = highlightState{following: true, lastConfirmed: now}
	} else if d.highlight.following {
		d.highlight.following = false
		changes.HighlightedUnfollowed = true
	}

	if len(snap.Followers) < d.lastCount {
		d.history.Rebuild(regular, now)
		changes.Rebuilt = true
	}
	d.lastCount = len(snap.Followers)

	return changes
}

func (d *Detector) highlightIsNew(now time.Time) bool {
	if d.highlight.lastConfirmed.IsZero() {
		return true
	}
	return now.Sub(d.highlight.lastConfirmed) > d.dedupWindow
}

func (d *Detector) isHighlighted(f domain.Follower) bool {
	return d.highlighted != "" && f.User.UserIDHash == d.highlighted
}

// Reset forgets all state so the next snapshot seeds it again.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	d.lastCount = 0
	d.last = nil
	d.highlight = highlightState{}
	d.history.Rebuild(nil, time.Time{})
}

// HistoryLen returns the number of remembered fingerprints.
func (d *Detector) HistoryLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.Len()
}

package follower

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	DefaultQueueExpiry     = 30 * time.Second
	DefaultTestQueueExpiry = 10 * time.Second
)

type queueItem struct {
	follower  domain.Follower
	createdAt time.Time
}

// Queue holds pending notifications in insertion order and drops them once
// they are older than its expiry. Items are always stamped with the current
// time, so the queue is ordered by age and eviction only inspects the head.
type Queue struct {
	mu     sync.Mutex
	items  []queueItem
	expiry time.Duration
	clock  clockwork.Clock
}

func NewQueue(expiry time.Duration, clock clockwork.Clock) *Queue {
	return &Queue{expiry: expiry, clock: clock}
}

func (q *Queue) Push(f domain.Follower) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queueItem{follower: f, createdAt: q.clock.Now()})
}

// EvictExpired drops items whose age exceeds the expiry and returns how many
// were dropped.
func (q *Queue) EvictExpired() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evictLocked(q.clock.Now())
}

func (q *Queue) evictLocked(now time.Time) int {
	n := 0
	for n < len(q.items) && now.Sub(q.items[n].createdAt) > q.expiry {
		n++
	}
	if n > 0 {
		clear(q.items[:n])
		q.items = q.items[n:]
	}
	return n
}

// Items evicts expired entries and returns a copy of the rest, oldest first.
func (q *Queue) Items() []domain.Follower {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictLocked(q.clock.Now())
	out := make([]domain.Follower, len(q.items))
	for i, it := range q.items {
		out[i] = it.follower
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notifications pairs the queue of detected follows with the queue of
// injected test follows.
type Notifications struct {
	Real *Queue
	Test *Queue
}

func NewNotifications(realExpiry, testExpiry time.Duration, clock clockwork.Clock) *Notifications {
	return &Notifications{
		Real: NewQueue(realExpiry, clock),
		Test: NewQueue(testExpiry, clock),
	}
}

// Combined merges the test queue, the real queue and the live records, in
// that order, keeping only the first occurrence of each identity hash. Each
// queue is read under its own lock; no two are held together.
func (n *Notifications) Combined(live []domain.Follower) []domain.Follower {
	test := n.Test.Items()
	real := n.Real.Items()

	out := make([]domain.Follower, 0, len(test)+len(real)+len(live))
	seen := make(map[string]struct{}, cap(out))
	for _, group := range [][]domain.Follower{test, real, live} {
		for _, f := range group {
			if _, dup := seen[f.User.UserIDHash]; dup {
				continue
			}
			seen[f.User.UserIDHash] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

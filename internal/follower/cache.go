package follower

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
)

// sharedFetchTimeout bounds a fetch that outlives the caller which started it.
const sharedFetchTimeout = 15 * time.Second

// FetchFunc retrieves the current follower page from the upstream.
type FetchFunc func(ctx context.Context) ([]domain.Follower, error)

// SnapshotCache holds the most recent follower snapshot for a short TTL so
// that the poller and HTTP readers share one upstream call per window.
type SnapshotCache struct {
	mu      sync.RWMutex
	current *domain.Snapshot
	ttl     time.Duration
	clock   clockwork.Clock
	group   singleflight.Group
	metrics *metrics.CacheMetrics
}

// NewSnapshotCache creates an empty cache. m may be nil.
func NewSnapshotCache(ttl time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *SnapshotCache {
	return &SnapshotCache{ttl: ttl, clock: clock, metrics: m}
}

// Get returns the cached snapshot while its age is below the TTL.
func (c *SnapshotCache) Get() (*domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil, false
	}
	if c.clock.Since(c.current.FetchedAt) >= c.ttl {
		return nil, false
	}
	return c.current, true
}

// Put replaces the cached snapshot and returns it.
func (c *SnapshotCache) Put(followers []domain.Follower) *domain.Snapshot {
	snap := &domain.Snapshot{Followers: followers, FetchedAt: c.clock.Now()}

	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	return snap
}

// Invalidate drops the cached snapshot, e.g. after the monitored account
// changed.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Load returns the cached snapshot or calls fetch and caches its result.
// Concurrent misses share a single fetch. Failed fetches are not cached.
func (c *SnapshotCache) Load(ctx context.Context, fetch FetchFunc) (*domain.Snapshot, error) {
	if snap, ok := c.Get(); ok {
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return snap, nil
	}
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}

	// The fetch runs detached from the caller that starts it; every caller
	// still gives up on its own context.
	ch := c.group.DoChan("snapshot", func() (any, error) {
		if snap, ok := c.Get(); ok {
			return snap, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		followers, err := fetch(fetchCtx)
		if err != nil {
			c.recordFetch("error")
			return nil, err
		}
		c.recordFetch("success")
		return c.Put(followers), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared && c.metrics != nil {
			c.metrics.Shared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Snapshot), nil
	}
}

func (c *SnapshotCache) recordFetch(result string) {
	if c.metrics != nil {
		c.metrics.Fetches.WithLabelValues(result).Inc()
	}
}

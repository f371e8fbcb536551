package broadcast

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	DefaultMaxConnections = 100
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
)

type connection struct {
	id           string
	topics       map[string]struct{}
	createdAt    time.Time
	lastActivity time.Time
	transport    io.Closer
}

// ConnectionInfo is a read-only copy of a pooled connection's state.
type ConnectionInfo struct {
	ID           string
	Topics       []string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Pool tracks admitted connections. Transports of evicted or swept
// connections are closed after the pool lock is released.
type Pool struct {
	mu          sync.Mutex
	conns       map[string]*connection
	limit       int
	idleTimeout time.Duration
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
}

// NewPool creates a pool admitting at most limit connections. A connection
// idle for longer than idleTimeout may be evicted to make room. m may be nil.
func NewPool(limit int, idleTimeout time.Duration, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Pool {
	return &Pool{
		conns:       make(map[string]*connection),
		limit:       limit,
		idleTimeout: idleTimeout,
		clock:       clock,
		metrics:     m,
	}
}

// Add admits a connection subscribed to the default topic. At capacity the
// least recently active connection is evicted if it has been idle past the
// timeout; otherwise Add returns domain.ErrPoolFull.
func (p *Pool) Add(id string, transport io.Closer) error {
	now := p.clock.Now()

	p.mu.Lock()
	var evicted *connection
	if len(p.conns) >= p.limit {
		stalest := p.stalestLocked()
		if stalest == nil || now.Sub(stalest.lastActivity) <= p.idleTimeout {
			p.mu.Unlock()
			if p.metrics != nil {
				p.metrics.Rejections.Inc()
			}
			return domain.ErrPoolFull
		}
		delete(p.conns, stalest.id)
		evicted = stalest
	}

	p.conns[id] = &connection{
		id:           id,
		topics:       map[string]struct{}{domain.TopicFollowers: {}},
		createdAt:    now,
		lastActivity: now,
		transport:    transport,
	}
	count := len(p.conns)
	p.mu.Unlock()

	p.setGauge(count)
	if evicted != nil {
		slog.Info("Evicted stalest connection to admit new one", "evicted_id", evicted.id, "idle", now.Sub(evicted.lastActivity))
		p.recordEviction("capacity")
		closeTransport(evicted)
	}
	return nil
}

func (p *Pool) stalestLocked() *connection {
	var stalest *connection
	for _, c := range p.conns {
		if stalest == nil || c.lastActivity.Before(stalest.lastActivity) {
			stalest = c
		}
	}
	return stalest
}

// Remove drops a connection without closing its transport. Removing an
// unknown id is a no-op; the result reports whether it was present.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	_, ok := p.conns[id]
	delete(p.conns, id)
	count := len(p.conns)
	p.mu.Unlock()

	if ok {
		p.setGauge(count)
	}
	return ok
}

// Touch marks a connection as active now.
func (p *Pool) Touch(id string) {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[id]; ok {
		c.lastActivity = now
	}
}

// SetTopics replaces a connection's subscriptions. It reports false for an
// unknown id.
func (p *Pool) SetTopics(id string, topics []string) bool {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[id]
	if ok {
		c.topics = set
	}
	return ok
}

// Subscribed reports whether connection id receives events on topic.
func (p *Pool) Subscribed(id, topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[id]
	if !ok {
		return false
	}
	_, ok = c.topics[topic]
	return ok
}

// Sweep removes and closes every connection idle for longer than timeout.
func (p *Pool) Sweep(timeout time.Duration) int {
	now := p.clock.Now()

	p.mu.Lock()
	var stale []*connection
	for id, c := range p.conns {
		if now.Sub(c.lastActivity) > timeout {
			stale = append(stale, c)
			delete(p.conns, id)
		}
	}
	count := len(p.conns)
	p.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}

	p.setGauge(count)
	for _, c := range stale {
		p.recordEviction("stale")
		closeTransport(c)
	}
	slog.Info("Swept stale connections", "removed", len(stale), "remaining", count)
	return len(stale)
}

// RunSweeper sweeps on every interval until ctx is cancelled.
func (p *Pool) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Sweep(p.idleTimeout)
		}
	}
}

// CloseAll removes every connection and closes its transport.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	all := make([]*connection, 0, len(p.conns))
	for _, c := range p.conns {
		all = append(all, c)
	}
	clear(p.conns)
	p.mu.Unlock()

	p.setGauge(0)
	for _, c := range all {
		closeTransport(c)
	}
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Get returns a copy of a connection's state.
func (p *Pool) Get(id string) (ConnectionInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return ConnectionInfo{ID: c.id, Topics: topics, CreatedAt: c.createdAt, LastActivity: c.lastActivity}, true
}

func (p *Pool) setGauge(count int) {
	if p.metrics != nil {
		p.metrics.ActiveConnections.Set(float64(count))
	}
}

func (p *Pool) recordEviction(reason string) {
	if p.metrics != nil {
		p.metrics.Evictions.WithLabelValues(reason).Inc()
	}
}

func closeTransport(c *connection) {
	if c.transport == nil {
		return
	}
	if err := c.transport.Close(); err != nil {
		slog.Debug("Closing evicted transport failed", "conn_id", c.id, "error", err)
	}
}

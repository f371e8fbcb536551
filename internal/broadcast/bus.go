package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
)

// DefaultBufferSize is the per-subscriber event backlog.
const DefaultBufferSize = 256

// TopicFilter decides whether a subscriber receives events on a topic.
type TopicFilter interface {
	Subscribed(id, topic string) bool
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	id     string
	events chan domain.Event
	lagged atomic.Uint64
	once   sync.Once
	bus    *Bus
}

// Events yields delivered events. The channel is closed on Unsubscribe.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// TakeLagged returns how many events were dropped for this subscriber since
// the last call and resets the count.
func (s *Subscription) TakeLagged() uint64 {
	return s.lagged.Swap(0)
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if s.bus.subs[s.id] == s {
			delete(s.bus.subs, s.id)
		}
		close(s.events)
		s.bus.mu.Unlock()
	})
}

// Bus is a best-effort multicast of domain events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	buffer  int
	filter  TopicFilter
	metrics *metrics.WebSocketMetrics
}

// NewBus creates a bus with the given per-subscriber buffer. filter and m
// may be nil; a nil filter delivers every event to every subscriber.
func NewBus(buffer int, filter TopicFilter, m *metrics.WebSocketMetrics) *Bus {
	if buffer < 1 {
		buffer = DefaultBufferSize
	}
	return &Bus{
		subs:    make(map[string]*Subscription),
		buffer:  buffer,
		filter:  filter,
		metrics: m,
	}
}

// Subscribe registers a consumer under id, replacing an existing one.
func (b *Bus) Subscribe(id string) *Subscription {
	sub := &Subscription{id: id, events: make(chan domain.Event, b.buffer), bus: b}

	b.mu.Lock()
	old := b.subs[id]
	b.subs[id] = sub
	b.mu.Unlock()

	if old != nil {
		old.once.Do(func() { close(old.events) })
	}
	return sub
}

// Publish delivers event to every interested subscriber without blocking.
// A full subscriber queue loses its oldest event to make room.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for id, sub := range b.subs {
		if b.filter != nil && !b.filter.Subscribed(id, event.Topic()) {
			continue
		}
		if dropped := sub.offer(event); dropped > 0 {
			if b.metrics != nil {
				b.metrics.LaggedDrops.Add(float64(dropped))
			}
		}
		delivered++
	}

	slog.DebugContext(ctx, "Event published", "kind", event.Kind, "subscribers", delivered)
}

// offer enqueues event, evicting from the head while the queue is full.
// Callers hold the bus read lock, so the channel cannot be closed meanwhile.
func (s *Subscription) offer(event domain.Event) int {
	dropped := 0
	for {
		select {
		case s.events <- event:
			return dropped
		default:
		}
		select {
		case <-s.events:
			dropped++
			s.lagged.Add(1)
		default:
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

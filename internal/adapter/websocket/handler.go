package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/broadcast"
	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/correlation"
)

// TestInjector creates a synthetic follower on behalf of a client.
type TestInjector interface {
	InjectTestFollower(ctx context.Context, source domain.TestSource) (domain.Follower, error)
}

type Options struct {
	CheckOrigin func(r *http.Request) bool

	// TestFollowerRate limits test_follower messages per connection.
	TestFollowerRate  rate.Limit
	TestFollowerBurst int

	Clock   clockwork.Clock
	Metrics *metrics.WebSocketMetrics
}

// Handler upgrades requests to WebSocket connections, admits them to the
// pool and streams bus events to them.
type Handler struct {
	upgrader  websocket.Upgrader
	pool      *broadcast.Pool
	bus       *broadcast.Bus
	injector  TestInjector
	clock     clockwork.Clock
	metrics   *metrics.WebSocketMetrics
	testRate  rate.Limit
	testBurst int
}

func NewHandler(pool *broadcast.Pool, bus *broadcast.Bus, injector TestInjector, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TestFollowerRate <= 0 {
		opts.TestFollowerRate = 1
	}
	if opts.TestFollowerBurst <= 0 {
		opts.TestFollowerBurst = 3
	}

	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		pool:      pool,
		bus:       bus,
		injector:  injector,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		testRate:  opts.TestFollowerRate,
		testBurst: opts.TestFollowerBurst,
	}
}

// ServeHTTP blocks for the lifetime of the connection. Admission happens
// before the upgrade so a full pool is answered with 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	ctx := correlation.WithConn(context.WithoutCancel(r.Context()), id)

	s := newSession(id, h)
	if err := h.pool.Add(id, s); err != nil {
		if errors.Is(err, domain.ErrPoolFull) {
			slog.WarnContext(ctx, "Rejecting WebSocket connection, pool is full", "remote_addr", r.RemoteAddr)
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.pool.Remove(id)
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	if !s.attach(conn) {
		_ = conn.Close()
		return
	}

	slog.InfoContext(ctx, "WebSocket client connected", "remote_addr", r.RemoteAddr, "clients", h.pool.Count())
	s.run(ctx)
	slog.InfoContext(ctx, "WebSocket client disconnected", "clients", h.pool.Count())
}

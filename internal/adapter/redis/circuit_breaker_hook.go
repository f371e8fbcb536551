package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
)

const (
	fallbackTTL         = 5 * time.Minute
	defaultBreakerDelay = 30 * time.Second
)

// CircuitBreakerHook fails Redis commands fast once 3 of the last 5 commands
// failed. While open, GET is answered from the last value it returned.
type CircuitBreakerHook struct {
	cb       circuitbreaker.CircuitBreaker[any]
	mu       sync.RWMutex
	fallback map[string]cachedValue
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

type cachedValue struct {
	data     string
	storedAt time.Time
}

// NewCircuitBreakerHook creates the hook. delay is how long the breaker stays
// open before probing; zero means 30s. m may be nil.
func NewCircuitBreakerHook(delay time.Duration, m *metrics.StoreMetrics) *CircuitBreakerHook {
	if delay <= 0 {
		delay = defaultBreakerDelay
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(3, 5).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb, fallback: make(map[string]cachedValue)}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.serveFallback(cmd)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}

		h.cb.RecordSuccess()
		h.remember(cmd)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}

func (h *CircuitBreakerHook) serveFallback(cmd goredis.Cmder) error {
	if sc, ok := cmd.(*goredis.StringCmd); ok && cmd.Name() == "get" {
		if value, ok := h.lookup(commandKey(cmd)); ok {
			slog.Debug("Redis circuit open, serving last known value", "key", commandKey(cmd))
			sc.SetVal(value)
			return nil
		}
	}
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	key := commandKey(cmd)
	if key == "" {
		return
	}

	switch cmd.Name() {
	case "get":
		sc, ok := cmd.(*goredis.StringCmd)
		if !ok {
			return
		}
		value, err := sc.Result()
		h.mu.Lock()
		if err == nil {
			h.fallback[key] = cachedValue{data: value, storedAt: time.Now()}
		} else {
			delete(h.fallback, key)
		}
		h.mu.Unlock()
	case "set", "del":
		h.mu.Lock()
		delete(h.fallback, key)
		h.mu.Unlock()
	}
}

func (h *CircuitBreakerHook) lookup(key string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cached, ok := h.fallback[key]
	if !ok || time.Since(cached.storedAt) > fallbackTTL {
		return "", false
	}
	return cached.data, true
}

func commandKey(cmd goredis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	return fmt.Sprint(args[1])
}

// State returns the breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/correlation"
)

const (
	// backoffExponentCap bounds the exponent so the doubling saturates at 16x.
	backoffExponentCap = 4

	MinPollInterval = domain.MinPollingIntervalSeconds * time.Second
)

var ErrPollerRunning = errors.New("poller is already running")

// Checker runs one detection pass.
type Checker interface {
	Check(ctx context.Context) (*domain.Snapshot, error)
}

// ClientCounter reports how many overlay clients are connected.
type ClientCounter interface {
	Count() int
}

type PollerConfig struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	MaxErrors  int
}

// PollerStatus is a point-in-time view of the poll loop.
type PollerStatus struct {
	Running           bool
	Halted            bool
	ConsecutiveErrors int
	Interval          time.Duration
	LastSuccess       time.Time
	LastError         string
}

// Poller drives Checker on an interval. The interval backs off exponentially
// while cycles fail, and the loop halts for good after MaxErrors consecutive
// failures. Cycles are skipped while no client is connected.
type Poller struct {
	checker    Checker
	clients    ClientCounter
	clock      clockwork.Clock
	metrics    *metrics.PollerMetrics
	maxBackoff time.Duration
	maxErrors  int

	interval atomic.Int64
	running  atomic.Bool

	mu     sync.Mutex
	status PollerStatus
}

// NewPoller creates a poller. m may be nil.
func NewPoller(checker Checker, clients ClientCounter, cfg PollerConfig, clock clockwork.Clock, m *metrics.PollerMetrics) *Poller {
	p := &Poller{
		checker:    checker,
		clients:    clients,
		clock:      clock,
		metrics:    m,
		maxBackoff: cfg.MaxBackoff,
		maxErrors:  cfg.MaxErrors,
	}
	p.SetBaseInterval(cfg.Interval)
	return p
}

// SetBaseInterval changes the interval used while no errors are pending.
// Values below MinPollInterval are raised to it. The new value applies from
// the next wait.
func (p *Poller) SetBaseInterval(d time.Duration) {
	d = max(d, MinPollInterval)
	p.interval.Store(int64(d))
}

func (p *Poller) BaseInterval() time.Duration {
	return time.Duration(p.interval.Load())
}

// Status returns a copy of the current loop state.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Running = p.running.Load()
	s.Interval = p.BaseInterval()
	return s
}

// Halted reports whether the loop stopped after too many failures.
func (p *Poller) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Halted
}

// nextWait returns the delay before the next cycle given the number of
// consecutive failures.
func (p *Poller) nextWait(errs int) time.Duration {
	base := p.BaseInterval()
	if errs == 0 {
		return base
	}
	wait := base * time.Duration(1<<min(errs, backoffExponentCap))
	return min(wait, max(p.maxBackoff, base))
}

// Run blocks until ctx is cancelled or the loop halts. It returns nil on
// cancellation, domain.ErrMonitoringHalted after MaxErrors consecutive
// failures, and ErrPollerRunning if another Run is active.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPollerRunning
	}
	defer p.running.Store(false)

	errs := 0
	skipped := false
	for {
		wait := p.nextWait(errs)
		if skipped {
			wait = p.BaseInterval()
		}
		timer := p.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}

		if p.clients.Count() == 0 {
			slog.DebugContext(ctx, "No clients connected, skipping poll cycle")
			p.recordCycle("skipped")
			skipped = true
			continue
		}
		skipped = false

		cycleCtx := correlation.WithID(ctx, correlation.NewID())
		start := p.clock.Now()
		_, err := p.checker.Check(cycleCtx)
		if p.metrics != nil {
			p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())
		}

		switch {
		case err == nil:
			errs = 0
			p.recordSuccess(start)

		case errors.Is(err, domain.ErrNotAuthenticated):
			slog.DebugContext(cycleCtx, "No session loaded, skipping poll cycle")
			p.recordCycle("unauthenticated")

		case ctx.Err() != nil:
			return nil

		default:
			errs++
			p.recordFailure(err, errs)
			slog.WarnContext(cycleCtx, "Poll cycle failed", "error", err, "consecutive_errors", errs, "next_wait", p.nextWait(errs))

			if errs >= p.maxErrors {
				p.halt()
				slog.ErrorContext(cycleCtx, "Too many consecutive poll failures, monitoring halted", "consecutive_errors", errs)
				return domain.ErrMonitoringHalted
			}
		}
	}
}

func (p *Poller) recordSuccess(at time.Time) {
	p.mu.Lock()
	p.status.ConsecutiveErrors = 0
	p.status.LastSuccess = at
	p.status.LastError = ""
	p.mu.Unlock()

	p.recordCycle("success")
	if p.metrics != nil {
		p.metrics.ConsecutiveErrors.Set(0)
	}
}

func (p *Poller) recordFailure(err error, errs int) {
	p.mu.Lock()
	p.status.ConsecutiveErrors = errs
	p.status.LastError = err.Error()
	p.mu.Unlock()

	p.recordCycle("error")
	if p.metrics != nil {
		p.metrics.ConsecutiveErrors.Set(float64(errs))
	}
}

func (p *Poller) halt() {
	p.mu.Lock()
	p.status.Halted = true
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.Halted.Set(1)
	}
}

func (p *Poller) recordCycle(result string) {
	if p.metrics != nil {
		p.metrics.Cycles.WithLabelValues(result).Inc()
	}
}

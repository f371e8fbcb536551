package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
)

// SessionSource yields the verified session whose channel is monitored.
type SessionSource interface {
	CurrentSession() (domain.Session, bool)
}

// Monitor runs one detection pass: read the snapshot, classify it, queue and
// publish what is new.
type Monitor struct {
	sessions  SessionSource
	source    domain.FollowerSource
	cache     *SnapshotCache
	detector  *Detector
	pending   *Notifications
	publisher domain.EventPublisher
	metrics   *metrics.PollerMetrics
}

// NewMonitor wires the detection pipeline. m may be nil.
func NewMonitor(
	sessions SessionSource,
	source domain.FollowerSource,
	cache *SnapshotCache,
	detector *Detector,
	pending *Notifications,
	publisher domain.EventPublisher,
	m *metrics.PollerMetrics,
) *Monitor {
	return &Monitor{
		sessions:  sessions,
		source:    source,
		cache:     cache,
		detector:  detector,
		pending:   pending,
		publisher: publisher,
		metrics:   m,
	}
}

// Check fetches (or reuses) the current snapshot and reports new followers.
// It returns domain.ErrNotAuthenticated when no session is loaded.
func (m *Monitor) Check(ctx context.Context) (*domain.Snapshot, error) {
	session, ok := m.sessions.CurrentSession()
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}

	snap, err := m.cache.Load(ctx, func(ctx context.Context) ([]domain.Follower, error) {
		return m.source.FetchFollowers(ctx, session.Credentials, session.Profile.UserIDHash)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load follower snapshot: %w", err)
	}

	if snap.Len() == 0 {
		slog.DebugContext(ctx, "Empty follower page, detection skipped")
	}
	changes := m.detector.Observe(snap)

	if changes.Initialized {
		slog.InfoContext(ctx, "Follower history initialized", "followers", snap.Len())
	}
	if changes.Rebuilt {
		slog.DebugContext(ctx, "Follower count dropped, history rebuilt", "followers", snap.Len())
		if m.metrics != nil {
			m.metrics.HistoryRebuilds.Inc()
		}
	}
	if changes.HighlightedUnfollowed {
		slog.InfoContext(ctx, "Highlighted account stopped following")
		if m.metrics != nil {
			m.metrics.Unfollows.Inc()
		}
	}

	for _, f := range changes.New {
		slog.InfoContext(ctx, "New follower detected", "nickname", f.User.Nickname, "user_id_hash", f.User.UserIDHash)
		m.pending.Real.Push(f)
		m.publisher.Publish(ctx, domain.NewFollowerEvent(f))
		if m.metrics != nil {
			m.metrics.NewFollowers.WithLabelValues("real").Inc()
		}
	}

	return snap, nil
}

// Pending returns the merged pending notifications followed by the live
// follower page. Upstream failures are logged and the queues are served
// alone.
func (m *Monitor) Pending(ctx context.Context) []domain.Follower {
	var live []domain.Follower

	snap, err := m.Check(ctx)
	switch {
	case err == nil:
		live = snap.Followers
	case errors.Is(err, domain.ErrNotAuthenticated):
	default:
		slog.WarnContext(ctx, "Serving pending followers without live page", "error", err)
	}

	return m.pending.Combined(live)
}

// Reset drops cached and remembered state, used when the monitored account
// changes.
func (m *Monitor) Reset() {
	m.cache.Invalidate()
	m.detector.Reset()
}

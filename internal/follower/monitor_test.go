package follower

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/fazzk/internal/domain"
)

type staticSessions struct {
	session *domain.Session
}

func (s staticSessions) CurrentSession() (domain.Session, bool) {
	if s.session == nil {
		return domain.Session{}, false
	}
	return *s.session, true
}

type scriptedSource struct {
	mu      sync.Mutex
	pages   [][]domain.Follower
	err     error
	calls   int
	channel string
}

func (s *scriptedSource) FetchFollowers(_ context.Context, _ domain.Credentials, channelHash string) ([]domain.Follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.channel = channelHash
	if s.err != nil {
		return nil, s.err
	}
	page := s.pages[0]
	if len(s.pages) > 1 {
		s.pages = s.pages[1:]
	}
	return page, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type monitorFixture struct {
	clock     *clockwork.FakeClock
	source    *scriptedSource
	publisher *recordingPublisher
	pending   *Notifications
	monitor   *Monitor
}

func newMonitorFixture(session *domain.Session, pages ...[]domain.Follower) *monitorFixture {
	clock := clockwork.NewFakeClock()
	f := &monitorFixture{
		clock:     clock,
		source:    &scriptedSource{pages: pages},
		publisher: &recordingPublisher{},
		pending:   NewNotifications(DefaultQueueExpiry, DefaultTestQueueExpiry, clock),
	}
	f.monitor = NewMonitor(
		staticSessions{session: session},
		f.source,
		NewSnapshotCache(5*time.Second, clock, nil),
		NewDetector(NewHistory(DefaultHistoryCapacity), "", DefaultDedupWindow),
		f.pending,
		f.publisher,
		nil,
	)
	return f
}

var testSession = &domain.Session{
	Credentials: domain.Credentials{NidAut: "aut", NidSes: "ses"},
	Profile:     domain.Profile{UserIDHash: "channel-1", Nickname: "streamer"},
}

func TestMonitor_NotAuthenticated(t *testing.T) {
	f := newMonitorFixture(nil, followers("a"))

	_, err := f.monitor.Check(context.Background())

	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, f.source.calls)
}

func TestMonitor_DetectsQueuesAndPublishes(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"), followers("b", "a"))
	ctx := context.Background()

	_, err := f.monitor.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.publisher.events)

	f.clock.Advance(5 * time.Second)
	snap, err := f.monitor.Check(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, "channel-1", f.source.channel)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventNewFollower, f.publisher.events[0].Kind)
	assert.Equal(t, "b", f.publisher.events[0].Follower.User.UserIDHash)
	assert.Equal(t, []string{"b"}, hashesOf(f.pending.Real.Items()))
}

func TestMonitor_CachedSnapshotIsNotReprocessed(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"), followers("b", "a"))
	ctx := context.Background()

	_, _ = f.monitor.Check(ctx)
	f.clock.Advance(5 * time.Second)
	_, _ = f.monitor.Check(ctx)
	_, _ = f.monitor.Check(ctx)

	assert.Equal(t, 2, f.source.calls)
	assert.Len(t, f.publisher.events, 1)
}

func TestMonitor_EmptyPageDoesNotReplayFollowers(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a", "b", "c"), nil, followers("a", "b", "c"))
	ctx := context.Background()

	for range 3 {
		_, err := f.monitor.Check(ctx)
		require.NoError(t, err)
		f.clock.Advance(5 * time.Second)
	}

	assert.Equal(t, 3, f.source.calls)
	assert.Empty(t, f.publisher.events)
	assert.Zero(t, f.pending.Real.Len())
}

func TestMonitor_FetchErrorLeavesStateUntouched(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"))
	ctx := context.Background()
	_, _ = f.monitor.Check(ctx)

	f.source.err = errors.New("502 from upstream")
	f.clock.Advance(5 * time.Second)
	_, err := f.monitor.Check(ctx)

	require.Error(t, err)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1, f.monitor.detector.HistoryLen())
}

func TestMonitor_PendingMergesQueuesWithLivePage(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"), followers("b", "a"))
	ctx := context.Background()
	_, _ = f.monitor.Check(ctx)
	f.clock.Advance(5 * time.Second)
	f.pending.Test.Push(follower("test_1"))

	pending := f.monitor.Pending(ctx)

	assert.Equal(t, []string{"test_1", "b", "a"}, hashesOf(pending))
}

func TestMonitor_PendingServesQueuesWhenUpstreamFails(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"))
	f.source.err = errors.New("timeout")
	f.pending.Test.Push(follower("test_1"))

	pending := f.monitor.Pending(context.Background())

	assert.Equal(t, []string{"test_1"}, hashesOf(pending))
}

func TestMonitor_ResetReseedsOnNextCheck(t *testing.T) {
	f := newMonitorFixture(testSession, followers("a"), followers("x", "y"))
	ctx := context.Background()
	_, _ = f.monitor.Check(ctx)

	f.monitor.Reset()
	_, err := f.monitor.Check(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, f.source.calls, "reset drops the cached snapshot")
	assert.Empty(t, f.publisher.events, "first snapshot after reset only seeds")
}

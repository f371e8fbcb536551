package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/follower"
)

type activeSession struct{}

func (activeSession) CurrentSession() (domain.Session, bool) {
	return domain.Session{
		Credentials: domain.Credentials{NidAut: "aut", NidSes: "ses"},
		Profile:     domain.Profile{UserIDHash: "channel-1", Nickname: "streamer"},
	}, true
}

// pageSource serves pages in order, then fails every later fetch.
type pageSource struct {
	mu    sync.Mutex
	pages [][]domain.Follower
}

var errUpstreamDown = errors.New("upstream down")

func (s *pageSource) FetchFollowers(context.Context, domain.Credentials, string) ([]domain.Follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return nil, errUpstreamDown
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func pageOf(hashes ...string) []domain.Follower {
	out := make([]domain.Follower, len(hashes))
	for i, h := range hashes {
		out[i] = domain.Follower{User: domain.User{UserIDHash: h, Nickname: h}, FollowingSince: "2026-10-18T12:00:00Z"}
	}
	return out
}

func pendingHashes(fs []domain.Follower) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.User.UserIDHash
	}
	return out
}

func TestPipeline_DetectedFollowerReachesEveryClientOnce(t *testing.T) {
	env := setupTestEnv(t, 10)
	first := env.dial(t)
	second := env.dial(t)
	require.Eventually(t, func() bool { return env.bus.Subscribers() == 2 }, 2*time.Second, 10*time.Millisecond)

	clock := clockwork.NewFakeClock()
	notifications := follower.NewNotifications(follower.DefaultQueueExpiry, follower.DefaultTestQueueExpiry, clock)
	monitor := follower.NewMonitor(
		activeSession{},
		&pageSource{pages: [][]domain.Follower{pageOf("a", "b"), pageOf("newbie", "a", "b")}},
		follower.NewSnapshotCache(5*time.Second, clock, nil),
		follower.NewDetector(follower.NewHistory(follower.DefaultHistoryCapacity), "", follower.DefaultDedupWindow),
		notifications,
		env.bus,
		nil,
	)
	ctx := context.Background()

	_, err := monitor.Check(ctx)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)
	_, err = monitor.Check(ctx)
	require.NoError(t, err)

	for _, conn := range []*ws.Conn{first, second} {
		msg := readJSON(t, conn)
		assert.Contains(t, msg, `"type":"new_follower"`)
		assert.Contains(t, msg, `"userIdHash":"newbie"`)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err, "each client gets exactly one frame")
	}

	// The upstream is down from here on, so only the queue serves the record.
	clock.Advance(29900 * time.Millisecond)
	assert.Contains(t, pendingHashes(monitor.Pending(ctx)), "newbie")

	clock.Advance(200 * time.Millisecond)
	assert.NotContains(t, pendingHashes(monitor.Pending(ctx)), "newbie")
}

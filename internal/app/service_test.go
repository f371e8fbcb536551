package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/retry"
)

// --- Mock implementations ---

type mockResolver struct {
	mu      sync.Mutex
	results []error
	profile domain.Profile
	calls   int
}

func (m *mockResolver) ResolveProfile(_ context.Context, _ domain.Credentials) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.calls < len(m.results) {
		err = m.results[m.calls]
	}
	m.calls++
	if err != nil {
		return domain.Profile{}, err
	}
	return m.profile, nil
}

func (m *mockResolver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memSessionStore struct {
	session *domain.Session
	deleted bool
	saveErr error
}

func (m *memSessionStore) LoadSession(_ context.Context) (*domain.Session, error) {
	if m.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	s := *m.session
	return &s, nil
}

func (m *memSessionStore) SaveSession(_ context.Context, session domain.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.session = &session
	return nil
}

func (m *memSessionStore) DeleteSession(_ context.Context) error {
	m.session = nil
	m.deleted = true
	return nil
}

type memSettingsStore struct {
	settings domain.Settings
	loadErr  error
}

func (m *memSettingsStore) LoadSettings(_ context.Context) (domain.Settings, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.settings == nil {
		return domain.Settings{}, nil
	}
	return m.settings.Clone(), nil
}

func (m *memSettingsStore) SaveSettings(_ context.Context, settings domain.Settings) error {
	m.settings = settings.Clone()
	return nil
}

type mockDetection struct {
	pending []domain.Follower
	resets  int
}

func (m *mockDetection) Pending(_ context.Context) []domain.Follower { return m.pending }
func (m *mockDetection) Reset()                                      { m.resets++ }

type recordingQueue struct {
	items []domain.Follower
}

func (q *recordingQueue) Push(f domain.Follower) { q.items = append(q.items, f) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

type recordingPoller struct {
	intervals []time.Duration
}

func (p *recordingPoller) SetBaseInterval(d time.Duration) { p.intervals = append(p.intervals, d) }

type serviceEnv struct {
	svc       *Service
	state     *SessionState
	resolver  *mockResolver
	sessions  *memSessionStore
	settings  *memSettingsStore
	detection *mockDetection
	queue     *recordingQueue
	publisher *recordingPublisher
	poller    *recordingPoller
	clock     *clockwork.FakeClock
}

func newServiceEnv() *serviceEnv {
	env := &serviceEnv{
		state:     NewSessionState(),
		resolver:  &mockResolver{profile: domain.Profile{UserIDHash: "channel-1", Nickname: "streamer"}},
		sessions:  &memSessionStore{},
		settings:  &memSettingsStore{},
		detection: &mockDetection{},
		queue:     &recordingQueue{},
		publisher: &recordingPublisher{},
		poller:    &recordingPoller{},
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)),
	}
	env.svc = NewService(ServiceDeps{
		State:     env.state,
		Resolver:  env.resolver,
		Sessions:  env.sessions,
		Settings:  env.settings,
		Detection: env.detection,
		TestQueue: env.queue,
		Publisher: env.publisher,
		Poller:    env.poller,
		Clock:     env.clock,
		RestorePolicy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
		},
		Classify: func(err error) retry.Action {
			if errors.Is(err, domain.ErrInvalidCredentials) {
				return retry.Stop
			}
			return retry.Retry
		},
	})
	return env
}

var validCreds = domain.Credentials{NidAut: "aut", NidSes: "ses"}

// --- Login ---

func TestLogin_ActivatesSession(t *testing.T) {
	env := newServiceEnv()

	profile, err := env.svc.Login(context.Background(), validCreds)
	require.NoError(t, err)
	assert.Equal(t, "streamer", profile.Nickname)

	session, ok := env.state.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, validCreds, session.Credentials)
	assert.Equal(t, env.clock.Now(), session.VerifiedAt)

	require.NotNil(t, env.sessions.session)
	assert.Equal(t, "channel-1", env.sessions.session.Profile.UserIDHash)
	assert.Equal(t, 1, env.detection.resets)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	env := newServiceEnv()

	_, err := env.svc.Login(context.Background(), domain.Credentials{NidAut: "aut"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, 0, env.resolver.callCount())
}

func TestLogin_RejectedCredentials(t *testing.T) {
	env := newServiceEnv()
	env.resolver.results = []error{fmt.Errorf("status 401: %w", domain.ErrInvalidCredentials)}

	_, err := env.svc.Login(context.Background(), validCreds)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, ok := env.state.CurrentSession()
	assert.False(t, ok)
	assert.Nil(t, env.sessions.session)
	assert.Equal(t, 0, env.detection.resets)
}

func TestLogin_StoreFailureKeepsSessionInMemory(t *testing.T) {
	env := newServiceEnv()
	env.sessions.saveErr = errors.New("disk full")

	_, err := env.svc.Login(context.Background(), validCreds)
	require.NoError(t, err)

	_, ok := env.state.CurrentSession()
	assert.True(t, ok)
}

// --- RestoreSession ---

func TestRestoreSession_NothingStored(t *testing.T) {
	env := newServiceEnv()

	require.NoError(t, env.svc.RestoreSession(context.Background()))
	_, ok := env.state.CurrentSession()
	assert.False(t, ok)
	assert.Equal(t, 0, env.resolver.callCount())
}

func TestRestoreSession_RetriesTransientFailures(t *testing.T) {
	env := newServiceEnv()
	env.sessions.session = &domain.Session{Credentials: validCreds}
	env.resolver.results = []error{errors.New("connection reset")}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- env.svc.RestoreSession(ctx) }()

	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("restore did not finish")
	}

	assert.Equal(t, 2, env.resolver.callCount())
	session, ok := env.state.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "streamer", session.Profile.Nickname)
	assert.Equal(t, 1, env.detection.resets)
}

func TestRestoreSession_InvalidCredentialsDeletesSession(t *testing.T) {
	env := newServiceEnv()
	env.sessions.session = &domain.Session{Credentials: validCreds}
	env.resolver.results = []error{domain.ErrInvalidCredentials}

	err := env.svc.RestoreSession(context.Background())
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	assert.Equal(t, 1, env.resolver.callCount(), "rejected credentials are not retried")
	assert.True(t, env.sessions.deleted)
	_, ok := env.state.CurrentSession()
	assert.False(t, ok)
}

// --- Followers & test injection ---

func TestFollowers_WrapsPending(t *testing.T) {
	env := newServiceEnv()
	env.detection.pending = []domain.Follower{{User: domain.User{UserIDHash: "a"}}}

	page := env.svc.Followers(context.Background())
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, 10, page.Size)
	assert.Equal(t, env.detection.pending, page.Data)
}

func TestInjectTestFollower(t *testing.T) {
	env := newServiceEnv()
	now := env.clock.Now()

	f, err := env.svc.InjectTestFollower(context.Background(), domain.TestSourceHTTP)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("test_%d", now.UnixMilli()), f.User.UserIDHash)
	assert.Equal(t, "테스트 유저", f.User.Nickname)
	assert.Nil(t, f.User.ProfileImageURL)
	assert.Equal(t, "2026-10-18T12:00:00Z", f.FollowingSince)

	assert.Equal(t, []domain.Follower{f}, env.queue.items)
	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, domain.EventTestNotification, env.publisher.events[0].Kind)
	assert.Equal(t, f, *env.publisher.events[0].Follower)
}

func TestInjectTestFollower_WebSocketGetsDefaultAvatar(t *testing.T) {
	env := newServiceEnv()

	f, err := env.svc.InjectTestFollower(context.Background(), domain.TestSourceWebSocket)
	require.NoError(t, err)
	require.NotNil(t, f.User.ProfileImageURL)
	assert.Equal(t, domain.DefaultProfileImage, *f.User.ProfileImageURL)
}

// --- Settings ---

func TestSettings_MergesOverDefaults(t *testing.T) {
	env := newServiceEnv()
	env.settings.settings = domain.Settings{"volume": 0.9, "custom": "x"}

	got, err := env.svc.Settings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.9, got["volume"])
	assert.Equal(t, "x", got["custom"])
	assert.Equal(t, "fade", got["animationType"])
	assert.Equal(t, float64(5), got["pollingInterval"])
}

func TestSettings_LoadError(t *testing.T) {
	env := newServiceEnv()
	env.settings.loadErr = errors.New("redis down")

	_, err := env.svc.Settings(context.Background())
	assert.Error(t, err)
}

func TestSaveSettings_FloorsPollingInterval(t *testing.T) {
	env := newServiceEnv()

	saved, err := env.svc.SaveSettings(context.Background(), domain.Settings{"pollingInterval": float64(1), "volume": 0.2})
	require.NoError(t, err)

	assert.Equal(t, float64(5), saved["pollingInterval"])
	assert.Equal(t, float64(5), env.settings.settings["pollingInterval"])
	assert.Equal(t, []time.Duration{5 * time.Second}, env.poller.intervals)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, domain.EventSettingsUpdated, env.publisher.events[0].Kind)
	assert.Equal(t, saved, env.publisher.events[0].Settings)
}

func TestSaveSettings_KeepsLargerInterval(t *testing.T) {
	env := newServiceEnv()

	_, err := env.svc.SaveSettings(context.Background(), domain.Settings{"pollingInterval": float64(12)})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{12 * time.Second}, env.poller.intervals)
}

func TestSaveSettings_WithoutIntervalLeavesPoller(t *testing.T) {
	env := newServiceEnv()

	_, err := env.svc.SaveSettings(context.Background(), domain.Settings{"textColor": "#000000"})
	require.NoError(t, err)
	assert.Empty(t, env.poller.intervals)
}

func TestSaveSettings_RejectsNil(t *testing.T) {
	env := newServiceEnv()

	_, err := env.svc.SaveSettings(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidSettings)
	assert.Empty(t, env.publisher.events)
}

func TestApplyStoredSettings(t *testing.T) {
	env := newServiceEnv()
	env.settings.settings = domain.Settings{"pollingInterval": float64(20)}

	require.NoError(t, env.svc.ApplyStoredSettings(context.Background()))
	assert.Equal(t, []time.Duration{20 * time.Second}, env.poller.intervals)
}

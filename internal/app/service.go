package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/retry"
)

const (
	followerPageSize     = 10
	testFollowerNickname = "테스트 유저"
)

// Detection is the follower pipeline as seen by the service.
type Detection interface {
	Pending(ctx context.Context) []domain.Follower
	Reset()
}

// TestQueue receives injected test followers.
type TestQueue interface {
	Push(f domain.Follower)
}

// IntervalSetter accepts a new base poll interval.
type IntervalSetter interface {
	SetBaseInterval(d time.Duration)
}

type ServiceDeps struct {
	State     *SessionState
	Resolver  domain.ProfileResolver
	Sessions  domain.SessionStore
	Settings  domain.SettingsStore
	Detection Detection
	TestQueue TestQueue
	Publisher domain.EventPublisher
	Poller    IntervalSetter
	Clock     clockwork.Clock
	Metrics   *metrics.PollerMetrics

	// RestorePolicy and Classify drive retries when re-verifying a stored
	// session at startup.
	RestorePolicy retry.Policy
	Classify      retry.Classify
}

// Service is the application layer. It is the only component that touches
// the session, the stores and the detection pipeline together.
type Service struct {
	state         *SessionState
	resolver      domain.ProfileResolver
	sessions      domain.SessionStore
	settings      domain.SettingsStore
	detection     Detection
	testQueue     TestQueue
	publisher     domain.EventPublisher
	poller        IntervalSetter
	clock         clockwork.Clock
	metrics       *metrics.PollerMetrics
	restorePolicy retry.Policy
	classify      retry.Classify
}

func NewService(deps ServiceDeps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Classify == nil {
		deps.Classify = retry.Always
	}
	if deps.RestorePolicy.MaxAttempts < 1 {
		deps.RestorePolicy = retry.Policy{
			MaxAttempts:     3,
			InitialBackoff:  2 * time.Second,
			MaxBackoff:      10 * time.Second,
			ThrottleBackoff: 30 * time.Second,
		}
	}
	deps.RestorePolicy.Clock = deps.Clock

	return &Service{
		state:         deps.State,
		resolver:      deps.Resolver,
		sessions:      deps.Sessions,
		settings:      deps.Settings,
		detection:     deps.Detection,
		testQueue:     deps.TestQueue,
		publisher:     deps.Publisher,
		poller:        deps.Poller,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		restorePolicy: deps.RestorePolicy,
		classify:      deps.Classify,
	}
}

// Login verifies creds upstream, persists the session and starts monitoring
// the account it belongs to. Detection state from a previous account is
// discarded.
func (s *Service) Login(ctx context.Context, creds domain.Credentials) (domain.Profile, error) {
	if creds.Empty() {
		return domain.Profile{}, fmt.Errorf("both NID_AUT and NID_SES are required: %w", domain.ErrInvalidCredentials)
	}

	profile, err := s.resolver.ResolveProfile(ctx, creds)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("failed to verify credentials: %w", err)
	}

	session := domain.Session{Credentials: creds, Profile: profile, VerifiedAt: s.clock.Now()}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		slog.ErrorContext(ctx, "Failed to persist session, continuing in memory", "error", err)
	}

	s.activate(session)
	slog.InfoContext(ctx, "Logged in", "nickname", profile.Nickname)
	return profile, nil
}

// RestoreSession re-verifies the stored session, if any. A missing session
// is not an error. Rejected credentials are removed from the store.
func (s *Service) RestoreSession(ctx context.Context) error {
	stored, err := s.sessions.LoadSession(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		slog.InfoContext(ctx, "No stored session, waiting for login")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load stored session: %w", err)
	}

	policy := s.restorePolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Session verification failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	profile, err := retry.Do(ctx, policy, s.classify, func(ctx context.Context) (domain.Profile, error) {
		return s.resolver.ResolveProfile(ctx, stored.Credentials)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			if delErr := s.sessions.DeleteSession(ctx); delErr != nil {
				slog.WarnContext(ctx, "Failed to delete rejected session", "error", delErr)
			}
		}
		return fmt.Errorf("failed to restore session: %w", err)
	}

	session := domain.Session{Credentials: stored.Credentials, Profile: profile, VerifiedAt: s.clock.Now()}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		slog.WarnContext(ctx, "Failed to refresh stored session", "error", err)
	}

	s.activate(session)
	slog.InfoContext(ctx, "Session restored", "nickname", profile.Nickname)
	return nil
}

func (s *Service) activate(session domain.Session) {
	s.state.Set(session)
	s.detection.Reset()
}

// Profile returns the logged-in profile.
func (s *Service) Profile() (domain.Profile, bool) {
	session, ok := s.state.CurrentSession()
	return session.Profile, ok
}

// Followers returns the pending notifications followed by the live page.
func (s *Service) Followers(ctx context.Context) domain.FollowerPage {
	return domain.FollowerPage{
		Page: 0,
		Size: followerPageSize,
		Data: s.detection.Pending(ctx),
	}
}

// InjectTestFollower queues and broadcasts a synthetic follower shaped like
// a real one.
func (s *Service) InjectTestFollower(ctx context.Context, source domain.TestSource) (domain.Follower, error) {
	now := s.clock.Now()

	f := domain.Follower{
		User: domain.User{
			UserIDHash: fmt.Sprintf("test_%d", now.UnixMilli()),
			Nickname:   testFollowerNickname,
		},
		FollowingSince: now.Format(time.RFC3339),
	}
	if source == domain.TestSourceWebSocket {
		avatar := domain.DefaultProfileImage
		f.User.ProfileImageURL = &avatar
	}

	s.testQueue.Push(f)
	s.publisher.Publish(ctx, domain.NewTestNotificationEvent(f))
	if s.metrics != nil {
		s.metrics.NewFollowers.WithLabelValues("test").Inc()
	}

	slog.InfoContext(ctx, "Test follower injected", "source", source, "user_id_hash", f.User.UserIDHash)
	return f, nil
}

// Settings returns the stored settings merged over the defaults.
func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	stored, err := s.settings.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return domain.DefaultSettings().Merge(stored), nil
}

// SaveSettings persists settings after raising pollingInterval to its floor,
// then broadcasts them and retunes the poller.
func (s *Service) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings must be an object: %w", domain.ErrInvalidSettings)
	}

	saved := settings.Clone()
	seconds, hasInterval := saved.PollingIntervalSeconds()
	if hasInterval && seconds < domain.MinPollingIntervalSeconds {
		seconds = domain.MinPollingIntervalSeconds
		saved["pollingInterval"] = float64(seconds)
	}

	if err := s.settings.SaveSettings(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.publisher.Publish(ctx, domain.NewSettingsUpdatedEvent(saved))
	if hasInterval {
		s.poller.SetBaseInterval(secondsToDuration(seconds))
	}

	slog.InfoContext(ctx, "Settings saved", "keys", len(saved))
	return saved, nil
}

// ApplyStoredSettings tunes the poller from persisted settings at startup.
func (s *Service) ApplyStoredSettings(ctx context.Context) error {
	settings, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	if seconds, ok := settings.PollingIntervalSeconds(); ok {
		s.poller.SetBaseInterval(secondsToDuration(seconds))
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

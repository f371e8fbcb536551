package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	followersFn    func(ctx context.Context) domain.FollowerPage
	injectFn       func(ctx context.Context, source domain.TestSource) (domain.Follower, error)
	settingsFn     func(ctx context.Context) (domain.Settings, error)
	saveSettingsFn func(ctx context.Context, settings domain.Settings) (domain.Settings, error)
	loginFn        func(ctx context.Context, creds domain.Credentials) (domain.Profile, error)
}

func (m *mockAppService) Followers(ctx context.Context) domain.FollowerPage {
	if m.followersFn != nil {
		return m.followersFn(ctx)
	}
	return domain.FollowerPage{Page: 0, Size: 10}
}

func (m *mockAppService) InjectTestFollower(ctx context.Context, source domain.TestSource) (domain.Follower, error) {
	if m.injectFn != nil {
		return m.injectFn(ctx, source)
	}
	return domain.Follower{}, nil
}

func (m *mockAppService) Settings(ctx context.Context) (domain.Settings, error) {
	if m.settingsFn != nil {
		return m.settingsFn(ctx)
	}
	return domain.DefaultSettings(), nil
}

func (m *mockAppService) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if m.saveSettingsFn != nil {
		return m.saveSettingsFn(ctx, settings)
	}
	return settings, nil
}

func (m *mockAppService) Login(ctx context.Context, creds domain.Credentials) (domain.Profile, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return domain.Profile{}, errors.New("not implemented")
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Deps)) *Server {
	t.Helper()

	cfg := &config.Config{Port: "0", TestFollowerRPS: 100}

	var deps Deps
	for _, opt := range opts {
		opt(&deps)
	}
	return NewServer(cfg, app, deps)
}

func withHealthChecks(checks ...HealthCheck) func(*Deps) {
	return func(d *Deps) {
		d.HealthChecks = checks
	}
}

func withWebSocketHandler(h http.Handler) func(*Deps) {
	return func(d *Deps) {
		d.WebSocketHandler = h
	}
}

func withMetricsHandler(h http.Handler) func(*Deps) {
	return func(d *Deps) {
		d.MetricsHandler = h
	}
}

// serve runs a request through the full middleware stack.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

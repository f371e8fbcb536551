package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pscheid92/fazzk/internal/adapter/chzzk"
	"github.com/pscheid92/fazzk/internal/adapter/filestore"
	"github.com/pscheid92/fazzk/internal/adapter/httpserver"
	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/adapter/redis"
	"github.com/pscheid92/fazzk/internal/adapter/websocket"
	"github.com/pscheid92/fazzk/internal/app"
	"github.com/pscheid92/fazzk/internal/broadcast"
	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/follower"
	"github.com/pscheid92/fazzk/internal/platform/config"
	"github.com/pscheid92/fazzk/internal/platform/logging"
	"github.com/pscheid92/fazzk/internal/platform/version"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 30 * time.Second
)

// store is what both persistence backends provide.
type store interface {
	domain.SettingsStore
	domain.SessionStore
	Ping(ctx context.Context) error
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(ctx context.Context, cfg *config.Config, m *metrics.StoreMetrics) (store, func(), error) {
	if cfg.RedisURL == "" {
		fs, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using file store", "dir", cfg.DataDir)
		return fs, func() {}, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(m),
		redis.NewCircuitBreakerHook(cfg.RedisBreakerDelay, m),
	)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Redis store")
	return redis.NewStore(client), func() { _ = client.Close() }, nil
}

func pollerHealthCheck(p *app.Poller) httpserver.HealthCheck {
	return httpserver.HealthCheck{
		Name: "poller",
		Check: func(context.Context) error {
			if p.Halted() {
				return fmt.Errorf("poller halted: %w", domain.ErrMonitoringHalted)
			}
			return nil
		},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)
	pollerMetrics := metrics.NewPollerMetrics(reg)
	storeMetrics := metrics.NewStoreMetrics(reg)
	upstreamMetrics := metrics.NewUpstreamMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)

	startupCtx, cancelStartup := context.WithTimeout(ctx, startupTimeout)
	defer cancelStartup()

	st, closeStore, err := setupStore(startupCtx, cfg, storeMetrics)
	if err != nil {
		slog.Error("Failed to set up store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	pool := broadcast.NewPool(cfg.MaxWebSocketConnections, cfg.ConnectionIdleTimeout, clock, wsMetrics)
	bus := broadcast.NewBus(cfg.BusBufferSize, pool, wsMetrics)

	upstream := chzzk.NewClient(chzzk.Config{
		APIURL:     cfg.ChzzkAPIURL,
		GameAPIURL: cfg.GameAPIURL,
		RPS:        cfg.UpstreamRPS,
		Burst:      cfg.UpstreamBurst,
	}, upstreamMetrics)

	state := app.NewSessionState()
	notifications := follower.NewNotifications(cfg.QueueExpiry, cfg.TestQueueExpiry, clock)
	monitor := follower.NewMonitor(
		state,
		upstream,
		follower.NewSnapshotCache(cfg.SnapshotCacheTTL, clock, cacheMetrics),
		follower.NewDetector(follower.NewHistory(cfg.HistoryCapacity), cfg.HighlightedUserHash, cfg.HighlightDedupWindow),
		notifications,
		bus,
		pollerMetrics,
	)

	poller := app.NewPoller(monitor, pool, app.PollerConfig{
		Interval:   cfg.PollInterval,
		MaxBackoff: cfg.PollMaxBackoff,
		MaxErrors:  cfg.PollMaxErrors,
	}, clock, pollerMetrics)

	appSvc := app.NewService(app.ServiceDeps{
		State:     state,
		Resolver:  upstream,
		Sessions:  st,
		Settings:  st,
		Detection: monitor,
		TestQueue: notifications.Test,
		Publisher: bus,
		Poller:    poller,
		Clock:     clock,
		Metrics:   pollerMetrics,
		Classify:  chzzk.Classify,
	})

	if err := appSvc.ApplyStoredSettings(startupCtx); err != nil {
		slog.Warn("Failed to apply stored settings", "error", err)
	}
	if err := appSvc.RestoreSession(startupCtx); err != nil {
		slog.Warn("No session restored, waiting for login", "error", err)
	}
	cancelStartup()

	wsHandler := websocket.NewHandler(pool, bus, appSvc, websocket.Options{
		CheckOrigin:       websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		TestFollowerRate:  rate.Limit(cfg.TestFollowerRPS),
		TestFollowerBurst: 3,
		Clock:             clock,
		Metrics:           wsMetrics,
	})

	srv := httpserver.NewServer(cfg, appSvc, httpserver.Deps{
		WebSocketHandler: wsHandler,
		MetricsHandler:   metrics.Handler(reg),
		HTTPMetrics:      httpMetrics,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "store", Check: st.Ping},
			pollerHealthCheck(poller),
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server starting", "port", cfg.Port)
		return srv.Start()
	})

	g.Go(func() error {
		pool.RunSweeper(gctx, cfg.ConnectionSweepInterval)
		return nil
	})

	g.Go(func() error {
		// A halted poller leaves the server up; readiness reports it.
		if err := poller.Run(gctx); err != nil {
			slog.Error("Follower monitoring stopped", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		pool.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

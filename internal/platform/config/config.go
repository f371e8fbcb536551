package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// MinPollInterval is the floor for the follower poll interval. The upstream
// API is not polled more often than this regardless of configuration.
const MinPollInterval = 5 * time.Second

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3000"`
	AppURL    string `env:"APP_URL" default:"http://localhost:3000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RedisURL          string        `env:"REDIS_URL"`
	RedisBreakerDelay time.Duration `env:"REDIS_BREAKER_DELAY" default:"30s"`
	DataDir           string        `env:"DATA_DIR" default:"./data"`

	ChzzkAPIURL string `env:"CHZZK_API_URL" default:"https://api.chzzk.naver.com"`
	GameAPIURL  string `env:"GAME_API_URL" default:"https://comm-api.game.naver.com"`

	HighlightedUserHash  string        `env:"HIGHLIGHTED_USER_HASH"`
	HighlightDedupWindow time.Duration `env:"HIGHLIGHT_DEDUP_WINDOW" default:"30s"`

	PollInterval   time.Duration `env:"POLL_INTERVAL" default:"5s"`
	PollMaxBackoff time.Duration `env:"POLL_MAX_BACKOFF" default:"60s"`
	PollMaxErrors  int           `env:"POLL_MAX_ERRORS" default:"10"`

	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" default:"5s"`
	HistoryCapacity  int           `env:"HISTORY_CAPACITY" default:"100"`
	QueueExpiry      time.Duration `env:"QUEUE_EXPIRY" default:"30s"`
	TestQueueExpiry  time.Duration `env:"TEST_QUEUE_EXPIRY" default:"10s"`

	MaxWebSocketConnections int           `env:"MAX_WEBSOCKET_CONNECTIONS" default:"100"`
	ConnectionIdleTimeout   time.Duration `env:"CONNECTION_IDLE_TIMEOUT" default:"10m"`
	ConnectionSweepInterval time.Duration `env:"CONNECTION_SWEEP_INTERVAL" default:"5m"`
	BusBufferSize           int           `env:"BUS_BUFFER_SIZE" default:"256"`

	UpstreamRPS     float64 `env:"UPSTREAM_RPS" default:"2"`
	UpstreamBurst   int     `env:"UPSTREAM_BURST" default:"5"`
	TestFollowerRPS float64 `env:"TEST_FOLLOWER_RPS" default:"2"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func validate(cfg *Config) error {
	if cfg.PollInterval < MinPollInterval {
		return fmt.Errorf("POLL_INTERVAL must be at least %s", MinPollInterval)
	}
	if cfg.PollMaxBackoff < cfg.PollInterval {
		return errors.New("POLL_MAX_BACKOFF must not be shorter than POLL_INTERVAL")
	}
	if cfg.PollMaxErrors < 1 {
		return errors.New("POLL_MAX_ERRORS must be positive")
	}
	if cfg.SnapshotCacheTTL <= 0 {
		return errors.New("SNAPSHOT_CACHE_TTL must be positive")
	}
	if cfg.HistoryCapacity < 1 {
		return errors.New("HISTORY_CAPACITY must be positive")
	}
	if cfg.QueueExpiry <= 0 || cfg.TestQueueExpiry <= 0 {
		return errors.New("QUEUE_EXPIRY and TEST_QUEUE_EXPIRY must be positive")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.ConnectionIdleTimeout <= 0 || cfg.ConnectionSweepInterval <= 0 {
		return errors.New("CONNECTION_IDLE_TIMEOUT and CONNECTION_SWEEP_INTERVAL must be positive")
	}
	if cfg.BusBufferSize < 1 {
		return errors.New("BUS_BUFFER_SIZE must be positive")
	}
	if cfg.UpstreamRPS <= 0 || cfg.UpstreamBurst < 1 {
		return errors.New("UPSTREAM_RPS and UPSTREAM_BURST must be positive")
	}

	for name, raw := range map[string]string{"CHZZK_API_URL": cfg.ChzzkAPIURL, "GAME_API_URL": cfg.GameAPIURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}

	return nil
}

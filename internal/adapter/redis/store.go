package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	settingsKey = "fazzk:settings"
	sessionKey  = "fazzk:session"
)

// Store implements domain.SettingsStore and domain.SessionStore. Settings
// live in a hash with one JSON-encoded value per key, so saves merge.
type Store struct {
	rdb goredis.Cmdable
}

var (
	_ domain.SettingsStore = (*Store)(nil)
	_ domain.SessionStore  = (*Store)(nil)
)

func NewStore(rdb goredis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) LoadSettings(ctx context.Context) (domain.Settings, error) {
	fields, err := s.rdb.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := make(domain.Settings, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode setting %q: %w", k, err)
		}
		settings[k] = v
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if len(settings) == 0 {
		return nil
	}

	values := make(map[string]any, len(settings))
	for k, v := range settings {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode setting %q: %w", k, err)
		}
		values[k] = string(raw)
	}

	if err := s.rdb.HSet(ctx, settingsKey, values).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

type sessionRecord struct {
	NidAut     string    `json:"nid_aut"`
	NidSes     string    `json:"nid_ses"`
	UserIDHash string    `json:"user_id_hash"`
	Nickname   string    `json:"nickname"`
	VerifiedAt time.Time `json:"verified_at"`
}

func (s *Store) LoadSession(ctx context.Context) (*domain.Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	return &domain.Session{
		Credentials: domain.Credentials{NidAut: rec.NidAut, NidSes: rec.NidSes},
		Profile:     domain.Profile{UserIDHash: rec.UserIDHash, Nickname: rec.Nickname},
		VerifiedAt:  rec.VerifiedAt,
	}, nil
}

func (s *Store) SaveSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(sessionRecord{
		NidAut:     session.Credentials.NidAut,
		NidSes:     session.Credentials.NidSes,
		UserIDHash: session.Profile.UserIDHash,
		Nickname:   session.Profile.Nickname,
		VerifiedAt: session.VerifiedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context) error {
	if err := s.rdb.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

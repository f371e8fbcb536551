package domain

import (
	"context"
	"encoding/json"
)

// MinPollingIntervalSeconds is the server-side floor for pollingInterval.
const MinPollingIntervalSeconds = 5

// Settings is the overlay's key/value configuration. Values are opaque to the
// server except pollingInterval, which drives the poller.
type Settings map[string]any

// DefaultSettings returns a fresh copy of the values used for missing keys.
func DefaultSettings() Settings {
	return Settings{
		"volume":          0.5,
		"pollingInterval": float64(MinPollingIntervalSeconds),
		"displayDuration": float64(5),
		"enableTTS":       false,
		"customSoundPath": nil,
		"animationType":   "fade",
		"textColor":       "#ffffff",
		"textSize":        float64(100),
	}
}

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a copy of s with every key of overlay applied on top.
func (s Settings) Merge(overlay Settings) Settings {
	out := s.Clone()
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// PollingIntervalSeconds returns pollingInterval as seconds and whether the
// key held a number.
func (s Settings) PollingIntervalSeconds() (float64, bool) {
	switch v := s["pollingInterval"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// SettingsStore persists overlay settings. Save merges the given keys into
// what is stored; Load returns an empty map when nothing is stored.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/fazzk/internal/domain"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	store, err := New(dir)
	require.NoError(t, err)
	return store, dir
}

func TestStore_SettingsEmptyWhenMissing(t *testing.T) {
	store, _ := newStore(t)

	settings, err := store.LoadSettings(context.Background())

	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestStore_SaveSettingsMerges(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, domain.Settings{"volume": 0.8, "textColor": "#000000"}))
	require.NoError(t, store.SaveSettings(ctx, domain.Settings{"volume": 0.3, "pollingInterval": float64(10)}))

	settings, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Settings{
		"volume":          0.3,
		"textColor":       "#000000",
		"pollingInterval": float64(10),
	}, settings)
}

func TestStore_LoadNormalizesIntegers(t *testing.T) {
	store, dir := newStore(t)
	yamlDoc := "pollingInterval: 15\nenableTTS: true\nnested:\n  size: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte(yamlDoc), 0o600))

	settings, err := store.LoadSettings(context.Background())

	require.NoError(t, err)
	assert.Equal(t, float64(15), settings["pollingInterval"])
	assert.Equal(t, true, settings["enableTTS"])
	assert.Equal(t, map[string]any{"size": float64(3)}, settings["nested"])

	seconds, ok := settings.PollingIntervalSeconds()
	assert.True(t, ok)
	assert.Equal(t, 15.0, seconds)
}

func TestStore_CorruptSettingsFile(t *testing.T) {
	store, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte("volume: [unterminated"), 0o600))

	_, err := store.LoadSettings(context.Background())

	assert.Error(t, err)
}

func TestStore_SessionLifecycle(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	_, err := store.LoadSession(ctx)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	session := domain.Session{
		Credentials: domain.Credentials{NidAut: "aut", NidSes: "ses"},
		Profile:     domain.Profile{UserIDHash: "hash", Nickname: "스트리머"},
		VerifiedAt:  time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveSession(ctx, session))

	info, err := os.Stat(filepath.Join(dir, sessionFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Credentials, loaded.Credentials)
	assert.Equal(t, session.Profile, loaded.Profile)
	assert.True(t, session.VerifiedAt.Equal(loaded.VerifiedAt))

	require.NoError(t, store.DeleteSession(ctx))
	_, err = store.LoadSession(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.NoError(t, store.DeleteSession(ctx), "deleting a missing session is not an error")
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, domain.Settings{"volume": 0.5}))
	require.NoError(t, store.Ping(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, settingsFile, entries[0].Name())
}

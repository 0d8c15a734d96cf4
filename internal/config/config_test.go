package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "spotcheck.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Notify.EventsPerMinute)
	assert.Equal(t, 140, cfg.Run.NotesCutoff)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/review.db
log:
  level: debug
  format: console
server:
  port: 9090
notify:
  webhook_url: https://hooks.example.com/spotcheck
run:
  notes_cutoff: 80
bill:
  tolerances_path: tolerances.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/review.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com/spotcheck", cfg.Notify.WebhookURL)
	assert.Equal(t, 80, cfg.Run.NotesCutoff)
	assert.Equal(t, "tolerances.yaml", cfg.Bill.TolerancesPath)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SPOTCHECK_STORE_DRIVER", "sqlite")
	t.Setenv("SPOTCHECK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
		assert.NotNil(t, zap.L())
	})

	t.Run("console format", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
		assert.NotNil(t, zap.L())
	})

	t.Run("bad level", func(t *testing.T) {
		assert.Error(t, InitLogger(LogConfig{Level: "shout", Format: "json"}))
	})
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legis-watch/spotcheck-cli/internal/config"
	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/notify"
)

func TestInitStore_SQLite(t *testing.T) {
	tmpDir := t.TempDir()

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(tmpDir, "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultPath(t *testing.T) {
	// When SQLitePath is empty, initStore should default to "spotcheck.db".
	// Run in a temp dir so we don't create files in the project root.
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "sqlite",
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "spotcheck.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "mysql",
		},
	}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitNotifier(t *testing.T) {
	cfg = &config.Config{}
	_, ok := initNotifier().(*notify.LogNotifier)
	assert.True(t, ok, "empty webhook URL should select the log notifier")

	cfg = &config.Config{
		Notify: config.NotifyConfig{WebhookURL: "http://localhost:9/hook", EventsPerMinute: 5},
	}
	_, ok = initNotifier().(*notify.WebhookNotifier)
	assert.True(t, ok, "configured webhook URL should select the webhook notifier")
}

func TestInitRegistry_SQLiteIsEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(tmpDir, "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	reg, err := initRegistry(st)
	require.NoError(t, err)
	assert.Empty(t, reg.RefTypes())
}

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("", "")
	require.NoError(t, err)
	assert.Equal(t, model.AllTime(), w)

	w, err = parseWindow("2025-01-01T00:00:00Z", "2025-02-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), w.End)

	_, err = parseWindow("not-a-time", "")
	assert.Error(t, err)

	_, err = parseWindow("2025-02-01T00:00:00Z", "2025-01-01T00:00:00Z")
	assert.Error(t, err)
}

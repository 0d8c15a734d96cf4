package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

func TestWebhookNotifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("report completed posts a digest", func(t *testing.T) {
		t.Parallel()
		var got event
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		n := NewWebhook(srv.URL, 60)
		n.ReportCompleted(ctx, ReportDigest{
			RefType:        model.RefDaybreakBill,
			ReportTime:     time.Date(2017, 3, 1, 6, 0, 0, 0, time.UTC),
			ObservedCount:  42,
			OpenMismatches: 3,
			Notes:          "nightly daybreak",
		})

		assert.Equal(t, EventReportCompleted, got.Kind)
		require.NotNil(t, got.Digest)
		assert.Equal(t, 42, got.Digest.ObservedCount)
		assert.Equal(t, "nightly daybreak", got.Digest.Notes)
		assert.Equal(t, "daybreak_bill", got.RefType)
	})

	t.Run("run failed posts the error", func(t *testing.T) {
		t.Parallel()
		var got event
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}))
		defer srv.Close()

		n := NewWebhook(srv.URL, 60)
		n.RunFailed(ctx, model.RefCalendarAlert, eris.New("alert feed unreachable"), true)

		assert.Equal(t, EventRunFailed, got.Kind)
		assert.Equal(t, "calendar_alert", got.RefType)
		assert.Contains(t, got.Error, "alert feed unreachable")
		assert.True(t, got.Fatal)
	})

	t.Run("server error does not propagate", func(t *testing.T) {
		t.Parallel()
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		n := NewWebhook(srv.URL, 60)
		n.retry = fastRetry(3)
		// Must not panic or block; failures are logged only.
		n.ReportCompleted(ctx, ReportDigest{RefType: model.RefDaybreakBill})

		// 500 is retryable, so every attempt should have been used.
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	})

	t.Run("bad request is not retried", func(t *testing.T) {
		t.Parallel()
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		n := NewWebhook(srv.URL, 60)
		n.retry = fastRetry(3)
		n.ReportCompleted(ctx, ReportDigest{RefType: model.RefDaybreakBill})

		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("recovers when a retry succeeds", func(t *testing.T) {
		t.Parallel()
		var hits int32
		var got event
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}))
		defer srv.Close()

		n := NewWebhook(srv.URL, 60)
		n.retry = fastRetry(3)
		n.ReportCompleted(ctx, ReportDigest{RefType: model.RefDaybreakBill, ObservedCount: 7})

		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
		require.NotNil(t, got.Digest)
		assert.Equal(t, 7, got.Digest.ObservedCount)
	})

	t.Run("unreachable url does not propagate", func(t *testing.T) {
		t.Parallel()
		n := NewWebhook("http://127.0.0.1:1/unreachable", 60)
		n.retry = fastRetry(1)
		n.RunFailed(ctx, model.RefDaybreakBill, eris.New("boom"), false)
	})
}

// fastRetry keeps retry tests quick.
func fastRetry(attempts int) retryConfig {
	cfg := defaultRetryConfig()
	cfg.maxAttempts = attempts
	cfg.initialBackoff = time.Millisecond
	cfg.maxBackoff = 5 * time.Millisecond
	return cfg
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(eris.New("schema validation failed")))
	assert.True(t, isTransient(&transientStatusError{status: 503, msg: "status 503"}))
	assert.True(t, isTransient(eris.New("read tcp: connection reset by peer")))
	assert.True(t, isTransient(syscall.ECONNREFUSED))
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, isRetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 204, 301, 400, 401, 403, 404, 422} {
		assert.False(t, isRetryableStatus(code), "status %d", code)
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// event is the wire shape posted to the webhook.
type event struct {
	Kind      EventKind     `json:"kind"`
	Digest    *ReportDigest `json:"digest,omitempty"`
	RefType   string        `json:"ref_type,omitempty"`
	Error     string        `json:"error,omitempty"`
	Fatal     bool          `json:"fatal,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// WebhookNotifier posts events as JSON to a configured URL. Sends are rate
// limited and failures are logged, never propagated.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	retry   retryConfig
	log     *zap.Logger
}

// NewWebhook creates a webhook notifier. eventsPerMinute bounds outbound
// traffic; zero or negative falls back to 30.
func NewWebhook(url string, eventsPerMinute int) *WebhookNotifier {
	if eventsPerMinute <= 0 {
		eventsPerMinute = 30
	}
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(eventsPerMinute)), eventsPerMinute),
		retry:   defaultRetryConfig(),
		log:     zap.L().With(zap.String("component", "notify")),
	}
}

func (w *WebhookNotifier) ReportCompleted(ctx context.Context, digest ReportDigest) {
	w.send(ctx, event{
		Kind:      EventReportCompleted,
		Digest:    &digest,
		RefType:   string(digest.RefType),
		Timestamp: time.Now().UTC(),
	})
}

func (w *WebhookNotifier) RunFailed(ctx context.Context, refType model.ReferenceType, err error, fatal bool) {
	w.send(ctx, event{
		Kind:      EventRunFailed,
		RefType:   string(refType),
		Error:     err.Error(),
		Fatal:     fatal,
		Timestamp: time.Now().UTC(),
	})
}

func (w *WebhookNotifier) send(ctx context.Context, ev event) {
	if err := w.limiter.Wait(ctx); err != nil {
		w.log.Warn("notification dropped, rate limiter interrupted", zap.Error(err))
		return
	}
	err := withRetry(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, ev)
	})
	if err != nil {
		w.log.Error("failed to send notification",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		return
	}
	w.log.Info("notification sent",
		zap.String("kind", string(ev.Kind)),
		zap.String("ref_type", ev.RefType),
	)
}

func (w *WebhookNotifier) post(ctx context.Context, ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		if isRetryableStatus(resp.StatusCode) {
			return &transientStatusError{
				status: resp.StatusCode,
				msg:    fmt.Sprintf("notify: webhook returned status %d", resp.StatusCode),
			}
		}
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

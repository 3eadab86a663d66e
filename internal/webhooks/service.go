// Package webhooks notifies external receivers when an account's
// verification status changes.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Notifier fans status-change events out to the configured endpoints.
type Notifier struct {
	endpoints  []Endpoint
	httpClient *http.Client
	delays     []time.Duration // before attempts 2 and 3
	now        func() time.Time
	onMetrics  MetricsRecorder
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewNotifier creates a Notifier. Endpoints without a URL are ignored.
func NewNotifier(endpoints []Endpoint, logger *zap.Logger) *Notifier {
	var valid []Endpoint
	for _, ep := range endpoints {
		if ep.URL == "" {
			logger.Warn("webhook: endpoint without url ignored")
			continue
		}
		valid = append(valid, ep)
	}
	return &Notifier{
		endpoints:  valid,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{1 * time.Second, 5 * time.Second},
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Enabled reports whether any endpoint is configured.
func (n *Notifier) Enabled() bool {
	return len(n.endpoints) > 0
}

// NotifyStatusChange dispatches account.verified or account.unverified for
// res. It has the signature of verify.StatusChangeFunc.
func (n *Notifier) NotifyStatusChange(ctx context.Context, acct *accounts.Account, res verify.Result) {
	eventType := EventAccountUnverified
	if res.Verified {
		eventType = EventAccountVerified
	}
	n.Dispatch(ctx, eventType, AccountPayload{
		AccountID: acct.ID.String(),
		UserID:    acct.UserID,
		Platform:  acct.Platform.String(),
		Username:  acct.Username,
		Verified:  res.Verified,
		CodeFound: res.CodeFound,
		Error:     res.Error,
		CheckedAt: res.CheckedAt,
	})
}

// Dispatch delivers the event to every endpoint subscribed to eventType.
// Deliveries run in the background and outlive ctx's cancellation.
func (n *Notifier) Dispatch(ctx context.Context, eventType string, payload AccountPayload) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: n.now(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, ep := range n.endpoints {
		if !ep.Accepts(eventType) {
			continue
		}
		n.wg.Add(1)
		go func(ep Endpoint) {
			defer n.wg.Done()
			n.deliver(ctx, ep, eventType, body)
		}(ep)
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// deliver sends the body to a single endpoint, up to three attempts.
func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) {
	signature := signPayload(body, ep.Secret)

	for attempt := 1; attempt <= len(n.delays)+1; attempt++ {
		if attempt > 1 {
			time.Sleep(n.delays[attempt-2])
		}

		success, errMsg := n.doDelivery(ctx, ep.URL, body, signature)
		if n.onMetrics != nil {
			n.onMetrics(success)
		}
		if success {
			n.logger.Debug("webhook: delivered",
				zap.String("url", ep.URL),
				zap.String("event", eventType),
				zap.Int("attempt", attempt),
			)
			return
		}

		n.logger.Warn("webhook: delivery failed",
			zap.String("url", ep.URL),
			zap.String("event", eventType),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (n *Notifier) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

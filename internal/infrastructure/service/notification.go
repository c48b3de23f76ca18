// Package service holds the sinks that apply committed effects: the in-app
// inbox, the notification webhook and the audit trail.
package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/circuitbreaker"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOX SINK
// ══════════════════════════════════════════════════════════════════════════════

// Inbox stores notifications for in-app display.
type Inbox interface {
	Insert(ctx context.Context, n shared.Notification) error
}

// InboxSink writes notifications to the in-app inbox.
type InboxSink struct {
	inbox Inbox
}

// NewInboxSink creates an InboxSink.
func NewInboxSink(inbox Inbox) *InboxSink {
	return &InboxSink{inbox: inbox}
}

// Notify implements shared.NotificationSink. Storage failures are retryable.
func (s *InboxSink) Notify(ctx context.Context, n shared.Notification) error {
	if err := s.inbox.Insert(ctx, n); err != nil {
		if shared.IsValidation(err) {
			return retry.Permanent(err)
		}
		return retry.Retryable(fmt.Errorf("inbox: %w", err))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK SINK
// POSTs each notification as JSON. With a secret configured the body is
// signed with a keyed blake2b-256 MAC in the X-Signature header.
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader carries the body MAC.
const SignatureHeader = "X-Signature"

// WebhookConfig configures the WebhookSink.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration

	// Breaker guards the endpoint. Default: NewWebhookBreaker(0, 0, Logger).
	Breaker *circuitbreaker.CircuitBreaker

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// webhookPayload is the body sent to the endpoint.
type webhookPayload struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	SentAt  string `json:"sent_at"`
}

// WebhookSink forwards notifications to an HTTP endpoint.
type WebhookSink struct {
	url     string
	secret  []byte
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	now     func() time.Time
}

// NewWebhookSink creates a WebhookSink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	if len(cfg.Secret) > blake2b.Size {
		return nil, fmt.Errorf("webhook secret longer than %d bytes", blake2b.Size)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.Named("webhook")
	if cfg.Breaker == nil {
		cfg.Breaker = NewWebhookBreaker(0, 0, log)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebhookSink{
		url:     cfg.URL,
		secret:  []byte(cfg.Secret),
		client:  cfg.HTTPClient,
		breaker: cfg.Breaker,
		log:     log,
		now:     time.Now,
	}, nil
}

// Notify implements shared.NotificationSink. Network errors, 429 and 5xx
// responses and an open breaker are retryable; other 4xx responses are
// permanent.
func (s *WebhookSink) Notify(ctx context.Context, n shared.Notification) error {
	body, err := json.Marshal(webhookPayload{
		UserID:  n.UserID,
		Title:   n.Title,
		Message: n.Message,
		Type:    string(n.Type),
		SentAt:  s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal notification: %w", err))
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.post(ctx, body)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return retry.Retryable(err)
	}
	return err
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.secret) > 0 {
		sig, err := Sign(s.secret, body)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("webhook request: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("webhook returned %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
}

// Sign returns the header value for body under secret.
func Sign(secret, body []byte) (string, error) {
	mac, err := blake2b.New256(secret)
	if err != nil {
		return "", fmt.Errorf("init mac: %w", err)
	}
	mac.Write(body)
	return "blake2b-256=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// breakerCountsAsFailure keeps permanent rejections from opening the breaker.
func breakerCountsAsFailure(err error) bool {
	return err != nil && !retry.IsPermanent(err)
}

// NewWebhookBreaker builds the breaker used by the webhook sink.
func NewWebhookBreaker(threshold int, timeout time.Duration, log *logger.Logger) *circuitbreaker.CircuitBreaker {
	if log == nil {
		log = logger.Nop()
	}
	opts := []circuitbreaker.Option{
		circuitbreaker.WithIsFailure(breakerCountsAsFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("breaker state changed", logger.String("breaker", name),
				logger.String("from", from.String()), logger.String("to", to.String()))
		}),
	}
	if threshold > 0 {
		opts = append(opts, circuitbreaker.WithFailureThreshold(threshold))
	}
	if timeout > 0 {
		opts = append(opts, circuitbreaker.WithTimeout(timeout))
	}
	return circuitbreaker.WebhookBreaker(opts...)
}

// ══════════════════════════════════════════════════════════════════════════════
// FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// FanoutSink delivers to every sink in order and stops at the first error.
// A retried notification reaches the earlier sinks again, so delivery is at
// least once per sink.
type FanoutSink struct {
	sinks []shared.NotificationSink
}

// NewFanoutSink creates a FanoutSink. Nil sinks are skipped.
func NewFanoutSink(sinks ...shared.NotificationSink) *FanoutSink {
	f := &FanoutSink{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *FanoutSink) Len() int {
	return len(f.sinks)
}

// Notify implements shared.NotificationSink.
func (f *FanoutSink) Notify(ctx context.Context, n shared.Notification) error {
	for _, s := range f.sinks {
		if err := s.Notify(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

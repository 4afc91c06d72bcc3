package worker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"bookpoint/internal/config"
	"bookpoint/internal/events"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const signatureHeader = "X-Bookpoint-Signature"

// WebhookSink POSTs booking events to a configured URL. Retries are left to
// the outbox, so the client itself never retries.
type WebhookSink struct {
	client *resty.Client
	url    string
	secret []byte
	logger *zerolog.Logger
}

type webhookBody struct {
	Event   string                     `json:"event"`
	Booking events.BookingEventPayload `json:"booking"`
	SentAt  time.Time                  `json:"sent_at"`
}

func NewWebhookSink(cfg config.WebhookConfig, logger *zerolog.Logger) *WebhookSink {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookSink{
		client: client,
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		logger: logger,
	}
}

func (s *WebhookSink) Name() string { return TargetWebhook }

func (s *WebhookSink) Deliver(ctx context.Context, taskType string, p Payload) error {
	eventType, err := eventTypeFor(taskType, p.Status)
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookBody{Event: eventType, Booking: snapshot(p), SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("X-Bookpoint-Event", eventType).
		SetBody(body)
	if len(s.secret) > 0 {
		req.SetHeader(signatureHeader, "sha256="+Sign(s.secret, body))
	}

	resp, err := req.Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook call failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}

	s.logger.Debug().Str("event", eventType).Str("booking_code", p.Booking.BookingCode).Int("status_code", resp.StatusCode()).Msg("webhook delivered")
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

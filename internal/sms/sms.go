// Package sms delivers OTP codes to phones.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/config"
	log "github.com/sirupsen/logrus"
)

// Provider names accepted in configuration.
const (
	ProviderNoop        = "noop"
	ProviderSMS4Connect = "sms4connect"
)

// ErrNotConfigured indicates a provider is missing required settings.
var ErrNotConfigured = errors.New("sms: provider not configured")

// Message is one outbound text.
type Message struct {
	To   string
	Text string
}

// Sender delivers a text message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the configured Sender.
func New(cfg config.SMSConfig) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNoop:
		return Noop{}, nil
	case ProviderSMS4Connect:
		return NewSMS4Connect(cfg)
	default:
		return nil, fmt.Errorf("sms: unknown provider %q", cfg.Provider)
	}
}

// Noop logs messages instead of sending them.
type Noop struct{}

// Send logs the message.
func (Noop) Send(_ context.Context, msg Message) error {
	log.WithField("to", msg.To).Info("sms (noop): " + msg.Text)
	return nil
}

// SMS4Connect sends through the SMS4Connect HTTP API.
type SMS4Connect struct {
	baseURL string
	apiKey  string
	sender  string
	client  *http.Client
}

// NewSMS4Connect constructs an SMS4Connect sender.
func NewSMS4Connect(cfg config.SMSConfig) (*SMS4Connect, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" || strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Sender) == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMS4Connect{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		sender:  strings.TrimSpace(cfg.Sender),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type sms4ConnectRequest struct {
	Sender string `json:"sender"`
	To     string `json:"to"`
	Text   string `json:"text"`
}

// Send posts the message and fails on any non-2xx response.
func (s *SMS4Connect) Send(ctx context.Context, msg Message) error {
	payload, errMarshal := json.Marshal(sms4ConnectRequest{Sender: s.sender, To: msg.To, Text: msg.Text})
	if errMarshal != nil {
		return fmt.Errorf("sms: marshal: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/sms/send", bytes.NewReader(payload))
	if errReq != nil {
		return fmt.Errorf("sms: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, errDo := s.client.Do(req)
	if errDo != nil {
		return fmt.Errorf("sms: send: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("sms: close response body")
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

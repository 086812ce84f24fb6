package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/config"
)

// Email is an outbound transactional message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer returns a Resend client when an API key is configured and a
// logging mailer otherwise.
func NewMailer(cfg config.EmailConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.ResendAPIKey) == "" {
		logger.Warn("RESEND_API_KEY not set; notification emails will only be logged")
		return &LogMailer{logger: logger}
	}
	return NewResendMailer(cfg, nil)
}

// ResendMailer posts messages to the Resend email API.
type ResendMailer struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

// NewResendMailer builds a client. A nil client uses a 10s timeout default.
func NewResendMailer(cfg config.EmailConfig, client *http.Client) *ResendMailer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ResendMailer{
		url:    cfg.ResendURL,
		apiKey: cfg.ResendAPIKey,
		from:   cfg.From,
		client: client,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one email. Any non-2xx response is an error.
func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("resend api error: %s body=%s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// LogMailer records emails in the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer builds a logging mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("email not sent (no provider configured)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}

/*
Package mailer delivers generated statements to clients.

IMPLEMENTATIONS:
  Log:     Records the send in the log only (development, tests)
  Webhook: POSTs {email, statement_id} to an external print/email service,
           authenticated with the static API key header, optionally paced
           so a daily pass does not flood the receiver

The receiving service fetches the statement itself through the API-key
bypass routes (GET /api/statements/{id}/print), so nothing here renders
the document. Both satisfy billing.Dispatcher.
*/
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warp/statement-engine/billing"
)

// APIKeyHeader carries the static key on service-to-service calls.
const APIKeyHeader = "X-API-Key"

// =============================================================================
// LOG
// =============================================================================

// Log is a dispatcher that only logs.
type Log struct {
	Logger zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{Logger: log}
}

func (l *Log) SendStatementEmail(_ context.Context, clientEmail string, statementID billing.StatementID) error {
	l.Logger.Info().
		Str("email", clientEmail).
		Str("statement_id", string(statementID)).
		Msg("statement email queued")
	return nil
}

// =============================================================================
// WEBHOOK
// =============================================================================

// Webhook posts statement send requests to an external service.
type Webhook struct {
	URL    string
	APIKey string
	Client *http.Client
	Logger zerolog.Logger

	// Limiter paces sends when set; callers block until a slot frees up
	// or their context ends.
	Limiter *rate.Limiter
}

func NewWebhook(url, apiKey string, timeout time.Duration, log zerolog.Logger) *Webhook {
	return &Webhook{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
		Logger: log,
	}
}

// WithRateLimit allows at most perSecond sends per second, one at a time.
func (w *Webhook) WithRateLimit(perSecond float64) *Webhook {
	w.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return w
}

type sendRequest struct {
	Email       string `json:"email"`
	StatementID string `json:"statement_id"`
}

func (w *Webhook) SendStatementEmail(ctx context.Context, clientEmail string, statementID billing.StatementID) error {
	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send statement %s: %w", statementID, err)
		}
	}

	body, err := json.Marshal(sendRequest{Email: clientEmail, StatementID: string(statementID)})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.APIKey != "" {
		req.Header.Set(APIKeyHeader, w.APIKey)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send statement %s: %w", statementID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send statement %s: webhook returned %d", statementID, resp.StatusCode)
	}

	w.Logger.Debug().
		Str("statement_id", string(statementID)).
		Int("status", resp.StatusCode).
		Msg("statement email dispatched")
	return nil
}

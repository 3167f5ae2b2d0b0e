// Package gateway is the adapter over the external settlement partner:
// cash-in and cash-out intents, intent status reads, card balance reads
// and card termination.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sendo/ledger/internal/logger"
)

const (
	// CodeTransport: the request never got a definitive answer (dial,
	// timeout). The intent may or may not exist on the partner side.
	CodeTransport = "transport"
	// CodeServer: partner answered 5xx, equally non definitive.
	CodeServer = "server-error"
	// CodeRequest: partner answered 4xx, the call itself was bad.
	CodeRequest = "request-rejected"
	CodeUnknown = "unknown"
)

// Error is the typed failure of a gateway call. Callers must treat every
// code as non definitive: a failed call never fails the transaction.
type Error struct {
	Code       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, http_status: %d, error: %v", e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code string, statusCode int, err error) *Error {
	return &Error{Code: code, StatusCode: statusCode, Err: err}
}

// StatusUpdate is one entry of an intent's status history.
type StatusUpdate struct {
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// IntentStatus is the partner's view of a settlement intent.
type IntentStatus struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	StatusUpdates []StatusUpdate `json:"statusUpdates"`
}

// Client talks to the settlement partner. Construct once at process
// start and pass by reference; immutable afterwards.
type Client struct {
	baseURL string
	apiKey  string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, apiKey string, l logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
		logger:  l,
	}
}

// CreateCashIn asks the partner to pull funds from the payload source
// toward the platform merchant account. Returns the intent id used as
// the reconciliation key.
func (c *Client) CreateCashIn(ctx context.Context, p Payload) (string, error) {
	return c.createIntent(ctx, "/v1/cash-ins", p)
}

// CreateCashOut asks the partner to push funds from the merchant account
// to the payload destination.
func (c *Client) CreateCashOut(ctx context.Context, p Payload) (string, error) {
	return c.createIntent(ctx, "/v1/cash-outs", p)
}

func (c *Client) createIntent(ctx context.Context, path string, p Payload) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, http.MethodPost, path, p.wire(), &created)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", newError(CodeUnknown, 0, fmt.Errorf("partner returned no intent id"))
	}

	c.logger.Debug("Settlement intent created", "path", path, "intent_id", created.ID, "amount", p.Amount())
	return created.ID, nil
}

// GetIntentStatus reads the current state of an intent. Safe to call any
// number of times.
func (c *Client) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	var status IntentStatus

	err := c.do(ctx, http.MethodGet, "/v1/transaction-intents/"+intentID, nil, &status)
	if err != nil {
		return status, err
	}

	c.logger.Debug("Intent status", "intent_id", intentID, "status", status.Status)
	return status, nil
}

// GetCardBalance reads the card's current balance from the partner. Card
// balances are external state and never cached locally.
func (c *Client) GetCardBalance(ctx context.Context, paymentMethodID string) (decimal.Decimal, error) {
	var method struct {
		Balance decimal.Decimal `json:"balance"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/payment-methods/"+paymentMethodID, nil, &method)
	if err != nil {
		return decimal.Zero, err
	}

	return method.Balance, nil
}

// TerminateCard permanently closes the card on the partner side.
func (c *Client) TerminateCard(ctx context.Context, cardExternalID string) error {
	return c.do(ctx, http.MethodPost, "/v1/cards/"+cardExternalID+"/terminate", nil, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var reqBody *bytes.Buffer = &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return newError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return newError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return newError(CodeTransport, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode partner response", "path", path, "error", err)
			return newError(CodeUnknown, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil

	case resp.StatusCode >= 500:
		c.logger.Warn("Partner server error", "path", path, "status_code", resp.StatusCode)
		return newError(CodeServer, resp.StatusCode, fmt.Errorf("partner returned %d for %s", resp.StatusCode, path))

	default:
		c.logger.Warn("Partner rejected request", "path", path, "status_code", resp.StatusCode)
		return newError(CodeRequest, resp.StatusCode, fmt.Errorf("partner returned %d for %s", resp.StatusCode, path))
	}
}

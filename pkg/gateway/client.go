package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultBaseURL is the payment processor's API root.
// Overridable in tests and staging via Config.BaseURL.
const defaultBaseURL = "https://api.razorpay.com"

// Intent is a payment intent created at the gateway before checkout.
// Amount is in minor currency units (paise/cents).
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Payment is the gateway's authoritative record of a captured (or failed)
// payment. Amount is in minor currency units.
type Payment struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	CreatedAt int64  `json:"created_at"`
}

// StatusCaptured is the payment status reported once funds are captured.
const StatusCaptured = "captured"

// Config holds the gateway client configuration. Credentials are validated
// at process startup (config.Validate), not lazily here.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string        // defaults to defaultBaseURL
	Timeout   time.Duration // per-request timeout, defaults to 5s
}

// Client talks to the payment processor's REST API over basic auth.
// It is an explicitly constructed value passed into the services that need
// it; there is no package-level singleton.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

// NewClient creates a new gateway client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: timeout},
	}
}

// KeyID returns the public API key, which clients embed in checkout pages.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateIntent creates a payment intent at the gateway. amountMinor is in
// minor currency units; conversion from major units happens at the caller.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*Intent, error) {
	payload := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/orders", payload, &intent); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &intent, nil
}

// FetchPayment retrieves the authoritative status and captured amount for a
// payment from the gateway.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}
	return &payment, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

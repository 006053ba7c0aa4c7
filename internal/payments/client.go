// Package payments is an HTTP client for the payment processor's link API.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LinkRequest asks for a hosted payment page for AmountCents.
type LinkRequest struct {
	Reference     string `json:"reference"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	// IdempotencyKey is sent as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

// Link is a created payment link.
type Link struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payments: http %d", e.StatusCode)
	}
	return fmt.Sprintf("payments: http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the payment processor.
type Client struct {
	baseURL    string
	apiKey     string
	currency   string
	httpClient *http.Client
}

// NewClient constructs a client with baseURL, API key and default currency.
func NewClient(baseURL, apiKey, currency string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreatePaymentLink creates (or, for a repeated idempotency key, returns) a link.
func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: amount must be positive, got %d", req.AmountCents)
	}
	if req.Currency == "" {
		req.Currency = c.currency
	}

	var link Link
	if err := c.doPost(ctx, c.baseURL+"/v1/payment_links", req.IdempotencyKey, req, &link); err != nil {
		return nil, err
	}
	if link.URL == "" {
		return nil, fmt.Errorf("payments: response has no url")
	}
	return &link, nil
}

// HealthCheck checks if the processor API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, nil)
}

func (c *Client) doPost(ctx context.Context, endpoint, idempotencyKey string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
}

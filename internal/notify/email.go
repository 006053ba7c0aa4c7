package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// EmailRelay posts templated messages to an HTTP email relay, throttled to
// the relay's sending quota.
type EmailRelay struct {
	url        string
	apiKey     string
	from       string
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewEmailRelay(url, apiKey, from string, perSecond float64) *EmailRelay {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &EmailRelay{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		from:       from,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmailRelay) SendEmail(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("email: recipient is required")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := struct {
		From string `json:"from,omitempty"`
		Message
	}{From: e.from, Message: msg}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("x-api-key", e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email relay: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email relay: http %d", resp.StatusCode)
	}
	return nil
}

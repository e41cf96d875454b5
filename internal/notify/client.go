// Package notify calls the external notification collaborator. Delivery
// semantics (email, push, retry) are the collaborator's concern; this client
// just hands over signature-request events.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trainhub/internal/training"
)

// Client calls the notification microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, sends succeed without any network
// call, which keeps dev environments quiet.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks the collaborator's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify service unhealthy: %s", resp.Status)
	}
	return nil
}

// SendSignatureRequest asks the collaborator to notify every participant of
// a session period that their signature is requested.
func (c *Client) SendSignatureRequest(ctx context.Context, evt training.SignatureRequestedEvent) error {
	if c.Skip {
		return nil
	}
	if len(evt.Participants) == 0 {
		return nil
	}

	body, _ := json.Marshal(evt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notifications/signature-request", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify request rejected: %s: %s", resp.Status, msg)
	}
	return nil
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"driverhub/internal/metrics"
)

// Client talks to the dispatch backend's REST surface. Every method does a
// single attempt; retry policy belongs to the caller (and for the engine's
// best-effort writes there is none).
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a Client with a 5 second request timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// UpdateStatus mirrors the driver's availability to the backend.
// status must be a backend value: available, busy or unavailable.
func (c *Client) UpdateStatus(ctx context.Context, riderID int64, status string) error {
	body := map[string]any{"rider_id": riderID, "status": status}
	err := c.post(ctx, "/delivery/status", body)
	c.count("status", err)
	if err != nil {
		return fmt.Errorf("backend: update status: %w", err)
	}
	return nil
}

// PushLocation reports the driver's current position.
func (c *Client) PushLocation(ctx context.Context, riderID int64, lat, lng float64) error {
	body := map[string]any{"rider_id": riderID, "latitude": lat, "longitude": lng}
	err := c.post(ctx, "/delivery/location", body)
	c.count("location", err)
	if err != nil {
		return fmt.Errorf("backend: push location: %w", err)
	}
	return nil
}

// FetchRequests returns the rider's outstanding dispatch requests.
func (c *Client) FetchRequests(ctx context.Context, riderID int64) ([]RawRequest, error) {
	u := fmt.Sprintf("%s/delivery/requests?rider_id=%d", c.BaseURL, riderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.HTTP.Do(req)
	c.count("requests", err)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch requests: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend: fetch requests: status %d", resp.StatusCode)
	}
	var out struct {
		Requests []RawRequest `json:"requests"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("backend: fetch requests: decode: %w", err)
	}
	return out.Requests, nil
}

// Respond accepts or rejects a dispatch request. action is "accept" or
// "reject".
func (c *Client) Respond(ctx context.Context, requestID string, action string, riderID int64) error {
	u := fmt.Sprintf("%s/delivery/requests/%s/respond?action=%s&rider_id=%d",
		c.BaseURL, url.PathEscape(requestID), url.QueryEscape(action), riderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTP.Do(req)
	c.count("respond", err)
	if err != nil {
		return fmt.Errorf("backend: respond %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend: respond %s: status %d", action, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) count(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BackendRequests.WithLabelValues(endpoint, result).Inc()
}

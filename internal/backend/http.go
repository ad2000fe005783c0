package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bustrack/internal/config"
)

// Client calls the trip records API over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Records client for the configured backend.
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

var _ Records = (*Client)(nil)

// Create opens a new trip record.
func (c *Client) Create(ctx context.Context, record *TripRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling trip record: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/trips", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError("creating trip record", resp)
	}
	return nil
}

// Close marks a trip record inactive.
func (c *Client) Close(ctx context.Context, tripID string) error {
	payload, err := json.Marshal(map[string]any{
		"active":   false,
		"ended_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling trip close: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/trips/"+tripID, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError("closing trip record", resp)
	}
	return nil
}

// Fetch returns a trip record, or ErrNotFound.
func (c *Client) Fetch(ctx context.Context, tripID string) (*TripRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/trips/"+tripID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError("fetching trip record", resp)
	}

	var record TripRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding trip record: %w", err)
	}
	return &record, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling trip records api: %w", err)
	}
	return resp, nil
}

func responseError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("%s: backend returned %d: %s", op, resp.StatusCode, snippet)
}

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bustrack/internal/config"
	"bustrack/internal/domain"
	"bustrack/internal/observability"
)

// bodySnippetLimit caps how much of an error response body is kept for
// diagnostics.
const bodySnippetLimit = 200

// Sender delivers GPS samples to the remote ingestion endpoint. It holds
// no trip state and persists nothing; retry policy belongs to callers.
type Sender struct {
	baseURL  string
	client   *http.Client
	validate *validator.Validate
}

// NewSender creates a Sender for the configured endpoint.
func NewSender(cfg config.TelemetryConfig) *Sender {
	return &Sender{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}
}

// Send posts one sample with the token as bearer credential. Any 2xx
// response counts as delivered. Out-of-range samples fail with a
// ValidationError before any network traffic.
func (s *Sender) Send(ctx context.Context, token string, sample *domain.GpsSample) error {
	if err := s.validate.Struct(sample); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/gps-update", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building gps-update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()
	observability.ObserveSendLatency(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLimit))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return nil
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"splitrelay/pkg/config"
)

const (
	processPath    = "/process_message"
	defaultTimeout = 120 * time.Second
)

// ErrNotConfigured is returned when no backend base URL was provided.
//
// The missing URL is surfaced on first use rather than at startup.
var ErrNotConfigured = errors.New("SPLIT_BOT_URL is not configured")

// Request is the payload forwarded to the split-bot backend for one event.
//
// ImageURL must be omitted from the wire payload entirely when unset, never
// emitted as null.
type Request struct {
	Message  string `json:"message"`
	GroupID  string `json:"group_id"`
	Sender   string `json:"sender"`
	ImageURL string `json:"image_url,omitempty"`
}

// Response is the backend's answer. A null error field decodes the same as
// an absent one.
type Response struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// StatusError reports a non-200 backend response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend request failed with status code %d", e.Code)
}

// UpstreamError reports a 200 response whose error field was non-empty.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("error in backend response: %s", e.Message)
}

// Client performs the single outbound call that fulfills a Request.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient builds a backend client. The base URL may be empty here; Process
// fails with ErrNotConfigured in that case.
func NewClient(cfg config.BackendConfig, log *slog.Logger) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		// The backend may itself run slow AI inference.
		timeout = defaultTimeout
	}

	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSpace(cfg.BaseURL),
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "backend.client"),
	}
}

// Process posts one request to the backend and returns the response text.
//
// Validation order: transport failure, non-200 status, non-empty error field.
// There are no retries; any failure is propagated to the caller.
func (c *Client) Process(ctx context.Context, request Request) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	url := strings.TrimSuffix(c.baseURL, "/") + processPath
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode backend request: %w", err)
	}

	startedAt := time.Now()
	c.log.Info("Backend request started", "url", url, "body", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Error("Backend request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read backend response: %w", err)
	}

	c.log.Info("Backend response received",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"status_code", resp.StatusCode,
		"body", string(raw),
	)

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	var response Response
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("decode backend response: %w", err)
	}

	if response.Error != "" {
		return "", &UpstreamError{Message: response.Error}
	}

	return response.Response, nil
}

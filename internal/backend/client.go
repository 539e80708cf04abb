// Package backend posts relay payloads to the PSI-09 HTTP backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"psi09relay/internal/domain"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultTimeout bounds a single relay call.
	DefaultTimeout = 20 * time.Second

	maxErrorBody    = 512
	maxResponseBody = 1 << 20
)

// Config configures the backend client.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client implements domain.Backend. It is created once per process and the
// underlying *http.Client is built on first use and shared by all calls.
type Client struct {
	url      string
	timeout  time.Duration
	logger   *slog.Logger
	validate *validator.Validate

	once sync.Once
	http *http.Client
}

// New creates a Client. The HTTP connection pool is not created until the
// first Relay or Ping.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:      cfg.URL,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With("component", "backend"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		c.http = newPooledClient(c.timeout)
		c.logger.Debug("backend http client created", "timeout", c.timeout)
	})
	return c.http
}

// Relay posts payload as JSON and decodes the reply. Any status other than
// 200 is returned as *StatusError; network failures and timeouts as
// *TransportError. There is no retry.
func (c *Client) Relay(ctx context.Context, payload domain.RelayPayload) (*domain.RelayResponse, error) {
	if err := c.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	var out domain.RelayResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, &TransportError{Op: "read", Err: ctx.Err()}
		}
		if err == io.EOF {
			return &out, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Ping checks that the backend host answers HTTP at all. Any response,
// including 405 for a GET on a POST-only route, counts as reachable.
func (c *Client) Ping(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, &TransportError{Op: "ping", Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return resp.StatusCode, nil
}

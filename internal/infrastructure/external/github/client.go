// Package github fetches lesson Markdown from the course content repository,
// either from a local mirror or from the raw-content host.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// maxBodySize caps one lesson download.
const maxBodySize = 4 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures an HTTP content client.
type ClientConfig struct {
	// BaseURL is the directory that holds <path>/README.md.
	BaseURL string

	// Tier is reported to the loader.
	Tier content.Tier

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// RateLimiter is optional.
	RateLimiter *RateLimiter

	// Logger for structured logging.
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client downloads <BaseURL>/<path>/README.md. It implements content.Source
// without retries; see RemoteSource for the guarded variant.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("github: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "learning-hub/1.0"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With("component", "content_client", "tier", string(cfg.Tier)),
	}, nil
}

// Tier implements content.Source.
func (c *Client) Tier() content.Tier { return c.config.Tier }

// URL returns the address of path's README.
func (c *Client) URL(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", shared.WrapError("content", "Resolve", shared.ErrInvalidInput, "empty content path", nil)
	}
	return url.JoinPath(c.config.BaseURL, path, "README.md")
}

// Fetch implements content.Source.
func (c *Client) Fetch(ctx context.Context, path string) (string, error) {
	target, err := c.URL(path)
	if err != nil {
		return "", err
	}

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.Allow(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.1")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("content request failed", "url", target, "error", err)
		return "", fmt.Errorf("github: GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("content response",
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if c.config.RateLimiter != nil {
			c.config.RateLimiter.RecordRateLimitHit(retryAfter)
		}
		c.logger.Warn("content origin rate limited", "retry_after", retryAfter)
		return "", &StatusError{URL: target, StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("github: read %s: %w", target, err)
	}
	return string(body), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// StatusError is a non-2xx answer from a content host.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("github: GET %s: status %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match shared.ErrContentStatus.
func (e *StatusError) Unwrap() error { return shared.ErrContentStatus }

// IsRetryable reports whether another attempt against the same host may
// succeed: 429, 5xx and transport errors are, everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

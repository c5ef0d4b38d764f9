// Package audible looks up audiobook prices in the Audible catalog.
package audible

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/WillNye/tbr-deal-finder/internal/ratelimit"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

const (
	// 1 request per second per marketplace, burst of 3
	defaultRPS   = 1.0
	defaultBurst = 3

	defaultTimeout = 30 * time.Second

	numResults = 50
)

// Client is a rate-limited Audible catalog client for one marketplace.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	locale  seller.Locale
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL points the client at a different host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithLimiter replaces the default rate limiter.
func WithLimiter(l *ratelimit.KeyedRateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a client for the locale's marketplace.
func New(locale seller.Locale, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
		locale:  locale,
		baseURL: "https://" + locale.AudibleHost(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seller identifies the client's seller.
func (c *Client) Seller() seller.Seller {
	return seller.Audible
}

// doRequest executes a GET with rate limiting.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, string(c.locale)); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tbr-deals/1.0")

	c.logger.Debug("audible request", "locale", c.locale, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/logger"
)

// Client is an HTTP client wrapper with retry, rate limiting and logging
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	retryConfig RetryConfig
	limiter     *rate.Limiter
	headers     map[string]string
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// New creates a new HTTP client from config
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Sources.Timeout,
		},
		logger: log,
		retryConfig: RetryConfig{
			MaxRetries:   cfg.Sources.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Enabled:      cfg.Sources.MaxRetries > 0,
		},
		headers: make(map[string]string),
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 30 * time.Second
	}
	if cfg.Sources.RatePerSecond > 0 {
		burst := cfg.Sources.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Sources.RatePerSecond), burst)
	}
	if cfg.Sources.UserAgent != "" {
		c.headers["User-Agent"] = cfg.Sources.UserAgent
	}
	if cfg.Sources.AppToken != "" {
		c.headers["X-App-Token"] = cfg.Sources.AppToken
	}
	return c
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	c.retryConfig.Enabled = true
	return c
}

// DisableRetry disables automatic retry
func (c *Client) DisableRetry() *Client {
	c.retryConfig.Enabled = false
	return c
}

// WithRateLimit replaces the request rate limiter (nil disables limiting)
func (c *Client) WithRateLimit(limiter *rate.Limiter) *Client {
	c.limiter = limiter
	return c
}

// Get performs a GET request; the caller closes the body
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	// Check rate limit
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	startTime := time.Now()
	c.logger.WithField("url", url).Debug("HTTP request started")

	resp, err := c.doWithRetry(ctx, url)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":      url,
			"duration": duration.String(),
		}).WithError(err).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration.String(),
	}).Debug("HTTP request completed")

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doWithRetry executes the request with exponential backoff retry
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	attempts := 1
	if c.retryConfig.Enabled {
		attempts += c.retryConfig.MaxRetries
	}
	delay := c.retryConfig.InitialDelay

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := c.newRequest(ctx, url)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case IsRetryableError(resp.StatusCode):
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		default:
			return resp, nil
		}

		// Last attempt - return error
		if attempt == attempts-1 {
			break
		}

		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"url":     url,
		}).Warn("Retrying HTTP request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.retryConfig.MaxDelay {
			delay = c.retryConfig.MaxDelay
		}
	}

	return nil, fmt.Errorf("GET %s: %w", url, lastErr)
}

// IsRetryableError checks if a status should be retried
func IsRetryableError(statusCode int) bool {
	// Retry on 5xx server errors and 429 Too Many Requests
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

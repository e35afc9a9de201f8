// Package client provides the catalog API HTTP client with retry,
// rate-limit handling, and optional page caching.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/cache"
	"github.com/arvelid/gamelake/pkg/logging"
	"github.com/arvelid/gamelake/pkg/ratelimit"
)

// Prometheus metrics for catalog API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the catalog API base URL (e.g. "https://api.rawg.io/api").
	BaseURL string

	// APIKey is appended to every request as the "key" query parameter.
	APIKey string

	// UserAgent identifies the pipeline to the API.
	UserAgent string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Retry configures the backoff policy.
	Retry RetryConfig

	// RequestsPerSecond paces outbound requests. 0 disables pacing.
	RequestsPerSecond float64

	// Redis enables the page cache when non-nil.
	Redis *redis.Client

	// CacheTTL is how long cached pages stay valid.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:           baseURL,
		APIKey:            apiKey,
		UserAgent:         "gamelake/1.0",
		Timeout:           10 * time.Second,
		Retry:             DefaultRetryConfig(),
		RequestsPerSecond: 1.5,
		CacheTTL:          15 * time.Minute,
	}
}

// Client is the catalog API client.
type Client struct {
	httpClient *http.Client
	config     Config
	pacer      *ratelimit.Pacer
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	var pageCache *cache.Manager
	if cfg.Redis != nil {
		pageCache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
		pacer:      ratelimit.NewPacer(cfg.RequestsPerSecond),
		cache:      pageCache,
		logger:     logging.NewLogger("catalog-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetPage fetches one page of a paginated catalog endpoint.
//
// The page body is served from the cache when available; otherwise the
// request is executed with pacing and retry, and the body cached on
// success. A failed call never returns a nil page with a nil error.
func (c *Client) GetPage(ctx context.Context, endpoint string, params url.Values) (*Page, error) {
	body, err := c.getBody(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", endpoint, err)
	}
	return &page, nil
}

// Get fetches the raw response body of an endpoint, with the same pacing,
// caching and retry behavior as GetPage. Useful for non-paginated
// resources like a single game detail.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.getBody(ctx, endpoint, params)
}

// getBody returns the raw response body for an endpoint, using the cache
// when possible.
func (c *Client) getBody(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	key := cache.Key{Endpoint: endpoint, Params: params}

	if c.cache != nil {
		body, err := c.cache.Get(ctx, key)
		if err == nil {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Page served from cache")
			return body, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	var body []byte
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var fetchErr error
		body, fetchErr = c.fetch(ctx, endpoint, params)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache page")
		}
	}

	return body, nil
}

// fetch executes a single HTTP attempt.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	reqURL, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Endpoint:   endpoint,
			Message:    resp.Status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Dur("retry_after", apiErr.RetryAfter).
			Msg("Catalog request error")

		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	return body, nil
}

// buildURL joins the base URL, endpoint and query parameters, injecting the
// API key.
func (c *Client) buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.Trim(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.config.APIKey != "" {
		q.Set("key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// parseRetryAfter reads a Retry-After header value: either delay seconds or
// an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient builds a client against a test server with fast retries.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig(baseURL, "test-key")
	cfg.Retry = fastRetryConfig()
	cfg.RequestsPerSecond = 0 // no pacing in tests

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("https://api.example.com/api", "key"),
			expectError: false,
		},
		{
			name: "missing base URL",
			config: Config{
				UserAgent: "test/1.0",
				Retry:     DefaultRetryConfig(),
			},
			expectError: true,
		},
		{
			name: "missing user agent",
			config: Config{
				BaseURL: "https://api.example.com/api",
				Retry:   DefaultRetryConfig(),
			},
			expectError: true,
		},
		{
			name: "zero max attempts",
			config: Config{
				BaseURL:   "https://api.example.com/api",
				UserAgent: "test/1.0",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestGetPage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("API key not injected, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "gamelake/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		fmt.Fprint(w, `{"count":2,"next":"http://x/api/games?page=2","previous":null,"results":[{"id":1},{"id":2}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	page, err := c.GetPage(context.Background(), "games", url.Values{"page": {"1"}})
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}

	if page.Count != 2 {
		t.Errorf("Count = %d, want 2", page.Count)
	}
	if !page.HasNext() {
		t.Error("Expected HasNext() = true")
	}
	if len(page.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(page.Results))
	}
}

func TestGetPage_NullNext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":1,"next":null,"previous":null,"results":[{"id":1}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	page, err := c.GetPage(context.Background(), "games", nil)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.HasNext() {
		t.Error("Expected HasNext() = false for null next")
	}
}

func TestGetPage_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	page, err := c.GetPage(context.Background(), "games", nil)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if page == nil {
		t.Fatal("Page is nil")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestGetPage_RetryExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	page, err := c.GetPage(context.Background(), "games", nil)
	if page != nil {
		t.Error("Page should be nil on failure")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestGetPage_ClientErrorImmediate(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.GetPage(context.Background(), "games", nil)
	if err == nil {
		t.Fatal("Expected error for 401")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Class != ErrorClassClient {
		t.Errorf("Class = %q, want client", apiErr.Class)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 request for 4xx, got %d", got)
	}
}

func TestGetPage_RateLimitRetryAfter(t *testing.T) {
	var calls int32
	var firstAt, secondAt time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			firstAt = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			secondAt = time.Now()
			fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.GetPage(context.Background(), "games", nil)
	if err != nil {
		t.Fatalf("Expected success after rate limit, got %v", err)
	}

	// Fast backoff config would retry after ~10ms; Retry-After demands 1s.
	if delay := secondAt.Sub(firstAt); delay < time.Second {
		t.Errorf("Retry delay %v shorter than Retry-After of 1s", delay)
	}
}

func TestGetPage_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": oops`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	if _, err := c.GetPage(context.Background(), "games", nil); err == nil {
		t.Error("Expected decode error for invalid JSON")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(time.Duration) bool
	}{
		{"empty", "", func(d time.Duration) bool { return d == 0 }},
		{"seconds", "5", func(d time.Duration) bool { return d == 5*time.Second }},
		{"negative", "-3", func(d time.Duration) bool { return d == 0 }},
		{"garbage", "soon", func(d time.Duration) bool { return d == 0 }},
		{
			"http date",
			time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat),
			func(d time.Duration) bool { return d > 5*time.Second && d <= 10*time.Second },
		},
		{
			"past http date",
			time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat),
			func(d time.Duration) bool { return d == 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); !tt.check(got) {
				t.Errorf("parseRetryAfter(%q) = %v", tt.value, got)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/api")

	got, err := c.buildURL("games", url.Values{"page": {"2"}, "page_size": {"20"}})
	if err != nil {
		t.Fatalf("buildURL failed: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("Result not a valid URL: %v", err)
	}
	if u.Path != "/api/games" {
		t.Errorf("Path = %q, want /api/games", u.Path)
	}
	q := u.Query()
	if q.Get("key") != "test-key" {
		t.Errorf("key = %q, want test-key", q.Get("key"))
	}
	if q.Get("page") != "2" || q.Get("page_size") != "20" {
		t.Errorf("Query params not preserved: %v", q)
	}
}

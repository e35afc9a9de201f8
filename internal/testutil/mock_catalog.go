// Package testutil provides testing utilities for the catalog pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior of one mock catalog response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is a configurable mock catalog API server for testing.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastQuery         map[string][]string
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// GetRequestCount returns the number of requests the server has seen.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetResponseSequence serves one response per request in order, repeating
// the last one once the script is exhausted. Useful for retry tests
// (e.g. two 503s then a 200).
func (m *MockCatalog) SetResponseSequence(path string, responses []MockResponse) {
	var mu sync.Mutex
	index := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[index]
		if index < len(responses)-1 {
			index++
		}
		mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPaginated serves a paginated resource from fixture records, respecting
// the page and page_size query parameters and linking pages with next URLs
// the way the catalog API does.
func (m *MockCatalog) SetPaginated(path string, records []json.RawMessage) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		if pageSize < 1 {
			pageSize = 20
		}

		start := (page - 1) * pageSize
		end := start + pageSize
		if start > len(records) {
			start = len(records)
		}
		if end > len(records) {
			end = len(records)
		}

		body := map[string]interface{}{
			"count":    len(records),
			"next":     nil,
			"previous": nil,
			"results":  records[start:end],
		}
		if end < len(records) {
			body["next"] = fmt.Sprintf("%s%s?page=%d&page_size=%d", m.server.URL, path, page+1, pageSize)
		}
		if page > 1 {
			body["previous"] = fmt.Sprintf("%s%s?page=%d&page_size=%d", m.server.URL, path, page-1, pageSize)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
}

// GameFixture builds a minimal game record for fixtures.
func GameFixture(id int, name, released, genre string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %d, "slug": "game-%d", "name": "%s",
		"released": "%s", "tba": false,
		"rating": 4.2, "rating_top": 5, "metacritic": 88,
		"genres": [{"id": 1, "name": "%s"}],
		"platforms": [{"platform": {"id": 4, "name": "PC"}}]
	}`, id, id, name, released, genre))
}

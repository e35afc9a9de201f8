package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arvelid/gamelake/internal/testutil"
	"github.com/arvelid/gamelake/pkg/client"
	"github.com/arvelid/gamelake/pkg/ingest"
	"github.com/arvelid/gamelake/pkg/store"
	"github.com/arvelid/gamelake/pkg/transform"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newCatalogClient(t *testing.T, mock *testutil.MockCatalog, redisClient *redis.Client) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL(), "test-key")
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Minute
	cfg.RequestsPerSecond = 0 // no pacing in tests

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create catalog client: %v", err)
	}
	return c
}

// TestPipelineWithPageCache runs ingest and transform against a mock
// catalog with a real Redis page cache, then verifies a repeat ingest is
// served from cache.
func TestPipelineWithPageCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	records := []json.RawMessage{
		testutil.GameFixture(1, "First Game", "2020-03-01", "Action"),
		testutil.GameFixture(2, "Second Game", "2020-07-15", "Action"),
		testutil.GameFixture(3, "Third Game", "2021-01-10", "RPG"),
	}
	mock.SetPaginated("/games", records)

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	catalog := newCatalogClient(t, mock, redisClient)
	ing := ingest.New(catalog, st, ingest.Config{GamePageSize: 2})

	ctx := context.Background()
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)

	result, err := ing.IncrementalLoadGames(ctx, from, to)
	if err != nil {
		t.Fatalf("IncrementalLoadGames failed: %v", err)
	}
	if result.Records != 3 || result.Pages != 2 {
		t.Errorf("Result = %+v, want 3 records over 2 pages", result)
	}

	requestsAfterFirst := mock.GetRequestCount()
	if requestsAfterFirst != 2 {
		t.Errorf("Mock served %d requests, want 2", requestsAfterFirst)
	}

	// Second run: identical pages come from the Redis cache.
	if _, err := ing.IncrementalLoadGames(ctx, from, to); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != requestsAfterFirst {
		t.Errorf("Second run hit the API %d more times, want 0", got-requestsAfterFirst)
	}

	// Partition stayed idempotent.
	count, err := st.CountPartition(ctx, result.ExtractionDate)
	if err != nil {
		t.Fatalf("CountPartition failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Partition has %d rows, want 3", count)
	}

	// Transform the ingested partition and check the aggregates.
	if _, err := transform.New(st).Run(ctx); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	analytics, err := st.ReadAnalytics(ctx)
	if err != nil {
		t.Fatalf("ReadAnalytics failed: %v", err)
	}
	if len(analytics) != 2 {
		t.Fatalf("games_analytics has %d rows, want 2", len(analytics))
	}
	if analytics[0].ReleasedYear != 2021 || analytics[0].Genre != "RPG" {
		t.Errorf("First aggregate row = %+v, want 2021/RPG", analytics[0])
	}
	if analytics[1].ReleasedYear != 2020 || analytics[1].GameCount != 2 {
		t.Errorf("Second aggregate row = %+v, want 2020 with 2 games", analytics[1])
	}
}

// TestRetryAgainstMockCatalog verifies transient server errors are retried
// end to end through the real HTTP stack.
func TestRetryAgainstMockCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	page := `{"count": 1, "next": null, "results": [{"id": 1, "slug": "g", "name": "G", "rating": 4.0}]}`
	mock.SetResponseSequence("/genres", []testutil.MockResponse{
		{StatusCode: 503, Body: `{"error": "unavailable"}`},
		{StatusCode: 503, Body: `{"error": "unavailable"}`},
		{StatusCode: 200, Body: page, Headers: map[string]string{"Content-Type": "application/json"}},
	})

	cfg := client.DefaultConfig(mock.URL(), "test-key")
	cfg.RequestsPerSecond = 0
	cfg.Retry.InitialBackoff = 10 * time.Millisecond
	cfg.Retry.MaxBackoff = 50 * time.Millisecond

	catalog, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create catalog client: %v", err)
	}

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	ing := ingest.New(catalog, st, ingest.Config{})
	n, err := ing.FullLoadGenres(context.Background())
	if err != nil {
		t.Fatalf("FullLoadGenres failed despite retries: %v", err)
	}
	if n != 1 {
		t.Errorf("Loaded %d genres, want 1", n)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("Mock served %d requests, want 3 (two failures + success)", got)
	}
}

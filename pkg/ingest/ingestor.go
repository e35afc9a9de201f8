// Package ingest pulls catalog resources into the bronze layer.
//
// Genres are a full load: every run replaces the whole table. Games are an
// incremental load keyed by extraction_date: the current day's partition is
// overwritten (delete-before-write inside one transaction), so re-runs on
// the same day converge to the same partition content instead of
// accumulating duplicates.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/client"
	"github.com/arvelid/gamelake/pkg/logging"
	"github.com/arvelid/gamelake/pkg/pagination"
	"github.com/arvelid/gamelake/pkg/store"
)

// Prometheus metrics for ingestion runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pages_fetched_total",
		Help: "Total pages fetched by resource",
	}, []string{"resource"})

	recordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_written_total",
		Help: "Total raw records written by resource",
	}, []string{"resource"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Total ingestion runs by resource and outcome",
	}, []string{"resource", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_run_duration_seconds",
		Help:    "Ingestion run duration in seconds by resource",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	}, []string{"resource"})
)

const dateLayout = "2006-01-02"

// CatalogClient fetches one page of a catalog endpoint. *client.Client
// implements it; tests inject fakes.
type CatalogClient interface {
	GetPage(ctx context.Context, endpoint string, params url.Values) (*client.Page, error)
}

// Config holds ingestor settings.
type Config struct {
	// GenrePageSize is the page size for the genres full load.
	GenrePageSize int

	// GamePageSize is the page size for the games incremental load.
	GamePageSize int

	// MaxPages bounds a paginated pull for testing. 0 means unbounded.
	MaxPages int

	// Now supplies the clock; defaults to time.Now. Tests pin it.
	Now func() time.Time
}

// RunResult summarizes one games ingestion run.
type RunResult struct {
	RunID          string
	ExtractionDate string
	Pages          int
	Records        int
}

// Ingestor drives pagination against the catalog client and writes raw
// records to the bronze store.
type Ingestor struct {
	client CatalogClient
	store  *store.Store
	config Config
	logger zerolog.Logger
}

// New creates an ingestor. The client is injected so tests can substitute
// a mock.
func New(catalogClient CatalogClient, st *store.Store, cfg Config) *Ingestor {
	if cfg.GenrePageSize <= 0 {
		cfg.GenrePageSize = 40
	}
	if cfg.GamePageSize <= 0 {
		cfg.GamePageSize = 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{
		client: catalogClient,
		store:  st,
		config: cfg,
		logger: logging.NewLogger("ingestor"),
	}
}

// FullLoadGenres pulls every genres page and overwrites the raw_genres
// table. Returns the number of genres written.
func (i *Ingestor) FullLoadGenres(ctx context.Context) (int, error) {
	const resource = "genres"
	start := i.config.Now()
	i.logger.Info().Str("resource", resource).Msg("Starting full load")

	pager := pagination.New(i.client, pagination.Config{
		Endpoint: resource,
		PageSize: i.config.GenrePageSize,
		MaxPages: i.config.MaxPages,
	})

	extractionTS := start.UTC()
	var genres []store.RawGenre

	pages, err := i.drainPages(ctx, pager, resource, func(raw json.RawMessage) error {
		var rec genreRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode genre record: %w", err)
		}
		genres = append(genres, store.RawGenre{
			GenreID:      rec.ID,
			Slug:         rec.Slug,
			Name:         rec.Name,
			GamesCount:   rec.GamesCount,
			Payload:      raw,
			ExtractionTS: extractionTS,
		})
		return nil
	})
	if err != nil {
		runsTotal.WithLabelValues(resource, "failed").Inc()
		return 0, err
	}

	if err := i.store.ReplaceGenres(ctx, genres); err != nil {
		runsTotal.WithLabelValues(resource, "failed").Inc()
		return 0, fmt.Errorf("write genres: %w", err)
	}

	recordsWrittenTotal.WithLabelValues(resource).Add(float64(len(genres)))
	runsTotal.WithLabelValues(resource, "ok").Inc()
	runDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	i.logger.Info().
		Str("resource", resource).
		Int("pages", pages).
		Int("rows", len(genres)).
		Msg("Full load complete")
	return len(genres), nil
}

// IncrementalLoadGames pulls games released in [from, to] and overwrites
// today's extraction_date partition. Pages are accumulated in full before
// any write, so a mid-pagination failure commits nothing.
func (i *Ingestor) IncrementalLoadGames(ctx context.Context, from, to time.Time) (*RunResult, error) {
	const resource = "games"
	start := i.config.Now()

	result := &RunResult{
		RunID:          uuid.NewString(),
		ExtractionDate: start.UTC().Format(dateLayout),
	}

	logger := i.logger.With().
		Str("resource", resource).
		Str("run_id", result.RunID).
		Str("extraction_date", result.ExtractionDate).
		Logger()
	logger.Info().
		Str("from", from.Format(dateLayout)).
		Str("to", to.Format(dateLayout)).
		Msg("Starting incremental load")

	pager := pagination.New(i.client, pagination.Config{
		Endpoint: resource,
		PageSize: i.config.GamePageSize,
		MaxPages: i.config.MaxPages,
		Params: url.Values{
			"dates":    {from.Format(dateLayout) + "," + to.Format(dateLayout)},
			"ordering": {"-released"},
		},
	})

	extractionTS := start.UTC()
	var games []store.RawGame

	pages, err := i.drainPages(ctx, pager, resource, func(raw json.RawMessage) error {
		game, err := i.toRawGame(raw, extractionTS, result)
		if err != nil {
			return err
		}
		games = append(games, game)
		return nil
	})
	if err != nil {
		runsTotal.WithLabelValues(resource, "failed").Inc()
		return nil, err
	}

	result.Pages = pages
	result.Records = len(games)

	if len(games) == 0 {
		logger.Warn().Msg("No games found in the requested date range")
		runsTotal.WithLabelValues(resource, "ok").Inc()
		return result, nil
	}

	if err := i.store.WriteGamesPartition(ctx, result.ExtractionDate, games); err != nil {
		runsTotal.WithLabelValues(resource, "failed").Inc()
		return nil, fmt.Errorf("write partition %s: %w", result.ExtractionDate, err)
	}

	recordsWrittenTotal.WithLabelValues(resource).Add(float64(len(games)))
	runsTotal.WithLabelValues(resource, "ok").Inc()
	runDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	logger.Info().
		Int("pages", result.Pages).
		Int("rows", result.Records).
		Msg("Incremental load complete")
	return result, nil
}

// Backfill runs an incremental load over an explicit historical range,
// writing into the current day's partition like a routine run.
func (i *Ingestor) Backfill(ctx context.Context, from, to time.Time) (*RunResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("backfill range inverted: %s after %s",
			from.Format(dateLayout), to.Format(dateLayout))
	}
	return i.IncrementalLoadGames(ctx, from, to)
}

// drainPages iterates the pager, invoking handle per record. A fetch
// failure is returned with resource and page context, unwrapped so callers
// can inspect the cause.
func (i *Ingestor) drainPages(ctx context.Context, pager *pagination.Pager, resource string, handle func(json.RawMessage) error) (int, error) {
	for {
		page, err := pager.Next(ctx)
		if err == pagination.ErrNoMorePages {
			return pager.PagesFetched(), nil
		}
		if err != nil {
			i.logger.Error().
				Err(err).
				Str("resource", resource).
				Int("page", pager.PagesFetched()+1).
				Msg("Page fetch failed, halting run")
			return pager.PagesFetched(), fmt.Errorf("%s page %d: %w", resource, pager.PagesFetched()+1, err)
		}

		pagesFetchedTotal.WithLabelValues(resource).Inc()
		i.logger.Debug().
			Str("resource", resource).
			Int("page", pager.PagesFetched()).
			Int("records", len(page.Results)).
			Msg("Page fetched")

		for _, raw := range page.Results {
			if err := handle(raw); err != nil {
				return pager.PagesFetched(), err
			}
		}

		if pager.Done() {
			return pager.PagesFetched(), nil
		}
	}
}

// toRawGame decodes a raw record and serializes its nested fields to
// storage-safe scalar strings.
func (i *Ingestor) toRawGame(raw json.RawMessage, extractionTS time.Time, result *RunResult) (store.RawGame, error) {
	var rec gameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return store.RawGame{}, fmt.Errorf("decode game record: %w", err)
	}

	game := store.RawGame{
		GameID:          rec.ID,
		Slug:            rec.Slug,
		Name:            rec.Name,
		Released:        rec.Released,
		TBA:             rec.TBA,
		BackgroundImage: rec.BackgroundImage,
		Rating:          rec.Rating,
		RatingTop:       rec.RatingTop,
		Metacritic:      rec.Metacritic,
		Payload:         raw,
		ExtractionTS:    extractionTS,
		ExtractionDate:  result.ExtractionDate,
		RunID:           result.RunID,
	}

	nested := []struct {
		name string
		raw  json.RawMessage
		dst  **string
	}{
		{"platforms", rec.Platforms, &game.Platforms},
		{"parent_platforms", rec.ParentPlatforms, &game.ParentPlatforms},
		{"genres", rec.Genres, &game.Genres},
		{"stores", rec.Stores, &game.Stores},
		{"tags", rec.Tags, &game.Tags},
		{"esrb_rating", rec.ESRBRating, &game.ESRBRating},
		{"short_screenshots", rec.Screenshots, &game.Screenshots},
	}
	for _, n := range nested {
		s, err := serializeNested(n.raw)
		if err != nil {
			return store.RawGame{}, fmt.Errorf("game %d field %s: %w", rec.ID, n.name, err)
		}
		*n.dst = s
	}

	return game, nil
}

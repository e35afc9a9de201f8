// Package transform derives the silver layer from bronze: a refined games
// table with cleaned scalar columns and an analytics table of per-year,
// per-genre aggregates. Each run recomputes both tables in full from the
// current bronze contents.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/logging"
	"github.com/arvelid/gamelake/pkg/store"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_runs_total",
		Help: "Total transform runs by outcome",
	}, []string{"status"})

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_rows_total",
		Help: "Rows written per transform run by table",
	}, []string{"table"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transform_run_duration_seconds",
		Help:    "Transform run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
	})
)

const topRatedThreshold = 85

// unknownGenre labels games whose genre list is absent or empty.
const unknownGenre = "Unknown"

// Result summarizes one transform run.
type Result struct {
	SourceRows    int
	RefinedRows   int
	AnalyticsRows int
}

// Transformer recomputes the silver tables from bronze.
type Transformer struct {
	store  *store.Store
	logger zerolog.Logger
}

func New(st *store.Store) *Transformer {
	return &Transformer{
		store:  st,
		logger: logging.NewLogger("transformer"),
	}
}

// Run reads all bronze game rows, refines them and recomputes the
// aggregates. Both silver tables are replaced atomically, each in its own
// transaction.
func (t *Transformer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	games, err := t.store.ReadGames(ctx)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("read bronze games: %w", err)
	}

	deduped := Dedupe(games)
	refined := Refine(deduped)
	analytics := Aggregate(deduped)

	if err := t.store.ReplaceRefined(ctx, refined); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("write games_refined: %w", err)
	}
	if err := t.store.ReplaceAnalytics(ctx, analytics); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("write games_analytics: %w", err)
	}

	rowsTotal.WithLabelValues("games_refined").Add(float64(len(refined)))
	rowsTotal.WithLabelValues("games_analytics").Add(float64(len(analytics)))
	runsTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(time.Since(start).Seconds())

	t.logger.Info().
		Int("source_rows", len(games)).
		Int("refined_rows", len(refined)).
		Int("analytics_rows", len(analytics)).
		Msg("Transform complete")

	return &Result{
		SourceRows:    len(games),
		RefinedRows:   len(refined),
		AnalyticsRows: len(analytics),
	}, nil
}

// Dedupe keeps one row per (game_id, extraction_date), preferring the most
// recently extracted copy. Output is sorted by game then partition so runs
// are deterministic.
func Dedupe(games []store.RawGame) []store.RawGame {
	type key struct {
		id   int64
		date string
	}

	latest := make(map[key]store.RawGame, len(games))
	for _, g := range games {
		k := key{g.GameID, g.ExtractionDate}
		if prev, ok := latest[k]; ok && g.ExtractionTS.Before(prev.ExtractionTS) {
			continue
		}
		latest[k] = g
	}

	deduped := make([]store.RawGame, 0, len(latest))
	for _, g := range latest {
		deduped = append(deduped, g)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].GameID != deduped[j].GameID {
			return deduped[i].GameID < deduped[j].GameID
		}
		return deduped[i].ExtractionDate < deduped[j].ExtractionDate
	})
	return deduped
}

// Refine projects deduplicated bronze rows into refined rows.
func Refine(games []store.RawGame) []store.RefinedGame {
	refined := make([]store.RefinedGame, 0, len(games))
	for _, g := range games {
		genres := genreNames(g.Genres)
		primary := unknownGenre
		if len(genres) > 0 && genres[0] != "" {
			primary = genres[0]
		}

		refined = append(refined, store.RefinedGame{
			GameID:         g.GameID,
			Slug:           g.Slug,
			Name:           g.Name,
			Released:       g.Released,
			ReleasedYear:   releasedYear(g.Released),
			TBA:            g.TBA,
			Rating:         g.Rating,
			RatingTop:      g.RatingTop,
			Metacritic:     g.Metacritic,
			IsTopRated:     g.Metacritic != nil && *g.Metacritic > topRatedThreshold,
			PrimaryGenre:   primary,
			ExtractionDate: g.ExtractionDate,
		})
	}
	return refined
}

// Aggregate explodes each game's genre list and groups by (release year,
// genre), computing the game count and mean rating per group. Rows without
// a release year or any genre contribute nothing. Output is ordered year
// descending, count descending, then genre for ties.
func Aggregate(games []store.RawGame) []store.AnalyticsRow {
	type key struct {
		year  int64
		genre string
	}
	type acc struct {
		count     int64
		ratingSum float64
	}

	groups := make(map[key]*acc)
	for _, g := range games {
		year := releasedYear(g.Released)
		if year == nil {
			continue
		}
		for _, genre := range genreNames(g.Genres) {
			if genre == "" {
				continue
			}
			k := key{*year, genre}
			a, ok := groups[k]
			if !ok {
				a = &acc{}
				groups[k] = a
			}
			a.count++
			a.ratingSum += g.Rating
		}
	}

	rows := make([]store.AnalyticsRow, 0, len(groups))
	for k, a := range groups {
		rows = append(rows, store.AnalyticsRow{
			ReleasedYear: k.year,
			Genre:        k.genre,
			GameCount:    a.count,
			AvgRating:    round2(a.ratingSum / float64(a.count)),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ReleasedYear != rows[j].ReleasedYear {
			return rows[i].ReleasedYear > rows[j].ReleasedYear
		}
		if rows[i].GameCount != rows[j].GameCount {
			return rows[i].GameCount > rows[j].GameCount
		}
		return rows[i].Genre < rows[j].Genre
	})
	return rows
}

// releasedYear parses the year out of a YYYY-MM-DD release date. Games
// without a parseable date get no year and drop out of the aggregates.
func releasedYear(released *string) *int64 {
	if released == nil {
		return nil
	}
	ts, err := time.Parse("2006-01-02", *released)
	if err != nil {
		return nil
	}
	year := int64(ts.Year())
	return &year
}

// genreNames decodes the serialized genre list into genre names. A nil,
// empty or malformed list yields nothing.
func genreNames(genres *string) []string {
	if genres == nil {
		return nil
	}
	var list []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(*genres), &list); err != nil {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, g := range list {
		names = append(names, g.Name)
	}
	return names
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

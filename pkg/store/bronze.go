package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// RawGenre is one genre record as returned by the catalog API.
type RawGenre struct {
	GenreID      int64
	Slug         string
	Name         string
	GamesCount   int64
	Payload      []byte // full source record JSON
	ExtractionTS time.Time
}

// RawGame is one game record as returned by the catalog API. Nested
// structures arrive pre-serialized as canonical JSON strings; the full
// source record is retained in Payload.
type RawGame struct {
	GameID          int64
	Slug            string
	Name            string
	Released        *string
	TBA             bool
	BackgroundImage *string
	Rating          float64
	RatingTop       int64
	Metacritic      *int64

	// Nested fields, serialized to canonical JSON strings. Nil when the
	// source field was absent or null.
	Platforms       *string
	ParentPlatforms *string
	Genres          *string
	Stores          *string
	Tags            *string
	ESRBRating      *string
	Screenshots     *string

	Payload        []byte // full source record JSON
	ExtractionTS   time.Time
	ExtractionDate string // partition key, YYYY-MM-DD
	RunID          string
}

// ReplaceGenres overwrites the raw_genres table with the given records in
// one transaction (full load semantics).
func (s *Store) ReplaceGenres(ctx context.Context, genres []RawGenre) error {
	tx, err := s.bronze.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin genres tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM raw_genres`); err != nil {
		return fmt.Errorf("clear raw_genres: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_genres (genre_id, slug, name, games_count, payload, extraction_ts)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare genre insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range genres {
		_, err := stmt.ExecContext(ctx,
			g.GenreID, g.Slug, g.Name, g.GamesCount,
			snappy.Encode(nil, g.Payload),
			g.ExtractionTS.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert genre %d: %w", g.GenreID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit genres: %w", err)
	}

	s.logger.Info().Int("rows", len(genres)).Msg("Replaced raw_genres")
	return nil
}

// ReadGenres returns all raw genre records.
func (s *Store) ReadGenres(ctx context.Context) ([]RawGenre, error) {
	rows, err := s.bronze.QueryContext(ctx, `
		SELECT genre_id, slug, name, games_count, payload, extraction_ts
		FROM raw_genres ORDER BY genre_id`)
	if err != nil {
		return nil, fmt.Errorf("query raw_genres: %w", err)
	}
	defer rows.Close()

	var genres []RawGenre
	for rows.Next() {
		var g RawGenre
		var payload []byte
		var ts string
		if err := rows.Scan(&g.GenreID, &g.Slug, &g.Name, &g.GamesCount, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan genre: %w", err)
		}
		if g.Payload, err = snappy.Decode(nil, payload); err != nil {
			return nil, fmt.Errorf("decode genre %d payload: %w", g.GenreID, err)
		}
		if g.ExtractionTS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse genre %d extraction_ts: %w", g.GenreID, err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// WriteGamesPartition overwrites the extraction_date partition with the
// given rows. The delete and the inserts run in one transaction: re-running
// the same day replaces the partition instead of appending duplicates, and
// an interruption rolls back to the previous partition state.
func (s *Store) WriteGamesPartition(ctx context.Context, extractionDate string, games []RawGame) error {
	tx, err := s.bronze.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin partition tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM raw_games WHERE extraction_date = ?`, extractionDate)
	if err != nil {
		return fmt.Errorf("clear partition %s: %w", extractionDate, err)
	}
	deleted, _ := res.RowsAffected()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO raw_games (
			game_id, slug, name, released, tba, background_image,
			rating, rating_top, metacritic,
			platforms, parent_platforms, genres, stores, tags, esrb_rating, short_screenshots,
			payload, extraction_ts, extraction_date, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare game insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		_, err := stmt.ExecContext(ctx,
			g.GameID, g.Slug, g.Name, g.Released, g.TBA, g.BackgroundImage,
			g.Rating, g.RatingTop, g.Metacritic,
			g.Platforms, g.ParentPlatforms, g.Genres, g.Stores, g.Tags, g.ESRBRating, g.Screenshots,
			snappy.Encode(nil, g.Payload),
			g.ExtractionTS.UTC().Format(time.RFC3339Nano),
			extractionDate, g.RunID,
		)
		if err != nil {
			return fmt.Errorf("insert game %d: %w", g.GameID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit partition %s: %w", extractionDate, err)
	}

	s.logger.Info().
		Str("extraction_date", extractionDate).
		Int64("deleted", deleted).
		Int("rows", len(games)).
		Msg("Wrote games partition")
	return nil
}

// ReadGames returns all raw game records in extraction order.
func (s *Store) ReadGames(ctx context.Context) ([]RawGame, error) {
	return s.readGames(ctx, `
		SELECT game_id, slug, name, released, tba, background_image,
			rating, rating_top, metacritic,
			platforms, parent_platforms, genres, stores, tags, esrb_rating, short_screenshots,
			payload, extraction_ts, extraction_date, run_id
		FROM raw_games ORDER BY extraction_date, rowid`)
}

// ReadGamesPartition returns the raw game records of one extraction_date.
func (s *Store) ReadGamesPartition(ctx context.Context, extractionDate string) ([]RawGame, error) {
	return s.readGames(ctx, `
		SELECT game_id, slug, name, released, tba, background_image,
			rating, rating_top, metacritic,
			platforms, parent_platforms, genres, stores, tags, esrb_rating, short_screenshots,
			payload, extraction_ts, extraction_date, run_id
		FROM raw_games WHERE extraction_date = ? ORDER BY rowid`, extractionDate)
}

func (s *Store) readGames(ctx context.Context, query string, args ...interface{}) ([]RawGame, error) {
	rows, err := s.bronze.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw_games: %w", err)
	}
	defer rows.Close()

	var games []RawGame
	for rows.Next() {
		var g RawGame
		var payload []byte
		var ts string
		err := rows.Scan(
			&g.GameID, &g.Slug, &g.Name, &g.Released, &g.TBA, &g.BackgroundImage,
			&g.Rating, &g.RatingTop, &g.Metacritic,
			&g.Platforms, &g.ParentPlatforms, &g.Genres, &g.Stores, &g.Tags, &g.ESRBRating, &g.Screenshots,
			&payload, &ts, &g.ExtractionDate, &g.RunID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if g.Payload, err = snappy.Decode(nil, payload); err != nil {
			return nil, fmt.Errorf("decode game %d payload: %w", g.GameID, err)
		}
		if g.ExtractionTS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse game %d extraction_ts: %w", g.GameID, err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// PartitionDates returns the distinct extraction dates present in bronze,
// oldest first.
func (s *Store) PartitionDates(ctx context.Context) ([]string, error) {
	rows, err := s.bronze.QueryContext(ctx,
		`SELECT DISTINCT extraction_date FROM raw_games ORDER BY extraction_date`)
	if err != nil {
		return nil, fmt.Errorf("query partition dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan partition date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// CountPartition returns the number of rows in one extraction_date partition.
func (s *Store) CountPartition(ctx context.Context, extractionDate string) (int64, error) {
	var count int64
	err := s.bronze.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_games WHERE extraction_date = ?`, extractionDate).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("count partition %s: %w", extractionDate, err)
	}
	return count, nil
}

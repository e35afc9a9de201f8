package store

import (
	"context"
	"fmt"
)

// RefinedGame is one row of the silver games_refined table.
type RefinedGame struct {
	GameID         int64
	Slug           string
	Name           string
	Released       *string
	ReleasedYear   *int64
	TBA            bool
	Rating         float64
	RatingTop      int64
	Metacritic     *int64
	IsTopRated     bool
	PrimaryGenre   string
	ExtractionDate string
}

// AnalyticsRow is one row of the silver games_analytics table: aggregates
// per (release year, genre).
type AnalyticsRow struct {
	ReleasedYear int64
	Genre        string
	GameCount    int64
	AvgRating    float64
}

// ReplaceRefined overwrites games_refined with the given rows in one
// transaction. Silver tables are fully recomputed per transform run.
func (s *Store) ReplaceRefined(ctx context.Context, rows []RefinedGame) error {
	tx, err := s.silver.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refined tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM games_refined`); err != nil {
		return fmt.Errorf("clear games_refined: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO games_refined (
			game_id, slug, name, released, released_year, tba,
			rating, rating_top, metacritic, is_top_rated, primary_genre, extraction_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare refined insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.GameID, r.Slug, r.Name, r.Released, r.ReleasedYear, r.TBA,
			r.Rating, r.RatingTop, r.Metacritic, r.IsTopRated, r.PrimaryGenre, r.ExtractionDate,
		)
		if err != nil {
			return fmt.Errorf("insert refined game %d: %w", r.GameID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit games_refined: %w", err)
	}

	s.logger.Info().Int("rows", len(rows)).Msg("Replaced games_refined")
	return nil
}

// ReadRefined returns all refined rows ordered by game and partition.
func (s *Store) ReadRefined(ctx context.Context) ([]RefinedGame, error) {
	rows, err := s.silver.QueryContext(ctx, `
		SELECT game_id, slug, name, released, released_year, tba,
			rating, rating_top, metacritic, is_top_rated, primary_genre, extraction_date
		FROM games_refined ORDER BY game_id, extraction_date`)
	if err != nil {
		return nil, fmt.Errorf("query games_refined: %w", err)
	}
	defer rows.Close()

	var out []RefinedGame
	for rows.Next() {
		var r RefinedGame
		err := rows.Scan(
			&r.GameID, &r.Slug, &r.Name, &r.Released, &r.ReleasedYear, &r.TBA,
			&r.Rating, &r.RatingTop, &r.Metacritic, &r.IsTopRated, &r.PrimaryGenre, &r.ExtractionDate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refined game: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceAnalytics overwrites games_analytics with the given rows in one
// transaction.
func (s *Store) ReplaceAnalytics(ctx context.Context, rows []AnalyticsRow) error {
	tx, err := s.silver.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analytics tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM games_analytics`); err != nil {
		return fmt.Errorf("clear games_analytics: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO games_analytics (released_year, genre, game_count, avg_rating)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare analytics insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ReleasedYear, r.Genre, r.GameCount, r.AvgRating); err != nil {
			return fmt.Errorf("insert analytics (%d, %s): %w", r.ReleasedYear, r.Genre, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit games_analytics: %w", err)
	}

	s.logger.Info().Int("rows", len(rows)).Msg("Replaced games_analytics")
	return nil
}

// ReadAnalytics returns all analytics rows, year descending then count
// descending, matching the order they were computed in.
func (s *Store) ReadAnalytics(ctx context.Context) ([]AnalyticsRow, error) {
	rows, err := s.silver.QueryContext(ctx, `
		SELECT released_year, genre, game_count, avg_rating
		FROM games_analytics
		ORDER BY released_year DESC, game_count DESC, genre`)
	if err != nil {
		return nil, fmt.Errorf("query games_analytics: %w", err)
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var r AnalyticsRow
		if err := rows.Scan(&r.ReleasedYear, &r.Genre, &r.GameCount, &r.AvgRating); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Package store persists the bronze and silver layers in SQLite.
//
// Bronze holds raw catalog records partitioned by extraction_date; silver
// holds the derived refined and analytics tables. Each layer lives in its
// own database file under the data directory. Partition overwrites run the
// delete and the insert inside a single transaction, so an interrupted run
// never leaves a half-written partition behind.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/logging"
)

const bronzeSchema = `
CREATE TABLE IF NOT EXISTS raw_genres (
	genre_id      INTEGER PRIMARY KEY,
	slug          TEXT,
	name          TEXT,
	games_count   INTEGER,
	payload       BLOB NOT NULL,
	extraction_ts TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_games (
	game_id           INTEGER NOT NULL,
	slug              TEXT,
	name              TEXT,
	released          TEXT,
	tba               INTEGER NOT NULL DEFAULT 0,
	background_image  TEXT,
	rating            REAL,
	rating_top        INTEGER,
	metacritic        INTEGER,
	platforms         TEXT,
	parent_platforms  TEXT,
	genres            TEXT,
	stores            TEXT,
	tags              TEXT,
	esrb_rating       TEXT,
	short_screenshots TEXT,
	payload           BLOB NOT NULL,
	extraction_ts     TEXT NOT NULL,
	extraction_date   TEXT NOT NULL,
	run_id            TEXT NOT NULL,
	PRIMARY KEY (game_id, extraction_date)
);

CREATE INDEX IF NOT EXISTS idx_raw_games_extraction_date
	ON raw_games (extraction_date);
`

const silverSchema = `
CREATE TABLE IF NOT EXISTS games_refined (
	game_id         INTEGER NOT NULL,
	slug            TEXT,
	name            TEXT,
	released        TEXT,
	released_year   INTEGER,
	tba             INTEGER NOT NULL DEFAULT 0,
	rating          REAL,
	rating_top      INTEGER,
	metacritic      INTEGER,
	is_top_rated    INTEGER NOT NULL DEFAULT 0,
	primary_genre   TEXT NOT NULL,
	extraction_date TEXT NOT NULL,
	PRIMARY KEY (game_id, extraction_date)
);

CREATE TABLE IF NOT EXISTS games_analytics (
	released_year INTEGER NOT NULL,
	genre         TEXT NOT NULL,
	game_count    INTEGER NOT NULL,
	avg_rating    REAL NOT NULL,
	PRIMARY KEY (released_year, genre)
);
`

// Store provides access to the bronze and silver layers.
type Store struct {
	bronze *sql.DB
	silver *sql.DB
	logger zerolog.Logger
}

// Open creates or opens the layer databases under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	bronze, err := openDB(filepath.Join(dataDir, "bronze.db"), bronzeSchema)
	if err != nil {
		return nil, fmt.Errorf("open bronze: %w", err)
	}

	silver, err := openDB(filepath.Join(dataDir, "silver.db"), silverSchema)
	if err != nil {
		bronze.Close()
		return nil, fmt.Errorf("open silver: %w", err)
	}

	return &Store{
		bronze: bronze,
		silver: silver,
		logger: logging.NewLogger("store"),
	}, nil
}

func openDB(path, schema string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; the pipeline is sequential.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// Close closes both layer databases.
func (s *Store) Close() error {
	var firstErr error
	if err := s.bronze.Close(); err != nil {
		firstErr = err
	}
	if err := s.silver.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

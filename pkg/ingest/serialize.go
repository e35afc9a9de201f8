package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// gameRecord is the subset of a raw catalog game record the bronze schema
// projects into columns. Nested structures stay as raw JSON so they can be
// serialized to storage-safe scalar strings.
type gameRecord struct {
	ID              int64           `json:"id"`
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Released        *string         `json:"released"`
	TBA             bool            `json:"tba"`
	BackgroundImage *string         `json:"background_image"`
	Rating          float64         `json:"rating"`
	RatingTop       int64           `json:"rating_top"`
	Metacritic      *int64          `json:"metacritic"`
	Platforms       json.RawMessage `json:"platforms"`
	ParentPlatforms json.RawMessage `json:"parent_platforms"`
	Genres          json.RawMessage `json:"genres"`
	Stores          json.RawMessage `json:"stores"`
	Tags            json.RawMessage `json:"tags"`
	ESRBRating      json.RawMessage `json:"esrb_rating"`
	Screenshots     json.RawMessage `json:"short_screenshots"`
}

// genreRecord is the subset of a raw catalog genre record projected into
// bronze columns.
type genreRecord struct {
	ID         int64  `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	GamesCount int64  `json:"games_count"`
}

// serializeNested converts a nested JSON value to its canonical compact
// string form. Absent and null values map to nil so they stay NULL in the
// store.
func serializeNested(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact nested field: %w", err)
	}
	s := buf.String()
	return &s, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedSnapshot records one poll of the tracker feed.
type FeedSnapshot struct {
	ID        uuid.UUID `db:"id"`
	SourceURL string    `db:"source_url"`
	FetchedAt time.Time `db:"fetched_at"`
	LineCount int       `db:"line_count"`
	Malformed int       `db:"malformed"`
	NewEvents int       `db:"new_events"`
	ObjectKey *string   `db:"object_key"`
}

type HourlyStat struct {
	Event      string    `db:"event"`
	HourBucket time.Time `db:"hour_bucket"`
	Total      int64     `db:"total"`
}

// BatchResult is what the pipeline reports back for one persisted batch.
type BatchResult struct {
	Received   int
	Invalid    int
	Duplicates int
	Inserted   int
}

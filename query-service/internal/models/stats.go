package models

import (
	"time"
)

// HourlyStat is one row of event_hourly_stats, maintained by the worker.
type HourlyStat struct {
	Event      string    `db:"event" json:"event"`
	HourBucket time.Time `db:"hour_bucket" json:"hour_bucket"`
	Total      int64     `db:"total" json:"total"`
}

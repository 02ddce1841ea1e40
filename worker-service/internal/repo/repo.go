package repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
	"github.com/yudduy/cma-analysis/worker-service/internal/repo/interfaces"
)

type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) interfaces.EventRepo {
	return &EventRepo{
		db: db,
	}
}

var eventColumns = []string{
	"fingerprint", "occurred_at", "uuid", "event", "grp", "url", "session_count",
	"referrer", "popup_id", "user_agent", "language", "platform",
	"screen_width", "screen_height", "window_width", "window_height",
	"timezone", "cookies_enabled", "vendor", "ip_address", "risk_score", "source",
}

const createStagingQuery = `
CREATE TEMP TABLE tracker_events_staging (
	ord             BIGINT NOT NULL,
	fingerprint     TEXT NOT NULL,
	occurred_at     TIMESTAMPTZ,
	uuid            TEXT NOT NULL,
	event           TEXT NOT NULL,
	grp             TEXT,
	url             TEXT,
	session_count   BIGINT,
	referrer        TEXT,
	popup_id        TEXT,
	user_agent      TEXT,
	language        TEXT,
	platform        TEXT,
	screen_width    DOUBLE PRECISION,
	screen_height   DOUBLE PRECISION,
	window_width    DOUBLE PRECISION,
	window_height   DOUBLE PRECISION,
	timezone        TEXT,
	cookies_enabled BOOLEAN,
	vendor          TEXT,
	ip_address      TEXT NOT NULL,
	risk_score      INTEGER NOT NULL,
	source          TEXT NOT NULL
) ON COMMIT DROP
`

const insertFromStagingQuery = `
INSERT INTO tracker_events (
	fingerprint, occurred_at, uuid, event, grp, url, session_count,
	referrer, popup_id, user_agent, language, platform,
	screen_width, screen_height, window_width, window_height,
	timezone, cookies_enabled, vendor, ip_address, risk_score, source
)
SELECT
	fingerprint, occurred_at, uuid, event, grp, url, session_count,
	referrer, popup_id, user_agent, language, platform,
	screen_width, screen_height, window_width, window_height,
	timezone, cookies_enabled, vendor, ip_address, risk_score, source
FROM tracker_events_staging
ORDER BY ord
ON CONFLICT (fingerprint) DO NOTHING
RETURNING event, occurred_at
`

const statsQuery = `
INSERT INTO event_hourly_stats (event, hour_bucket, total)
VALUES ($1, $2, $3)
ON CONFLICT (event, hour_bucket)
DO UPDATE SET total = event_hourly_stats.total + EXCLUDED.total
`

type insertedRow struct {
	Event      string     `db:"event"`
	OccurredAt *time.Time `db:"occurred_at"`
}

func (r *EventRepo) InsertEventsBatch(ctx context.Context, events []*tracker.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createStagingQuery); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("tracker_events_staging", append([]string{"ord"}, eventColumns...)...))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}

	for i, e := range events {
		_, err = stmt.ExecContext(ctx,
			int64(i),
			e.Fingerprint,
			e.Timestamp,
			e.UUID,
			e.Name,
			e.Group,
			e.URL,
			e.SessionCount,
			e.Referrer,
			e.PopupID,
			e.UserAgent,
			e.Language,
			e.Platform,
			e.ScreenWidth,
			e.ScreenHeight,
			e.WindowWidth,
			e.WindowHeight,
			e.Timezone,
			e.CookiesEnabled,
			e.Vendor,
			e.IPAddress,
			e.RiskScore,
			e.Source,
		)
		if err != nil {
			stmt.Close()
			return 0, fmt.Errorf("exec copy: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("finalize copy: %w", err)
	}
	stmt.Close()

	var inserted []insertedRow
	if err := tx.SelectContext(ctx, &inserted, insertFromStagingQuery); err != nil {
		return 0, fmt.Errorf("insert from staging: %w", err)
	}

	for _, stat := range hourlyStats(inserted) {
		if _, err := tx.ExecContext(ctx, statsQuery, stat.Event, stat.HourBucket, stat.Total); err != nil {
			return 0, fmt.Errorf("upsert stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return len(inserted), nil
}

// hourlyStats folds newly inserted rows into per-hour counts, ordered by hour
// then event name so concurrent upserts lock rows in the same order.
func hourlyStats(rows []insertedRow) []models.HourlyStat {
	statsMap := make(map[string]*models.HourlyStat)

	for _, row := range rows {
		if row.OccurredAt == nil {
			continue
		}
		hourBucket := tracker.HourBucket(row.OccurredAt.UTC())
		key := fmt.Sprintf("%s|%s", row.Event, hourBucket.Format(time.RFC3339))

		if _, exists := statsMap[key]; !exists {
			statsMap[key] = &models.HourlyStat{
				Event:      row.Event,
				HourBucket: hourBucket,
			}
		}
		statsMap[key].Total++
	}

	out := make([]models.HourlyStat, 0, len(statsMap))
	for _, s := range statsMap {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].HourBucket.Equal(out[j].HourBucket) {
			return out[i].HourBucket.Before(out[j].HourBucket)
		}
		return out[i].Event < out[j].Event
	})
	return out
}

func (r *EventRepo) RecordSnapshot(ctx context.Context, snap *models.FeedSnapshot) error {
	query := `
	INSERT INTO feed_snapshots (id, source_url, fetched_at, line_count, malformed, new_events, object_key)
	VALUES (:id, :source_url, :fetched_at, :line_count, :malformed, :new_events, :object_key)
	`
	if _, err := r.db.NamedExecContext(ctx, query, snap); err != nil {
		return fmt.Errorf("insert feed snapshot: %w", err)
	}
	return nil
}

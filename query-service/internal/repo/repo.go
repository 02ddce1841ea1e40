package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/query-service/internal/models"
	"github.com/yudduy/cma-analysis/query-service/internal/repo/interfaces"
)

type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) interfaces.EventRepo {
	return &EventRepo{db: db}
}

const listEventsQuery = `
	SELECT seq, fingerprint, occurred_at, uuid, event, grp, url, session_count,
		referrer, popup_id, user_agent, language, platform,
		screen_width, screen_height, window_width, window_height,
		timezone, cookies_enabled, vendor, ip_address, risk_score, source
	FROM tracker_events
	ORDER BY seq
`

// ListEvents returns every stored event in ingestion order. Group
// assignment forward-fills across this order, so it must match the feed.
func (r *EventRepo) ListEvents(ctx context.Context) ([]tracker.Event, error) {
	var events []tracker.Event
	if err := r.db.SelectContext(ctx, &events, listEventsQuery); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	return events, nil
}

func (r *EventRepo) LatestSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM tracker_events`); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq, nil
}

func (r *EventRepo) HourlyStats(ctx context.Context, since time.Time) ([]models.HourlyStat, error) {
	query := `
		SELECT event, hour_bucket, total
		FROM event_hourly_stats
		WHERE hour_bucket >= $1
		ORDER BY hour_bucket, event
	`

	var stats []models.HourlyStat
	if err := r.db.SelectContext(ctx, &stats, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("select hourly stats: %w", err)
	}
	return stats, nil
}

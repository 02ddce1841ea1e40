package interfaces

import (
	"context"
	"time"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/query-service/internal/models"
)

type EventRepo interface {
	ListEvents(ctx context.Context) ([]tracker.Event, error)
	LatestSeq(ctx context.Context) (int64, error)
	HourlyStats(ctx context.Context, since time.Time) ([]models.HourlyStat, error)
}

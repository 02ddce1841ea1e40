package interfaces

import (
	"context"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
)

type EventRepo interface {
	// InsertEventsBatch stores events in slice order and returns how many
	// were new. Fingerprints already present are skipped.
	InsertEventsBatch(ctx context.Context, events []*tracker.Event) (int, error)
	RecordSnapshot(ctx context.Context, snap *models.FeedSnapshot) error
}

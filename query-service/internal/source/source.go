// Package source loads the tracker event stream the dashboard analyses,
// either from the worker's Postgres tables or straight from the published
// feed.
package source

import (
	"context"
	"time"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
)

// Snapshot is the full event stream at one revision. Events are in stream
// order and must not be modified by callers.
type Snapshot struct {
	Events   []tracker.Event
	Revision string
	LoadedAt time.Time
}

type EventSource interface {
	Load(ctx context.Context) (*Snapshot, error)
	Activity(ctx context.Context, since time.Time) ([]analysis.HourlyCount, error)
	Name() string
}

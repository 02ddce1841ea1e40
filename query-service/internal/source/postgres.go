package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
	"github.com/yudduy/cma-analysis/query-service/internal/repo/interfaces"
)

// PostgresSource reads events written by the worker. The last snapshot is
// kept until the highest seq moves.
type PostgresSource struct {
	repo interfaces.EventRepo

	mu     sync.Mutex
	cached *Snapshot
	seq    int64
}

func NewPostgresSource(repo interfaces.EventRepo) *PostgresSource {
	return &PostgresSource{repo: repo}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.repo.LatestSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("load revision: %w", err)
	}
	if s.cached != nil && seq == s.seq {
		return s.cached, nil
	}

	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	s.cached = &Snapshot{
		Events:   events,
		Revision: fmt.Sprintf("seq-%d", seq),
		LoadedAt: time.Now().UTC(),
	}
	s.seq = seq
	log.WithFields(log.Fields{"events": len(events), "seq": seq}).Debug("loaded events from postgres")
	return s.cached, nil
}

func (s *PostgresSource) Activity(ctx context.Context, since time.Time) ([]analysis.HourlyCount, error) {
	stats, err := s.repo.HourlyStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load hourly stats: %w", err)
	}
	out := make([]analysis.HourlyCount, len(stats))
	for i, st := range stats {
		out[i] = analysis.HourlyCount{Hour: st.HourBucket.UTC(), Event: st.Event, Total: st.Total}
	}
	analysis.SortActivity(out)
	return out, nil
}

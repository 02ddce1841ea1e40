package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/botscore"
	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/metrics"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
	"github.com/yudduy/cma-analysis/worker-service/internal/repo/interfaces"
	"github.com/yudduy/cma-analysis/worker-service/internal/scoring"
)

type Deduplicator interface {
	Claim(ctx context.Context, fingerprints []string) ([]bool, error)
	Release(ctx context.Context, fingerprints []string) error
}

// IncomingEvent is a wire event plus what the ingest path knows about it.
type IncomingEvent struct {
	Raw         tracker.RawEvent
	Fingerprint string
	IPAddress   string
	Source      string
}

type EventService struct {
	repo    interfaces.EventRepo
	dedupe  Deduplicator
	scorer  scoring.Scorer
	prom    *metrics.Collectors
	metrics *Metrics
}

type Metrics struct {
	mu                sync.RWMutex
	TotalProcessed    int64
	TotalFailed       int64
	TotalDuplicates   int64
	TotalBatches      int64
	LastProcessedAt   time.Time
	totalDuration     time.Duration
	AvgProcessingTime time.Duration
}

type MetricsData struct {
	TotalProcessed    int64
	TotalFailed       int64
	TotalDuplicates   int64
	TotalBatches      int64
	LastProcessedAt   time.Time
	AvgProcessingTime time.Duration
}

type Option func(*EventService)

// WithDeduplicator enables the Redis fast path in front of the unique index.
func WithDeduplicator(d Deduplicator) Option {
	return func(s *EventService) { s.dedupe = d }
}

func WithCollectors(c *metrics.Collectors) Option {
	return func(s *EventService) { s.prom = c }
}

func NewEventService(repo interfaces.EventRepo, scorer scoring.Scorer, opts ...Option) *EventService {
	s := &EventService{
		repo:    repo,
		scorer:  scorer,
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = scoring.HeuristicScorer{}
	}
	return s
}

// ProcessEventBatch runs validate, sanitize, dedupe, score and persist over
// one batch. Invalid events are dropped and counted; only a storage failure
// is returned as an error.
func (s *EventService) ProcessEventBatch(ctx context.Context, batch []*IncomingEvent) (models.BatchResult, error) {
	result := models.BatchResult{Received: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	events := make([]*tracker.Event, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, in := range batch {
		if in == nil {
			result.Invalid++
			continue
		}
		if err := tracker.Validate(&in.Raw); err != nil {
			log.WithFields(log.Fields{"source": in.Source, "error": err}).Debug("validation failed")
			result.Invalid++
			continue
		}
		if _, dup := seen[in.Fingerprint]; dup {
			result.Duplicates++
			continue
		}
		seen[in.Fingerprint] = struct{}{}

		e := tracker.Flatten(in.Raw)
		e.Fingerprint = in.Fingerprint
		e.IPAddress = in.IPAddress
		e.Source = in.Source
		tracker.Sanitize(&e)
		events = append(events, &e)
	}

	if result.Invalid > 0 {
		s.metrics.addFailed(int64(result.Invalid))
		s.count(batch, metrics.OutcomeInvalid, result.Invalid)
		log.Printf("Failed validation: %d/%d events", result.Invalid, len(batch))
	}

	events, claimed := s.claim(ctx, events, &result)
	if len(events) == 0 {
		s.metrics.addDuplicates(int64(result.Duplicates))
		s.count(batch, metrics.OutcomeDuplicate, result.Duplicates)
		return result, nil
	}

	for _, e := range events {
		e.RiskScore = s.score(ctx, e)
	}

	start := time.Now()
	inserted, err := s.repo.InsertEventsBatch(ctx, events)
	if err != nil {
		if s.dedupe != nil && len(claimed) > 0 {
			if rerr := s.dedupe.Release(context.WithoutCancel(ctx), claimed); rerr != nil {
				log.WithError(rerr).Warn("release dedupe keys")
			}
		}
		s.metrics.addFailed(int64(len(events)))
		s.count(batch, metrics.OutcomeFailed, len(events))
		return result, fmt.Errorf("process batch: %w", err)
	}
	elapsed := time.Since(start)

	result.Inserted = inserted
	result.Duplicates += len(events) - inserted

	s.metrics.addProcessed(int64(inserted), elapsed)
	s.metrics.addDuplicates(int64(result.Duplicates))
	s.metrics.incrementBatches()
	s.count(batch, metrics.OutcomeInserted, inserted)
	s.count(batch, metrics.OutcomeDuplicate, result.Duplicates)
	if s.prom != nil {
		s.prom.Batches.Inc()
		s.prom.BatchDuration.Observe(elapsed.Seconds())
	}

	return result, nil
}

// claim drops events Redis has already seen and returns the fingerprints
// this call claimed. A Redis failure falls back to the database's unique
// index.
func (s *EventService) claim(ctx context.Context, events []*tracker.Event, result *models.BatchResult) ([]*tracker.Event, []string) {
	if s.dedupe == nil || len(events) == 0 {
		return events, nil
	}

	fps := make([]string, len(events))
	for i, e := range events {
		fps[i] = e.Fingerprint
	}

	dup, err := s.dedupe.Claim(ctx, fps)
	if err != nil {
		log.WithError(err).Warn("dedupe unavailable, relying on unique index")
		return events, nil
	}

	kept := events[:0]
	claimed := make([]string, 0, len(events))
	for i, e := range events {
		if dup[i] {
			result.Duplicates++
			continue
		}
		kept = append(kept, e)
		claimed = append(claimed, fps[i])
	}
	return kept, claimed
}

func (s *EventService) score(ctx context.Context, e *tracker.Event) int {
	req := botscore.ScoreRequest{
		IPAddress: e.IPAddress,
		VisitorID: e.UUID,
		UserAgent: tracker.Str(e.UserAgent),
	}
	score, err := s.scorer.Score(ctx, req)
	if err != nil {
		log.WithFields(log.Fields{"visitor": e.UUID, "error": err}).Warn("bot scoring failed, using user-agent heuristic")
		return botscore.ScoreUserAgent(req.UserAgent)
	}
	return score
}

func (s *EventService) count(batch []*IncomingEvent, outcome string, n int) {
	if s.prom == nil || n <= 0 {
		return
	}
	source := tracker.SourceCollector
	for _, in := range batch {
		if in != nil {
			source = in.Source
			break
		}
	}
	s.prom.Events.WithLabelValues(source, outcome).Add(float64(n))
}

func (s *EventService) ProcessWithRetry(ctx context.Context, batch []*IncomingEvent, maxRetries int) (models.BatchResult, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return models.BatchResult{}, ctx.Err()
			}
		}

		result, err := s.ProcessEventBatch(ctx, batch)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.WithFields(log.Fields{"attempt": attempt + 1, "error": err}).Warn("batch failed")
	}

	return models.BatchResult{}, fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (s *EventService) GetMetrics() MetricsData {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()
	return MetricsData{
		TotalProcessed:    s.metrics.TotalProcessed,
		TotalFailed:       s.metrics.TotalFailed,
		TotalDuplicates:   s.metrics.TotalDuplicates,
		TotalBatches:      s.metrics.TotalBatches,
		LastProcessedAt:   s.metrics.LastProcessedAt,
		AvgProcessingTime: s.metrics.AvgProcessingTime,
	}
}

func (m *Metrics) addProcessed(count int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastProcessedAt = time.Now()
	if count <= 0 {
		return
	}
	m.TotalProcessed += count
	m.totalDuration += duration
	m.AvgProcessingTime = m.totalDuration / time.Duration(m.TotalProcessed)
}

func (m *Metrics) addFailed(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalFailed += count
}

func (m *Metrics) addDuplicates(count int64) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalDuplicates += count
}

func (m *Metrics) incrementBatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalBatches++
}

// Package feed polls the published tracker NDJSON file and feeds new lines
// through the event pipeline.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/metrics"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
	"github.com/yudduy/cma-analysis/worker-service/internal/service"
)

type BatchProcessor interface {
	ProcessWithRetry(ctx context.Context, batch []*service.IncomingEvent, maxRetries int) (models.BatchResult, error)
}

type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap *models.FeedSnapshot) error
}

type Archiver interface {
	Archive(ctx context.Context, source string, lines [][]byte) (string, error)
}

type Config struct {
	URL        string
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

type Poller struct {
	cfg       Config
	client    *http.Client
	processor BatchProcessor
	snapshots SnapshotRecorder
	archiver  Archiver
	prom      *metrics.Collectors

	lastRevision string
}

// NewPoller wires a poller. archiver and prom may be nil.
func NewPoller(cfg Config, processor BatchProcessor, snapshots SnapshotRecorder, archiver Archiver, prom *metrics.Collectors) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Poller{
		cfg:       cfg,
		client:    &http.Client{Timeout: 60 * time.Second},
		processor: processor,
		snapshots: snapshots,
		archiver:  archiver,
		prom:      prom,
	}
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithFields(log.Fields{"url": p.cfg.URL, "error": err}).Error("feed poll failed")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Println("Feed poller stopped.")
			return nil
		}
	}
}

// PollOnce fetches the feed and ingests it. It returns nil, nil when the
// body has not changed since the previous poll.
func (p *Poller) PollOnce(ctx context.Context) (*models.FeedSnapshot, error) {
	body, err := tracker.FetchFeed(ctx, p.client, p.cfg.URL)
	if err != nil {
		p.observe("error")
		return nil, err
	}

	revision := tracker.Revision(body)
	if revision == p.lastRevision {
		p.observe("unchanged")
		return nil, nil
	}

	fetchedAt := time.Now().UTC()
	parsed, err := tracker.ParseFeed(bytes.NewReader(body))
	if err != nil {
		p.observe("error")
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	newEvents := 0
	for start := 0; start < len(parsed.Lines); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(parsed.Lines))

		batch := make([]*service.IncomingEvent, 0, end-start)
		for _, l := range parsed.Lines[start:end] {
			batch = append(batch, &service.IncomingEvent{
				Raw:         l.Event,
				Fingerprint: l.Fingerprint,
				Source:      tracker.SourceFeed,
			})
		}

		res, err := p.processor.ProcessWithRetry(ctx, batch, p.cfg.MaxRetries)
		if err != nil {
			p.observe("error")
			return nil, fmt.Errorf("ingest lines %d-%d: %w", start, end, err)
		}
		newEvents += res.Inserted
	}

	snap := &models.FeedSnapshot{
		ID:        uuid.New(),
		SourceURL: p.cfg.URL,
		FetchedAt: fetchedAt,
		LineCount: parsed.Total,
		Malformed: parsed.Malformed,
		NewEvents: newEvents,
	}

	if newEvents > 0 && p.archiver != nil {
		lines := make([][]byte, len(parsed.Lines))
		for i, l := range parsed.Lines {
			lines[i] = l.Raw
		}
		key, err := p.archiver.Archive(ctx, tracker.SourceFeed, lines)
		if err != nil {
			log.WithError(err).Warn("archive feed snapshot")
		} else {
			snap.ObjectKey = &key
		}
	}

	if err := p.snapshots.RecordSnapshot(ctx, snap); err != nil {
		return snap, err
	}

	p.lastRevision = revision
	p.observe("ok")
	log.WithFields(log.Fields{
		"lines":      snap.LineCount,
		"malformed":  snap.Malformed,
		"new_events": snap.NewEvents,
	}).Info("feed snapshot ingested")

	return snap, nil
}

func (p *Poller) observe(result string) {
	if p.prom != nil {
		p.prom.FeedPolls.WithLabelValues(result).Inc()
	}
}

package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/botscore"
	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
)

// FeedSource downloads the published NDJSON feed, at most once per TTL.
// Events are scored with the user-agent heuristic since the feed carries
// no IP address.
type FeedSource struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	cached *Snapshot
}

func NewFeedSource(url string, ttl time.Duration) *FeedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &FeedSource{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 60 * time.Second},
		now:    time.Now,
	}
}

func (s *FeedSource) Name() string { return "feed" }

func (s *FeedSource) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.cached != nil && now.Sub(s.cached.LoadedAt) < s.ttl {
		return s.cached, nil
	}

	body, err := tracker.FetchFeed(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	parsed, err := tracker.ParseFeed(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	events := parsed.Events(tracker.SourceFeed)
	for i := range events {
		tracker.Sanitize(&events[i])
		events[i].RiskScore = botscore.ScoreUserAgent(tracker.Str(events[i].UserAgent))
	}

	s.cached = &Snapshot{
		Events:   events,
		Revision: tracker.Revision(body),
		LoadedAt: now,
	}
	log.WithFields(log.Fields{
		"url":       s.url,
		"lines":     parsed.Total,
		"malformed": parsed.Malformed,
		"invalid":   len(parsed.Lines) - len(events),
	}).Info("feed loaded")
	return s.cached, nil
}

func (s *FeedSource) Activity(ctx context.Context, since time.Time) ([]analysis.HourlyCount, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.Activity(snap.Events, since), nil
}

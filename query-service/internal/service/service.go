package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
	"github.com/yudduy/cma-analysis/query-service/internal/cache"
	"github.com/yudduy/cma-analysis/query-service/internal/metrics"
	"github.com/yudduy/cma-analysis/query-service/internal/source"
)

var (
	ErrVersionNotFound = errors.New("version not found")
	ErrNoData          = errors.New("no tracker data")
)

type Options struct {
	ExcludeBots       bool
	BotScoreThreshold int
}

// Dashboard is a report plus the context the page needs around it.
type Dashboard struct {
	*analysis.Report
	Versions         []string  `json:"versions"`
	Revision         string    `json:"revision"`
	Source           string    `json:"source"`
	GeneratedAt      time.Time `json:"generated_at"`
	ExcludedVisitors int       `json:"excluded_bot_visitors"`
	Insights         Insights  `json:"insights"`
}

// Insights are the headline figures, formatted for display.
type Insights struct {
	TotalUsers         string   `json:"total_users"`
	TotalSignups       string   `json:"total_signups"`
	ConversionRate     string   `json:"conversion_rate"`
	ReferralVisits     string   `json:"referral_visits"`
	ReferralSignups    string   `json:"referral_signups"`
	ReferralConversion string   `json:"referral_conversion_rate"`
	TopTraffic         []string `json:"top_traffic"`
	TopConversion      []string `json:"top_conversion"`
}

// prepared is the grouped event stream of one source revision.
type prepared struct {
	revision string
	records  []analysis.Record
	versions []string
	excluded int
}

type DashboardService struct {
	source  source.EventSource
	cache   cache.ReportCache
	prom    *metrics.Collectors
	opts    Options
	printer *message.Printer
	now     func() time.Time

	mu   sync.Mutex
	prep *prepared
}

// NewDashboardService wires the service. reports and prom may be nil.
func NewDashboardService(src source.EventSource, reports cache.ReportCache, prom *metrics.Collectors, opts Options) *DashboardService {
	if reports == nil {
		reports = cache.Nop{}
	}
	return &DashboardService{
		source:  src,
		cache:   reports,
		prom:    prom,
		opts:    opts,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

func (s *DashboardService) prepare(ctx context.Context) (*prepared, error) {
	snap, err := s.source.Load(ctx)
	if err != nil {
		if s.prom != nil {
			s.prom.SourceErrors.Inc()
		}
		return nil, fmt.Errorf("load %s source: %w", s.source.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prep != nil && s.prep.revision == snap.Revision {
		return s.prep, nil
	}

	records, excluded := analysis.AssignGroups(snap.Events), 0
	if s.opts.ExcludeBots {
		bots := analysis.BotVisitors(snap.Events, s.opts.BotScoreThreshold)
		records, excluded = analysis.ExcludeBots(records, bots), len(bots)
	}
	s.prep = &prepared{
		revision: snap.Revision,
		records:  records,
		versions: analysis.Versions(records),
		excluded: excluded,
	}
	if s.prom != nil {
		s.prom.BotVisitors.Set(float64(excluded))
	}
	log.WithFields(log.Fields{
		"revision": snap.Revision,
		"events":   len(snap.Events),
		"records":  len(records),
		"bots":     excluded,
	}).Info("prepared tracker snapshot")
	return s.prep, nil
}

// Versions lists randomization versions, latest first.
func (s *DashboardService) Versions(ctx context.Context) ([]string, error) {
	prep, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return prep.versions, nil
}

// Report builds the dashboard for version, or for the latest version when
// version is empty.
func (s *DashboardService) Report(ctx context.Context, version string) (*Dashboard, error) {
	prep, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if len(prep.versions) == 0 {
		return nil, ErrNoData
	}
	if version == "" {
		version = prep.versions[0]
	}
	if !slices.Contains(prep.versions, version) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}

	key := cache.ReportKey(version, prep.revision)
	var cached Dashboard
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Warn("report cache read failed")
	}
	if hit && cached.Report != nil {
		s.count("hit")
		return &cached, nil
	}

	start := time.Now()
	report := analysis.Build(version, analysis.ForVersion(prep.records, version))
	d := &Dashboard{
		Report:           report,
		Versions:         prep.versions,
		Revision:         prep.revision,
		Source:           s.source.Name(),
		GeneratedAt:      s.now().UTC(),
		ExcludedVisitors: prep.excluded,
		Insights:         s.insights(report),
	}
	if s.prom != nil {
		s.prom.ReportDuration.Observe(time.Since(start).Seconds())
	}
	s.count("miss")

	if err := s.cache.Set(ctx, key, d); err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Warn("report cache write failed")
	}
	return d, nil
}

// Activity returns hourly event counts since the given time; zero means
// all history.
func (s *DashboardService) Activity(ctx context.Context, since time.Time) ([]analysis.HourlyCount, error) {
	counts, err := s.source.Activity(ctx, since)
	if err != nil {
		if s.prom != nil {
			s.prom.SourceErrors.Inc()
		}
		return nil, fmt.Errorf("load activity: %w", err)
	}
	return counts, nil
}

func (s *DashboardService) insights(r *analysis.Report) Insights {
	p := s.printer
	in := Insights{
		TotalUsers:         p.Sprintf("%d", r.Newsletter.TotalUsers),
		TotalSignups:       p.Sprintf("%d", r.Newsletter.TotalSignups),
		ConversionRate:     p.Sprintf("%.2f%%", r.Newsletter.ConversionRate),
		ReferralVisits:     p.Sprintf("%d", r.Referrals.TotalVisits),
		ReferralSignups:    p.Sprintf("%d", r.Referrals.TotalSignups),
		ReferralConversion: p.Sprintf("%.2f%%", r.Referrals.ConversionRate),
	}
	for _, row := range r.Referrals.TopTraffic {
		in.TopTraffic = append(in.TopTraffic, p.Sprintf("%s: %.1f%% of total traffic", row.Category, row.TrafficShare))
	}
	for _, row := range r.Referrals.TopConversion {
		in.TopConversion = append(in.TopConversion, p.Sprintf("%s: %.1f%% conversion rate", row.Category, row.ConversionRate))
	}
	return in
}

func (s *DashboardService) count(result string) {
	if s.prom != nil {
		s.prom.Reports.WithLabelValues(result).Inc()
	}
}

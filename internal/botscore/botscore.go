// Package botscore rates how likely a tracker hit is to come from automation.
// Scores run from 0 (human) to 100 (certain bot).
package botscore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ScoreHuman   = 0
	ScoreUnknown = 50
	ScoreBot     = 95
)

type ScoreRequest struct {
	IPAddress string `json:"ip_address"`
	VisitorID string `json:"visitor_id"`
	UserAgent string `json:"user_agent"`
}

type ScoreResponse struct {
	RiskScore int `json:"risk_score"`
}

var botMarkers = []string{
	"bot", "crawler", "spider", "slurp", "crawl",
	"headlesschrome", "phantomjs", "selenium", "puppeteer", "playwright",
	"lighthouse", "python-requests", "python-urllib", "go-http-client",
	"curl/", "wget/", "scrapy", "httpclient", "facebookexternalhit",
}

// ScoreUserAgent is the static heuristic: known automation markers score as
// bots, a missing agent is unknown.
func ScoreUserAgent(ua string) int {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return ScoreUnknown
	}
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return ScoreBot
		}
	}
	return ScoreHuman
}

var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type VelocityConfig struct {
	Window    time.Duration
	Threshold int
	BotScore  int
}

// VelocityScorer counts hits per IP in a fixed window and flags IPs that
// exceed the threshold.
type VelocityScorer struct {
	client    redis.Scripter
	window    time.Duration
	threshold int
	botScore  int
}

func NewVelocityScorer(client redis.Scripter, cfg VelocityConfig) *VelocityScorer {
	if cfg.Window <= 0 {
		cfg.Window = 300 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 100
	}
	if cfg.BotScore <= 0 {
		cfg.BotScore = 90
	}
	return &VelocityScorer{
		client:    client,
		window:    cfg.Window,
		threshold: cfg.Threshold,
		botScore:  cfg.BotScore,
	}
}

func (s *VelocityScorer) ScoreIP(ctx context.Context, ipAddress string) (int, error) {
	if strings.TrimSpace(ipAddress) == "" {
		return ScoreHuman, nil
	}

	key := "botscore:ip:" + ipAddress
	secs := int(s.window / time.Second)
	count, err := incrWithTTLScript.Run(ctx, s.client, []string{key}, strconv.Itoa(secs)).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment ip counter: %w", err)
	}

	if count > int64(s.threshold) {
		return s.botScore, nil
	}
	return ScoreHuman, nil
}

// Score combines the velocity counter with the user-agent heuristic.
func (s *VelocityScorer) Score(ctx context.Context, req ScoreRequest) (int, error) {
	ipScore, err := s.ScoreIP(ctx, req.IPAddress)
	if err != nil {
		return 0, err
	}
	return max(ipScore, ScoreUserAgent(req.UserAgent)), nil
}

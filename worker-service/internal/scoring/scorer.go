package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yudduy/cma-analysis/internal/botscore"
)

type Scorer interface {
	Score(ctx context.Context, req botscore.ScoreRequest) (int, error)
}

type Config struct {
	Mode        string
	Endpoint    string
	IPWindowSec int
	IPThreshold int
	BotScore    int
}

type HTTPScorer struct {
	endpoint   string
	httpClient *http.Client
}

type HeuristicScorer struct{}

type NopScorer struct{}

// NewScorer builds the scorer for cfg.Mode. redisClient is only used by
// the inprocess mode and may be nil otherwise.
func NewScorer(cfg Config, redisClient *redis.Client) (Scorer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))

	switch mode {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("SCORE_ENDPOINT is required for SCORE_MODE=http")
		}
		return &HTTPScorer{
			endpoint: strings.TrimRight(cfg.Endpoint, "/"),
			httpClient: &http.Client{
				Timeout: 5 * time.Second,
			},
		}, nil
	case "lambda":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("SCORE_ENDPOINT is required for SCORE_MODE=lambda")
		}
		return NewLambdaClient(strings.TrimRight(cfg.Endpoint, "/")), nil
	case "inprocess":
		if redisClient == nil {
			return nil, fmt.Errorf("REDIS_ADDR is required for SCORE_MODE=inprocess")
		}
		return botscore.NewVelocityScorer(redisClient, botscore.VelocityConfig{
			Window:    time.Duration(cfg.IPWindowSec) * time.Second,
			Threshold: cfg.IPThreshold,
			BotScore:  cfg.BotScore,
		}), nil
	case "", "heuristic":
		return HeuristicScorer{}, nil
	case "off":
		return NopScorer{}, nil
	default:
		return nil, fmt.Errorf("unsupported SCORE_MODE: %s", mode)
	}
}

func (HeuristicScorer) Score(_ context.Context, req botscore.ScoreRequest) (int, error) {
	return botscore.ScoreUserAgent(req.UserAgent), nil
}

func (NopScorer) Score(context.Context, botscore.ScoreRequest) (int, error) {
	return 0, nil
}

func (h *HTTPScorer) Score(ctx context.Context, request botscore.ScoreRequest) (int, error) {
	return postScore(ctx, h.httpClient, h.endpoint+"/score", request, "botscore service")
}

func postScore(ctx context.Context, client *http.Client, url string, request botscore.ScoreRequest, target string) (int, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("invoke %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%s returned status %d: %s", target, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var response botscore.ScoreResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}

	return response.RiskScore, nil
}

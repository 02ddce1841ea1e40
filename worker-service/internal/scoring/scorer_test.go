package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/internal/botscore"
)

func scoreServer(t *testing.T, path string, score int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req botscore.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		s := score
		if req.IPAddress == "" {
			s = 0
		}
		_ = json.NewEncoder(w).Encode(botscore.ScoreResponse{RiskScore: s})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPScorer(t *testing.T) {
	srv := scoreServer(t, "/score", 77)

	s, err := NewScorer(Config{Mode: "http", Endpoint: srv.URL + "/"}, nil)
	require.NoError(t, err)

	score, err := s.Score(context.Background(), botscore.ScoreRequest{IPAddress: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, 77, score)
}

func TestLambdaScorer(t *testing.T) {
	srv := scoreServer(t, "/2015-03-31/functions/function/invocations", 100)

	s, err := NewScorer(Config{Mode: "lambda", Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	require.IsType(t, &LambdaClient{}, s)

	score, err := s.Score(context.Background(), botscore.ScoreRequest{IPAddress: "10.0.0.99"})
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestHTTPScorer_ErrorStatus(t *testing.T) {
	srv := scoreServer(t, "/other", 0)

	s, err := NewScorer(Config{Mode: "http", Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	_, err = s.Score(context.Background(), botscore.ScoreRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestHeuristicAndOff(t *testing.T) {
	h, err := NewScorer(Config{Mode: "heuristic"}, nil)
	require.NoError(t, err)
	score, err := h.Score(context.Background(), botscore.ScoreRequest{UserAgent: "Googlebot/2.1"})
	require.NoError(t, err)
	assert.Equal(t, botscore.ScoreBot, score)

	off, err := NewScorer(Config{Mode: "OFF"}, nil)
	require.NoError(t, err)
	score, err = off.Score(context.Background(), botscore.ScoreRequest{UserAgent: "Googlebot/2.1"})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestInProcessScorer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewScorer(Config{Mode: "inprocess", IPWindowSec: 60, IPThreshold: 1, BotScore: 90}, client)
	require.NoError(t, err)

	req := botscore.ScoreRequest{IPAddress: "5.5.5.5", UserAgent: "Mozilla/5.0"}
	first, err := s.Score(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Score(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, botscore.ScoreHuman, first)
	assert.Equal(t, 90, second)
}

func TestNewScorer_Errors(t *testing.T) {
	_, err := NewScorer(Config{Mode: "inprocess"}, nil)
	assert.Error(t, err)
	_, err = NewScorer(Config{Mode: "http"}, nil)
	assert.Error(t, err)
	_, err = NewScorer(Config{Mode: "psychic"}, nil)
	assert.Error(t, err)
}

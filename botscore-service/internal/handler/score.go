package handler

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/botscore-service/internal/metrics"
	"github.com/yudduy/cma-analysis/internal/botscore"
)

type Scorer interface {
	Score(ctx context.Context, req botscore.ScoreRequest) (int, error)
}

type ScoreHandler struct {
	scorer    Scorer
	prom      *metrics.Collectors
	threshold int
}

// NewScoreHandler labels scores at or above threshold as bots in metrics.
func NewScoreHandler(scorer Scorer, prom *metrics.Collectors, threshold int) *ScoreHandler {
	return &ScoreHandler{scorer: scorer, prom: prom, threshold: threshold}
}

func (h *ScoreHandler) Register(app *fiber.App) {
	app.Post("/score", h.Score)
	app.Get("/health", HealthCheck)
}

func (h *ScoreHandler) Score(c *fiber.Ctx) error {
	var req botscore.ScoreRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}

	score, err := h.scorer.Score(c.UserContext(), req)
	if err != nil {
		if h.prom != nil {
			h.prom.Errors.Inc()
		}
		log.WithFields(log.Fields{"ip": req.IPAddress, "error": err}).Error("failed to score request")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to score request",
		})
	}

	if h.prom != nil {
		verdict := "human"
		if score >= h.threshold {
			verdict = "bot"
		}
		h.prom.Scores.WithLabelValues(verdict).Observe(float64(score))
	}
	return c.JSON(botscore.ScoreResponse{RiskScore: score})
}

func HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}

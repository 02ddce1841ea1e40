package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/collector-service/internal/kafka"
	"github.com/yudduy/cma-analysis/collector-service/internal/metrics"
	"github.com/yudduy/cma-analysis/internal/tracker"
)

type Publisher interface {
	SendEvent(ctx context.Context, env tracker.Envelope) error
	SendEventBatch(ctx context.Context, envs []tracker.Envelope) error
}

type EventHandler struct {
	producer     Publisher
	prom         *metrics.Collectors
	maxBatchSize int
	now          func() time.Time
}

func NewEventHandler(producer Publisher, prom *metrics.Collectors, maxBatchSize int) *EventHandler {
	if maxBatchSize <= 0 {
		maxBatchSize = 1000
	}
	return &EventHandler{
		producer:     producer,
		prom:         prom,
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

func (h *EventHandler) Register(app *fiber.App) {
	app.Post("/event", h.HandleEvent)
	app.Post("/events/batch", h.HandleEventBatch)
}

// sendBeacon posts text/plain, so the body is decoded regardless of content type
func decode(c *fiber.Ctx, v any) error {
	return json.Unmarshal(c.Body(), v)
}

func (h *EventHandler) HandleEvent(c *fiber.Ctx) error {
	var event tracker.RawEvent
	if err := decode(c, &event); err != nil {
		h.count("rejected", 1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid Request Body",
		})
	}

	if err := tracker.Validate(&event); err != nil {
		h.count("rejected", 1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	now := h.now()
	if event.Timestamp.IsZero() {
		event.Timestamp.Time = now.UTC()
	}

	env := kafka.Envelope(event, c.IP(), uuid.NewString(), now)
	if err := h.producer.SendEvent(c.UserContext(), env); err != nil {
		h.count("failed", 1)
		log.WithFields(log.Fields{"visitor": event.UUID, "error": err}).Error("failed to queue event")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to queue event",
		})
	}

	h.count("queued", 1)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
	})
}

func (h *EventHandler) HandleEventBatch(c *fiber.Ctx) error {
	var events []tracker.RawEvent

	if err := decode(c, &events); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid Request Body",
		})
	}
	if len(events) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one event is required",
		})
	}
	if len(events) > h.maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Maximum %d events per batch", h.maxBatchSize),
		})
	}

	for i := range events {
		if err := tracker.Validate(&events[i]); err != nil {
			h.count("rejected", len(events))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("event %d: %s", i, err.Error()),
			})
		}
	}

	now := h.now()
	ip := c.IP()
	envs := make([]tracker.Envelope, len(events))
	for i := range events {
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp.Time = now.UTC()
		}
		envs[i] = kafka.Envelope(events[i], ip, uuid.NewString(), now)
	}

	if err := h.producer.SendEventBatch(c.UserContext(), envs); err != nil {
		h.count("failed", len(events))
		log.WithFields(log.Fields{"count": len(events), "error": err}).Error("failed to queue batch")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to queue events",
		})
	}

	h.count("queued", len(events))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"count":  len(events),
	})
}

func (h *EventHandler) count(result string, n int) {
	if h.prom != nil {
		h.prom.Events.WithLabelValues(result).Add(float64(n))
	}
}

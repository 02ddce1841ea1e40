package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/botscore-service/internal/config"
	"github.com/yudduy/cma-analysis/botscore-service/internal/handler"
	"github.com/yudduy/cma-analysis/botscore-service/internal/metrics"
	"github.com/yudduy/cma-analysis/internal/botscore"
	"github.com/yudduy/cma-analysis/internal/logging"
)

// botThreshold matches the dashboard's default bot cut-off.
const botThreshold = 80

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	entry := logging.Setup("botscore-service", cfg.LogLevel, cfg.LogFormat)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Ping(ctx).Err()
	cancel()
	if err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	defer client.Close()

	scorer := botscore.NewVelocityScorer(client, botscore.VelocityConfig{
		Window:    cfg.Window(),
		Threshold: cfg.IPThreshold,
		BotScore:  cfg.BotScore,
	})

	prom := metrics.New()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	handler.NewScoreHandler(scorer, prom, botThreshold).Register(app)
	app.Get("/metrics", prom.Handler())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		entry.Info("Shutting down...")
		_ = app.Shutdown()
	}()

	entry.WithFields(log.Fields{
		"port":      cfg.Port,
		"window":    cfg.Window(),
		"threshold": cfg.IPThreshold,
	}).Info("Bot scorer running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

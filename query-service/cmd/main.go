package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/logging"
	"github.com/yudduy/cma-analysis/query-service/internal/cache"
	"github.com/yudduy/cma-analysis/query-service/internal/config"
	"github.com/yudduy/cma-analysis/query-service/internal/db"
	"github.com/yudduy/cma-analysis/query-service/internal/handler"
	"github.com/yudduy/cma-analysis/query-service/internal/metrics"
	"github.com/yudduy/cma-analysis/query-service/internal/repo"
	"github.com/yudduy/cma-analysis/query-service/internal/service"
	"github.com/yudduy/cma-analysis/query-service/internal/source"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	entry := logging.Setup("query-service", cfg.LogLevel, cfg.LogFormat)

	var src source.EventSource
	switch cfg.DataSource {
	case config.SourceFeed:
		src = source.NewFeedSource(cfg.FeedURL, cfg.CacheTTL())
	default:
		database, err := db.InitDB(cfg.DBUrl)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer database.Close()
		src = source.NewPostgresSource(repo.NewEventRepo(database))
	}
	entry.WithField("source", src.Name()).Info("Event source ready")

	var reports cache.ReportCache = cache.Nop{}
	if cfg.CacheEnabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("ping redis: %v", err)
		}
		defer client.Close()
		reports = cache.NewRedisCache(client, cfg.CacheTTL())
		entry.WithField("ttl", cfg.CacheTTL()).Info("Report cache enabled")
	}

	prom := metrics.New()
	dashboards := service.NewDashboardService(src, reports, prom, service.Options{
		ExcludeBots:       cfg.ExcludeBots,
		BotScoreThreshold: cfg.BotScoreThreshold,
	})
	dashboardHandler := handler.NewDashboardHandler(dashboards)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", prom.Handler())
	dashboardHandler.Register(app)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	entry.WithField("port", cfg.Port).Info("Dashboard running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	entry.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		entry.WithError(err).Error("Error during shutdown")
	}
	entry.Info("Server stopped")
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yudduy/cma-analysis/internal/logging"
	"github.com/yudduy/cma-analysis/worker-service/internal/archive"
	"github.com/yudduy/cma-analysis/worker-service/internal/config"
	"github.com/yudduy/cma-analysis/worker-service/internal/db"
	"github.com/yudduy/cma-analysis/worker-service/internal/dedupe"
	"github.com/yudduy/cma-analysis/worker-service/internal/feed"
	"github.com/yudduy/cma-analysis/worker-service/internal/kafka"
	"github.com/yudduy/cma-analysis/worker-service/internal/metrics"
	"github.com/yudduy/cma-analysis/worker-service/internal/repo"
	"github.com/yudduy/cma-analysis/worker-service/internal/scoring"
	"github.com/yudduy/cma-analysis/worker-service/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.Setup("worker-service", cfg.LogLevel, cfg.LogFormat)
	logger.Info("Configuration loaded successfully")

	DB, err := db.InitDB(cfg.DBUrl)
	if err != nil {
		log.Fatalf("failed to initialize DB: %v", err)
	}
	defer DB.Close()
	logger.Info("DB initialized successfully")

	eventRepo := repo.NewEventRepo(DB)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Fatalf("ping redis: %v", err)
		}
		defer redisClient.Close()
	}

	scorer, err := scoring.NewScorer(scoring.Config{
		Mode:        cfg.ScoreMode,
		Endpoint:    cfg.ScoreEndpoint,
		IPWindowSec: cfg.ScoreIPWindowSec,
		IPThreshold: cfg.ScoreIPThreshold,
	}, redisClient)
	if err != nil {
		log.Fatalf("failed to create scorer: %v", err)
	}
	logger.WithField("mode", cfg.ScoreMode).Info("Bot scorer initialized")

	prom := metrics.New()
	opts := []service.Option{service.WithCollectors(prom)}
	if redisClient != nil {
		opts = append(opts, service.WithDeduplicator(dedupe.NewRedisDeduplicator(redisClient, cfg.DedupeTTL())))
	}
	eventService := service.NewEventService(eventRepo, scorer, opts...)
	logger.Info("Service layer initialized")

	var archiver *archive.MinIOArchiver
	if cfg.ArchiveEnabled() {
		archiver, err = archive.NewMinIOArchiver(ctx, archive.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Prefix:    cfg.ArchivePrefix,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to create archiver: %v", err)
		}
		logger.WithField("bucket", cfg.MinIOBucket).Info("MinIO archive enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.KafkaEnabled() {
		var kafkaArchiver kafka.Archiver
		if archiver != nil {
			kafkaArchiver = archiver
		}
		kafkaConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.GetKafkaBrokers(),
			GroupID:       cfg.KafkaGroupID,
			Topics:        cfg.GetKafkaTopics(),
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval(),
			MaxRetries:    cfg.MaxRetries,
		}, eventService, kafkaArchiver)
		if err != nil {
			log.Fatalf("failed to create kafka consumer: %v", err)
		}
		defer func() {
			if err := kafkaConsumer.Close(); err != nil {
				log.Printf("Warning: Kafka consumer close error: %v", err)
			}
		}()
		g.Go(func() error { return kafkaConsumer.Run(gctx) })
		logger.WithField("topics", cfg.GetKafkaTopics()).Info("Kafka consumer started")
	}

	if cfg.FeedEnabled() {
		var feedArchiver feed.Archiver
		if archiver != nil {
			feedArchiver = archiver
		}
		poller := feed.NewPoller(feed.Config{
			URL:        cfg.FeedURL,
			Interval:   cfg.FeedPollInterval(),
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
		}, eventService, eventRepo, feedArchiver, prom)
		g.Go(func() error { return poller.Run(gctx) })
		logger.WithFields(log.Fields{"url": cfg.FeedURL, "interval": cfg.FeedPollInterval()}).Info("Feed poller started")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/metrics", prom.Handler())

	g.Go(func() error {
		if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(30 * time.Second)
	})
	g.Go(func() error {
		metricsReporter(gctx, eventService)
		return nil
	})

	logger.WithField("port", cfg.Port).Info("Tracker worker is running")

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("worker stopped with error")
	}

	logger.Info("Shutdown signal received, worker stopped")
	logFinalMetrics(logger, eventService.GetMetrics())
}

func metricsReporter(ctx context.Context, svc *service.EventService) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m := svc.GetMetrics()
			fields := log.Fields{
				"processed":  m.TotalProcessed,
				"failed":     m.TotalFailed,
				"duplicates": m.TotalDuplicates,
				"batches":    m.TotalBatches,
				"avg_time":   m.AvgProcessingTime.String(),
			}
			if !m.LastProcessedAt.IsZero() {
				fields["last_processed"] = m.LastProcessedAt.Format(time.RFC3339)
			}
			log.WithFields(fields).Info("Service metrics")

		case <-ctx.Done():
			log.Println("Metrics reporter stopped.")
			return
		}
	}
}

func logFinalMetrics(logger *log.Entry, m service.MetricsData) {
	fields := log.Fields{
		"processed":  m.TotalProcessed,
		"failed":     m.TotalFailed,
		"duplicates": m.TotalDuplicates,
		"batches":    m.TotalBatches,
		"avg_time":   m.AvgProcessingTime.String(),
	}
	if total := m.TotalProcessed + m.TotalFailed; total > 0 {
		fields["success_rate"] = float64(m.TotalProcessed) / float64(total) * 100
	}
	logger.WithFields(fields).Info("Final metrics")
}

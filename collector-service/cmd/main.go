package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/collector-service/internal/config"
	"github.com/yudduy/cma-analysis/collector-service/internal/handler"
	"github.com/yudduy/cma-analysis/collector-service/internal/kafka"
	"github.com/yudduy/cma-analysis/collector-service/internal/metrics"
	"github.com/yudduy/cma-analysis/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	entry := logging.Setup("collector-service", cfg.LogLevel, cfg.LogFormat)

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.GetKafkaBrokers(),
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}

	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("Error closing producer: %v", err)
		}
	}()

	prom := metrics.New()
	eventHandler := handler.NewEventHandler(producer, prom, cfg.MaxBatchSize)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ProxyHeader:           cfg.ProxyHeader,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	eventHandler.Register(app)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/metrics", prom.Handler())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		entry.Info("Shutting down...")
		_ = app.Shutdown()
	}()

	entry.WithField("port", cfg.Port).Info("Collector running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

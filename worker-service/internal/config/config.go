package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBUrl string `mapstructure:"DB_URL"`
	Port  string `mapstructure:"PORT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Kafka
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	KafkaTopics  string `mapstructure:"KAFKA_TOPICS"`

	// Feed polling
	FeedURL             string `mapstructure:"FEED_URL"`
	FeedPollIntervalSec int    `mapstructure:"FEED_POLL_INTERVAL_SEC"`

	// Service Configuration
	BatchSize        int `mapstructure:"BATCH_SIZE"`
	FlushIntervalSec int `mapstructure:"FLUSH_INTERVAL_SEC"`
	MaxRetries       int `mapstructure:"MAX_RETRIES"`

	// Redis
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	DedupeTTLHours int    `mapstructure:"DEDUPE_TTL_HOURS"`

	// MinIO
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	ArchivePrefix  string `mapstructure:"ARCHIVE_PREFIX"`

	// Bot scoring
	ScoreMode        string `mapstructure:"SCORE_MODE"`
	ScoreEndpoint    string `mapstructure:"SCORE_ENDPOINT"`
	ScoreIPWindowSec int    `mapstructure:"SCORE_IP_WINDOW_SEC"`
	ScoreIPThreshold int    `mapstructure:"SCORE_IP_THRESHOLD"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("DB_URL", "")
	v.SetDefault("PORT", "8082")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "tracker-worker")
	v.SetDefault("KAFKA_TOPICS", "tracker-events")
	v.SetDefault("FEED_URL", "")
	v.SetDefault("FEED_POLL_INTERVAL_SEC", 300)
	v.SetDefault("BATCH_SIZE", 100)
	v.SetDefault("FLUSH_INTERVAL_SEC", 5)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DEDUPE_TTL_HOURS", 24)
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "tracker-archive")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("ARCHIVE_PREFIX", "raw")
	v.SetDefault("SCORE_MODE", "")
	v.SetDefault("SCORE_ENDPOINT", "")
	v.SetDefault("SCORE_IP_WINDOW_SEC", 300)
	v.SetDefault("SCORE_IP_THRESHOLD", 100)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) GetKafkaTopics() []string {
	return splitList(c.KafkaTopics)
}

func (c *Config) KafkaEnabled() bool {
	return len(c.GetKafkaBrokers()) > 0
}

func (c *Config) FeedEnabled() bool {
	return strings.TrimSpace(c.FeedURL) != ""
}

func (c *Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.MinIOEndpoint) != ""
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSec) * time.Second
}

func (c *Config) FeedPollInterval() time.Duration {
	return time.Duration(c.FeedPollIntervalSec) * time.Second
}

func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLHours) * time.Hour
}

func (c *Config) validate() error {
	if c.DBUrl == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if !c.KafkaEnabled() && !c.FeedEnabled() {
		return fmt.Errorf("one of KAFKA_BROKERS or FEED_URL is required")
	}
	if c.KafkaEnabled() && len(c.GetKafkaTopics()) == 0 {
		return fmt.Errorf("KAFKA_TOPICS is required when KAFKA_BROKERS is set")
	}
	if c.ArchiveEnabled() && c.MinIOBucket == "" {
		return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushIntervalSec <= 0 {
		c.FlushIntervalSec = 5
	}
	if c.FeedPollIntervalSec <= 0 {
		c.FeedPollIntervalSec = 300
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.DedupeTTLHours <= 0 {
		c.DedupeTTLHours = 24
	}
	if c.ScoreIPWindowSec <= 0 {
		c.ScoreIPWindowSec = 300
	}
	if c.ScoreIPThreshold <= 0 {
		c.ScoreIPThreshold = 100
	}

	c.ScoreMode = strings.ToLower(strings.TrimSpace(c.ScoreMode))
	if c.ScoreMode == "" {
		c.ScoreMode = "heuristic"
		if c.RedisAddr != "" {
			c.ScoreMode = "inprocess"
		}
	}
	switch c.ScoreMode {
	case "inprocess":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for SCORE_MODE=inprocess")
		}
	case "http", "lambda":
		if c.ScoreEndpoint == "" {
			return fmt.Errorf("SCORE_ENDPOINT is required for SCORE_MODE=%s", c.ScoreMode)
		}
	case "heuristic", "off":
	default:
		return fmt.Errorf("unsupported SCORE_MODE: %s", c.ScoreMode)
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

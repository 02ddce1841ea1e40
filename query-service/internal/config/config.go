package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SourcePostgres = "postgres"
	SourceFeed     = "feed"
)

const DefaultFeedURL = "https://checkmyads.org/wp-content/themes/checkmyads/tracker-data.txt"

type Config struct {
	DBUrl string `mapstructure:"DB_URL"`
	Port  string `mapstructure:"PORT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	DataSource  string `mapstructure:"DATA_SOURCE"`
	FeedURL     string `mapstructure:"FEED_URL"`
	CacheTTLSec int    `mapstructure:"CACHE_TTL_SEC"`

	// Redis report cache
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Bot filtering
	ExcludeBots       bool `mapstructure:"EXCLUDE_BOTS"`
	BotScoreThreshold int  `mapstructure:"BOT_SCORE_THRESHOLD"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("DB_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DATA_SOURCE", SourcePostgres)
	v.SetDefault("FEED_URL", DefaultFeedURL)
	v.SetDefault("CACHE_TTL_SEC", 300)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("EXCLUDE_BOTS", true)
	v.SetDefault("BOT_SCORE_THRESHOLD", 80)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DataSource = strings.ToLower(strings.TrimSpace(c.DataSource))

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	switch c.DataSource {
	case SourcePostgres:
		if c.DBUrl == "" {
			return fmt.Errorf("DB_URL is required when DATA_SOURCE=postgres")
		}
	case SourceFeed:
		if strings.TrimSpace(c.FeedURL) == "" {
			return fmt.Errorf("FEED_URL is required when DATA_SOURCE=feed")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be postgres or feed, got %q", c.DataSource)
	}
	if c.CacheTTLSec <= 0 {
		return fmt.Errorf("CACHE_TTL_SEC must be positive")
	}
	if c.BotScoreThreshold < 0 || c.BotScoreThreshold > 100 {
		return fmt.Errorf("BOT_SCORE_THRESHOLD must be between 0 and 100")
	}
	return nil
}

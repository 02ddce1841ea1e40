package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string `mapstructure:"PORT"`
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	IPWindowSec int `mapstructure:"SCORE_IP_WINDOW_SEC"`
	IPThreshold int `mapstructure:"SCORE_IP_THRESHOLD"`
	BotScore    int `mapstructure:"SCORE_BOT"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("SCORE_IP_WINDOW_SEC", 300)
	v.SetDefault("SCORE_IP_THRESHOLD", 100)
	v.SetDefault("SCORE_BOT", 90)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Window() time.Duration {
	return time.Duration(c.IPWindowSec) * time.Second
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.IPWindowSec <= 0 {
		return fmt.Errorf("SCORE_IP_WINDOW_SEC must be positive")
	}
	if c.IPThreshold <= 0 {
		return fmt.Errorf("SCORE_IP_THRESHOLD must be positive")
	}
	if c.BotScore <= 0 || c.BotScore > 100 {
		return fmt.Errorf("SCORE_BOT must be between 1 and 100")
	}
	return nil
}

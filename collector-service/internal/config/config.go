package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	KafkaBrokers   string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string `mapstructure:"KAFKA_TOPIC"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	ProxyHeader    string `mapstructure:"PROXY_HEADER"`
	MaxBatchSize   int    `mapstructure:"MAX_BATCH_SIZE"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("PORT", "8081")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "tracker-events")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("PROXY_HEADER", "")
	v.SetDefault("MAX_BATCH_SIZE", 1000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if c.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required")
	}
	if len(c.GetKafkaBrokers()) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > 1000 {
		c.MaxBatchSize = 1000
	}

	return &c, nil
}

func (c *Config) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

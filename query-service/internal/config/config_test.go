package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/tracker")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, SourcePostgres, cfg.DataSource)
	assert.Equal(t, DefaultFeedURL, cfg.FeedURL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.True(t, cfg.ExcludeBots)
	assert.Equal(t, 80, cfg.BotScoreThreshold)
	assert.False(t, cfg.CacheEnabled())
}

func TestLoadConfig_FeedSourceNeedsNoDatabase(t *testing.T) {
	t.Setenv("DATA_SOURCE", " Feed ")
	t.Setenv("EXCLUDE_BOTS", "false")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, SourceFeed, cfg.DataSource)
	assert.False(t, cfg.ExcludeBots)
	assert.True(t, cfg.CacheEnabled())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without db", map[string]string{"DATA_SOURCE": "postgres"}, "DB_URL is required when DATA_SOURCE=postgres"},
		{"unknown source", map[string]string{"DATA_SOURCE": "s3"}, `DATA_SOURCE must be postgres or feed, got "s3"`},
		{"bad ttl", map[string]string{"DATA_SOURCE": "feed", "CACHE_TTL_SEC": "0"}, "CACHE_TTL_SEC must be positive"},
		{"bad threshold", map[string]string{"DATA_SOURCE": "feed", "BOT_SCORE_THRESHOLD": "101"}, "BOT_SCORE_THRESHOLD must be between 0 and 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.EqualError(t, err, tt.want)
		})
	}
}

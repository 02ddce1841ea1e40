package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{
		client: client,
		ttl:    ttl,
	}
}

func key(fingerprint string) string {
	return fmt.Sprintf("event:%s", fingerprint)
}

// Claim marks a batch of fingerprints in one round trip and reports, per
// input, whether it was already seen.
func (r *RedisDeduplicator) Claim(ctx context.Context, fingerprints []string) ([]bool, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.BoolCmd, len(fingerprints))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, fp := range fingerprints {
			cmds[i] = p.SetNX(ctx, key(fp), "1", r.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline setnx: %w", err)
	}

	dup := make([]bool, len(fingerprints))
	for i, cmd := range cmds {
		dup[i] = !cmd.Val()
	}
	return dup, nil
}

// Release forgets fingerprints so a failed batch can be retried.
func (r *RedisDeduplicator) Release(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	keys := make([]string, len(fingerprints))
	for i, fp := range fingerprints {
		keys[i] = key(fp)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

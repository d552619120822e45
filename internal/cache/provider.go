// Package cache backs Stripe webhook deduplication. Event IDs are remembered
// for a TTL so a redelivered event is acknowledged without reprocessing.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Provider stores processed webhook event markers. Single-instance
// deployments use the in-process LRU; multi-replica deployments need redis
// so all replicas share the same dedup window.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey names the dedup marker for one delivery, e.g.
// "webhook:stripe:evt_123".
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

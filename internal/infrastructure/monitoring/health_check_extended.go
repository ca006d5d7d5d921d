package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything that can report its own reachability, such as a
// message store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// AddStoreCheck adds a message store health check
func (h *HealthChecker) AddStoreCheck(store Pinger, interval, timeout time.Duration) {
	h.AddCheck("store", store.Ping, interval, timeout)
}

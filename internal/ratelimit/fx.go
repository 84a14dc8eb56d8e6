package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/claimlens/claimlens/internal/config"
)

// NewRedisClient returns nil when no address is configured; the settle
// lock and everything downstream treat a nil client as "disabled".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewSettleLock,
		NewSlidingWindow,
		NewUnlockLimiter,
	),
)

package ratelimit

import (
	"github.com/gaiaguardians/walking/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the guardian locker and the optional submit token bucket.
var Module = fx.Module("ratelimit",
	fx.Provide(Provide),
)

type Deps struct {
	GuardianLocker GuardianLocker
	SubmitBucket   *TokenBucket
}

func Provide(cfg config.Config, log *zap.Logger) Deps {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		log.Info("guardian lock: in-process")
		return Deps{GuardianLocker: NewMemoryGuardianLocker()}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	log.Info("guardian lock: redis", zap.String("addr", cfg.RateLimit.RedisAddr))
	return Deps{
		GuardianLocker: NewRedisGuardianLocker(NewLocker(client), cfg.RateLimit.LockTTL),
		SubmitBucket:   NewTokenBucket(client),
	}
}

package cache

import (
	"github.com/gaiaguardians/walking/internal/config"
	"github.com/gaiaguardians/walking/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the configured cache backend.
var Module = fx.Module("cache",
	fx.Provide(Provide),
)

func Provide(cfg config.Config, log *zap.Logger, m *metrics.Metrics) Layer {
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		log.Info("cache backend: redis", zap.String("addr", cfg.Cache.RedisAddr))
		return NewRedisLayer(client, cfg.Cache, log, m)
	}
	log.Info("cache backend: memory")
	return NewMemoryLayer(cfg.Cache, m)
}

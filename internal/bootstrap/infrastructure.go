package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/brivva-dataplane/internal/metrics"
	"github.com/eleven-am/brivva-dataplane/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideRedisClient(lc fx.Lifecycle, cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func ProvideSessionStore(redisClient *redis.Client) *session.Store {
	return session.NewStore(redisClient)
}

func ProvideSessionRecorder(lc fx.Lifecycle, store *session.Store, logger *slog.Logger) *session.Recorder {
	recorder := session.NewRecorder(store, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			recorder.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return recorder.Stop(ctx)
		},
	})
	return recorder
}

func ProvideMetrics(cfg *Config) *metrics.Metrics {
	return metrics.NewMetrics(cfg.MetricsNamespace)
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRedisClient,
		ProvideSessionStore,
		ProvideSessionRecorder,
		ProvideMetrics,
	),
)

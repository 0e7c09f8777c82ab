package bootstrap

import (
	"log/slog"
	"os"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/gateway"
	"github.com/eleven-am/brivva-dataplane/internal/metrics"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/eleven-am/brivva-dataplane/internal/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	RelayHandler   *gateway.RelayHandler
	SessionHandler *session.Handler
	Metrics        *metrics.Metrics
	Config         *Config
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	limiter := gateway.RateLimiter(gateway.RateLimiterConfig{
		RequestsPerSecond: float64(params.Config.WSRateLimit),
		Burst:             params.Config.WSRateBurst,
		CleanupInterval:   5 * time.Minute,
		OnLimited:         params.Metrics.RecordRateLimitHit,
	})
	params.RelayHandler.RegisterRoutes(e, limiter)

	e.GET("/metrics", echo.WrapHandler(params.Metrics.Handler()))

	params.SessionHandler.RegisterRoutes(e.Group("/v1"))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

// pongWait leaves room for one missed ping before a silent client is dropped.
func pongWait(cfg *Config) time.Duration {
	if cfg.RelayPingInterval <= 0 {
		return 0
	}
	return cfg.RelayPingInterval * 10 / 9
}

func ProvideRelayHandler(cfg *Config, manager *relay.Manager, logger *slog.Logger) *gateway.RelayHandler {
	return gateway.NewRelayHandler(manager, pongWait(cfg), logger)
}

func ProvideSessionHandler(store *session.Store, logger *slog.Logger) *session.Handler {
	return session.NewHandler(store, logger.With("handler", "session"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideRelayHandler,
		ProvideSessionHandler,
	),
	fx.Invoke(RegisterRoutes),
)

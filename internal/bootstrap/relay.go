package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/brivva-dataplane/internal/health"
	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/eleven-am/brivva-dataplane/internal/metrics"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/eleven-am/brivva-dataplane/internal/session"
	"go.uber.org/fx"
)

// ProvideUpstreamFactory builds a fresh LiveSpeech client per relay session.
// The configuration is rebuilt every time so a missing credential surfaces
// as a per-connection configuration failure rather than a startup crash.
func ProvideUpstreamFactory(cfg *Config, logger *slog.Logger) relay.UpstreamFactory {
	upstreamLog := logger.With("component", "livespeech")
	return func() (relay.Upstream, error) {
		upstreamCfg, err := cfg.UpstreamConfig()
		if err != nil {
			return nil, err
		}
		return livespeech.NewClient(upstreamCfg, upstreamLog), nil
	}
}

func ProvideUpstreamStatus(cfg *Config) health.Upstream {
	upstreamCfg, err := cfg.UpstreamConfig()
	return health.Upstream{Endpoint: upstreamCfg.Endpoint(), Err: err}
}

func ProvideRelayManager(
	lc fx.Lifecycle,
	cfg *Config,
	factory relay.UpstreamFactory,
	m *metrics.Metrics,
	recorder *session.Recorder,
	logger *slog.Logger,
) *relay.Manager {
	manager := relay.NewManager(relay.ManagerConfig{
		NewUpstream: factory,
		Session: relay.Config{
			SettleDelay:     cfg.RelaySettleDelay,
			TeardownTimeout: cfg.RelayTeardownTimeout,
			WriteTimeout:    cfg.RelayWriteTimeout,
			PingInterval:    cfg.RelayPingInterval,
		},
		Observer: relay.Observers{m, recorder},
		Log:      logger,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return manager.Shutdown(ctx)
		},
	})
	return manager
}

func LogConfigProblems(cfg *Config, logger *slog.Logger) {
	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete, relay sessions will fail", "error", err)
	}
}

var RelayModule = fx.Options(
	fx.Provide(
		ProvideUpstreamFactory,
		ProvideUpstreamStatus,
		ProvideRelayManager,
	),
	fx.Invoke(LogConfigProblems),
)

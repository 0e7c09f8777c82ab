package bootstrap

import (
	"context"
	"net/http"

	"github.com/eleven-am/brivva-dataplane/internal/gateway"
	"github.com/eleven-am/brivva-dataplane/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Content-Type",
		gateway.FlagHeader,
	},
	MaxAge: 86400,
}

func NewEchoServer(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	e.Use(m.Middleware())
	return e
}

// StartServer runs echo for the app lifetime. Hooks stop in reverse order,
// so the relay manager registered later shuts its sessions down before
// echo stops accepting.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(StartServer),
)

func Run() {
	fx.New(
		fx.Provide(LoadConfig, ProvideLogger),
		InfrastructureModule,
		ServerModule,
		RelayModule,
		HandlersModule,
		HealthModule,
	).Run()
}

package bootstrap

import (
	"github.com/eleven-am/brivva-dataplane/internal/health"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/eleven-am/brivva-dataplane/internal/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const version = "1.0.0"

func ProvideHealthHandler(store *session.Store, manager *relay.Manager, upstream health.Upstream) *health.Handler {
	return health.NewHandler(store, manager, upstream, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)

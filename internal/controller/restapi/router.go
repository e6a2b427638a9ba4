package restapi

import (
	v1 "github.com/andreyxaxa/Ledger-Outbox/internal/controller/restapi/v1"
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the operational endpoints. The service has no business API.
func NewRouter(app *fiber.App, ob usecase.OutboxUseCase, gatherer prometheus.Gatherer, l logger.Interface) {
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Routers
	apiV1Group := app.Group("/v1")
	{
		v1.NewOutboxRoutes(apiV1Group, ob, l)
	}
}

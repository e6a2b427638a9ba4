package v1

import (
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewOutboxRoutes(apiV1Group fiber.Router, ob usecase.OutboxUseCase, l logger.Interface) {
	r := &V1{ob: ob, logger: l}

	outboxGroup := apiV1Group.Group("/outbox")
	{
		outboxGroup.Get("/stats", r.outboxStats)
		outboxGroup.Get("/exhausted", r.exhaustedEvents)
	}
}

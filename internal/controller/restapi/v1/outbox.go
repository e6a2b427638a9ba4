package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Ledger-Outbox/internal/controller/restapi/v1/validate"
	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/gofiber/fiber/v2"
)

func (r *V1) outboxStats(ctx *fiber.Ctx) error {
	stats, err := r.ob.Stats(ctx.UserContext())
	if err != nil {
		r.logger.Error(err, "restapi - v1 - outboxStats")

		return errorResponse(ctx, http.StatusInternalServerError, "outbox stats unavailable")
	}

	return ctx.Status(http.StatusOK).JSON(response.OutboxStats{
		Init:      stats.Counts[entity.OutboxInit],
		Published: stats.Counts[entity.OutboxPublished],
		SendFail:  stats.Counts[entity.OutboxSendFail],
		Exhausted: stats.Exhausted,
	})
}

func (r *V1) exhaustedEvents(ctx *fiber.Ctx) error {
	limit := validate.DefaultListLimit

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !validate.ListLimit(n) {
			return errorResponse(ctx, http.StatusBadRequest, "limit must be between 1 and 1000")
		}

		limit = n
	}

	events, err := r.ob.Exhausted(ctx.UserContext(), limit)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - exhaustedEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "outbox unavailable")
	}

	resp := response.ExhaustedEvents{Events: make([]response.OutboxEvent, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, response.OutboxEvent{
			ID:            e.ID,
			EventID:       e.EventID.String(),
			EventType:     string(e.EventType),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			RetryCount:    e.RetryCount,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		})
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

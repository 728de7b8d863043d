package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/parking"
)

// maxWebhookBody caps how much of a webhook body is read.
const maxWebhookBody = 64 << 10

// Dispatcher applies one lifecycle event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev parking.Event) error
}

// WebhookHandler receives lifecycle events from the positioning source.
// The source does not interpret responses, so every request is answered
// 200 with an empty body; outcomes are only visible in the logs.
type WebhookHandler struct {
	lifecycle Dispatcher
}

func NewWebhookHandler(lifecycle Dispatcher) *WebhookHandler {
	return &WebhookHandler{lifecycle: lifecycle}
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("webhook.read_failed")
		return c.NoContent(http.StatusOK)
	}

	ev, err := parking.DecodeEvent(body)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("webhook.rejected")
		return c.NoContent(http.StatusOK)
	}

	if err := h.lifecycle.Dispatch(ctx, ev); err != nil {
		switch {
		case errors.Is(err, parking.ErrGarageFull):
			// already logged as entry.full
		case errors.Is(err, parking.ErrSwapInvariant):
			logging.Error(ctx).Err(err).Str("event", string(ev.Type())).Str("plate", ev.Plate()).Msg("webhook.invariant_violation")
		default:
			logging.Error(ctx).Err(err).Str("event", string(ev.Type())).Str("plate", ev.Plate()).Msg("webhook.failed")
		}
	}
	return c.NoContent(http.StatusOK)
}

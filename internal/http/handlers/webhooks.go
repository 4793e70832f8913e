package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pehlione.com/payrecon/internal/http/render"
	"pehlione.com/payrecon/internal/modules/payments"
	"pehlione.com/payrecon/internal/shared/apperr"
)

const maxCallbackBytes = 64 << 10

type WebhookHandler struct {
	Logger *slog.Logger
	Svc    *payments.WebhookService
	// Header carries the gateway's callback authentication value.
	Header string
}

func NewWebhookHandler(logger *slog.Logger, svc *payments.WebhookService, header string) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Svc: svc, Header: header}
}

// POST /webhooks/payment
// Body is read raw; the signature covers the exact bytes.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Fail(c, &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Callback body too large.", Err: err})
			return
		}
		render.Fail(c, apperr.InvalidErr("Invalid body.", nil))
		return
	}

	ack, err := h.Svc.Ingest(c.Request.Context(), c.GetHeader(h.Header), body)
	if err != nil {
		if !errors.Is(err, payments.ErrAuthenticity) && !errors.Is(err, payments.ErrMalformed) {
			// 500 so the gateway redelivers
			h.Logger.ErrorContext(c.Request.Context(), "webhook apply failed", "err", err)
		}
		render.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"status":    ack.Status,
		"order_ref": ack.OrderRef,
		"event_id":  ack.EventID,
	})
}

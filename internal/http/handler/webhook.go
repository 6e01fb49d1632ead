package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"calobot.app/bot/common/logger"
	"calobot.app/bot/internal/model"
	"calobot.app/bot/internal/platform"
)

// EventProcessor handles one parsed webhook event.
type EventProcessor interface {
	HandleEvent(ctx context.Context, ev model.Event) error
}

// SignatureValidator checks a webhook body against its signature header.
type SignatureValidator interface {
	ValidateSignature(body []byte, signature string) bool
}

type WebhookHandler struct {
	processor EventProcessor
	validator SignatureValidator
}

func NewWebhookHandler(processor EventProcessor, validator SignatureValidator) *WebhookHandler {
	return &WebhookHandler{processor: processor, validator: validator}
}

// HandleEvents receives a webhook delivery. Once the signature checks out the
// platform always gets a 200: processing failures are logged, never surfaced,
// so the platform does not retry or disable the webhook.
func (h *WebhookHandler) HandleEvents(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.validator.ValidateSignature(body, c.GetHeader("X-Line-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature validation failed"})
		return
	}

	events, err := platform.ParseWebhook(body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse webhook payload", "error", err)
		c.Status(http.StatusOK)
		return
	}

	for _, ev := range events {
		sc := logger.StartSpan(ctx, "webhook.process_event")
		if err := h.processor.HandleEvent(sc.Context(), ev); err != nil {
			sc.RecordError(err)
			slog.ErrorContext(sc.Context(), "failed to process event",
				"event_type", ev.Type, "user_id", ev.UserID, "error", err)
		}
		sc.End()
	}

	c.Status(http.StatusOK)
}

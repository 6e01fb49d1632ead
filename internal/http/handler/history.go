package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"calobot.app/bot/internal/model"
)

// DietHistoryReader serves the read side of the diet history.
type DietHistoryReader interface {
	TodayHistory(ctx context.Context, personID int64) ([]model.DietEntry, error)
}

type HistoryHandler struct {
	history DietHistoryReader
}

func NewHistoryHandler(history DietHistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// Today returns the person's diet entries for the current date.
func (h *HistoryHandler) Today(c *gin.Context) {
	ctx := c.Request.Context()

	personID, err := strconv.ParseInt(c.Param("person_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	entries, err := h.history.TodayHistory(ctx, personID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch today's history", "person_id", personID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch diet history"})
		return
	}
	if entries == nil {
		entries = []model.DietEntry{}
	}

	c.JSON(http.StatusOK, entries)
}

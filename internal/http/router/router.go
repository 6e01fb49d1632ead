package router

import (
	"github.com/gin-gonic/gin"

	"calobot.app/bot/internal/http/handler"
)

func SetupRoutes(router *gin.Engine, webhook *handler.WebhookHandler, history *handler.HistoryHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/webhook", webhook.HandleEvents)

	router.GET("/person/:person_id/diet_history/today", history.Today)
}

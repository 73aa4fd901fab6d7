package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/telemetry"
	"sociohiro-backend/internal/webhook"
	"sociohiro-backend/middleware"
	"sociohiro-backend/models"
)

const maxWebhookBody = 1 << 20

// EventDispatcher hands normalized webhook events to background processing.
type EventDispatcher interface {
	DispatchEvent(ctx context.Context, event models.InstagramEvent) error
}

func SetupWebhookRoutes(router *gin.Engine, cfg *config.Config, dispatcher EventDispatcher, metrics *telemetry.Metrics) {
	hooks := router.Group("/webhook")
	// Oversized deliveries are truncated and still acknowledged.
	hooks.Use(middleware.BodyCap(maxWebhookBody))

	for _, path := range []string{"", "/instagram"} {
		hooks.GET(path, handleWebhookVerify(cfg.WebhookVerifyToken))
		hooks.POST(path, handleWebhookEvent(dispatcher, metrics))
	}
}

func handleWebhookVerify(verifyToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if verifyToken != "" && token == verifyToken && (mode == "" || mode == "subscribe") {
			logger.Info("webhook verified")
			c.String(http.StatusOK, challenge)
			return
		}

		logger.Warn("webhook verification failed", "mode", mode)
		c.Status(http.StatusForbidden)
	}
}

func handleWebhookEvent(dispatcher EventDispatcher, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := middleware.Log(c)

		// Instagram disables subscriptions that keep failing, so every
		// outcome below still answers EVENT_RECEIVED.
		defer c.String(http.StatusOK, "EVENT_RECEIVED")

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				log.Warn("webhook body exceeds limit, dropped", "limit", tooLarge.Limit)
				return
			}
			log.Warn("failed to read webhook body", "error", err)
			return
		}

		events, err := webhook.Parse(body, time.Now().UTC())
		if err != nil {
			log.Warn("invalid webhook payload", "error", err)
			return
		}

		for _, event := range events {
			metrics.RecordWebhookEvent(string(event.Type))
			if err := dispatcher.DispatchEvent(c.Request.Context(), event); err != nil {
				log.Error("failed to dispatch webhook event",
					"event_id", event.ID,
					"account_id", event.AccountID,
					"type", event.Type,
					"error", err,
				)
			}
		}
		log.Info("webhook processed", "events", len(events))
	}
}

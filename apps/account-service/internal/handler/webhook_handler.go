package handler

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/dto"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/events"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/middleware"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/response"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.uber.org/zap"
)

const (
	// WebhookSecretHeader carries the shared secret of the auth platform
	WebhookSecretHeader = "X-Webhook-Secret"
	// WebhookIDHeader identifies a delivery; redeliveries reuse it
	WebhookIDHeader = "X-Webhook-ID"
)

// Revoker records a sign-out so older tokens stop verifying
type Revoker interface {
	Revoke(ctx context.Context, userID, sessionID string, at time.Time) error
}

// WebhookHandler receives auth state changes from the auth platform
type WebhookHandler struct {
	secret    string
	revoker   Revoker
	publisher events.Publisher
	log       *logger.Logger
	now       func() time.Time
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret accepts
// every caller.
func NewWebhookHandler(secret string, revoker Revoker, publisher events.Publisher, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Get()
	}
	return &WebhookHandler{
		secret:    secret,
		revoker:   revoker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the webhook. The secret is checked before the
// given middleware runs.
func (h *WebhookHandler) RegisterRoutes(r gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := make([]gin.HandlerFunc, 0, len(middleware)+2)
	handlers = append(handlers, h.RequireSecret())
	handlers = append(handlers, middleware...)
	handlers = append(handlers, h.ReceiveAuthEvent)
	r.POST("/api/v1/auth/events", handlers...)
}

// WebhookKey returns the delivery id used to dedupe redeliveries
func WebhookKey(c *gin.Context) string {
	return c.GetHeader(WebhookIDHeader)
}

// RequireSecret rejects callers without the shared webhook secret
func (h *WebhookHandler) RequireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			response.Unauthorized(c, "invalid webhook secret")
			return
		}
		c.Next()
	}
}

// ReceiveAuthEvent handles POST /api/v1/auth/events
// A sign-out is recorded before the event is published, so a reconnecting
// client cannot load the session with the old token.
func (h *WebhookHandler) ReceiveAuthEvent(c *gin.Context) {
	var req dto.AuthEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ev, err := req.ToEvent(h.now())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := h.log.With(zap.String("event", string(ev.Type)), zap.String("user_id", ev.UserID))

	if ev.Type == usersession.EventSignedOut && h.revoker != nil {
		if err := h.revoker.Revoke(ctx, ev.UserID, req.SessionID, ev.OccurredAt); err != nil {
			log.Error("Failed to record sign-out", zap.Error(err))
			response.ServiceUnavailable(c, "failed to record sign-out")
			return
		}
	}

	if err := h.publisher.Publish(ctx, ev); err != nil {
		log.Error("Failed to publish auth event", zap.Error(err))
		response.ServiceUnavailable(c, "failed to publish auth event")
		return
	}

	deliveryID, ok := middleware.GetIdempotencyKey(c)
	if !ok {
		deliveryID = WebhookKey(c)
	}
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	log.Info("Auth event accepted", zap.String("delivery_id", deliveryID))

	response.Accepted(c, dto.AuthEventAccepted{
		DeliveryID: deliveryID,
		Event:      ev.Type,
		UserID:     ev.UserID,
	})
}

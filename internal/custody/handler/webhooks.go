package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
	"github.com/jmerrifield20/ChainOfCustody/internal/webhooks"
	"go.uber.org/zap"
)

// WebhookHandler manages event subscriptions.
type WebhookHandler struct {
	svc    *webhooks.Service
	tokens *identity.CallerTokenIssuer
	logger *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc *webhooks.Service, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the webhook routes on the given router group. Every route
// is scoped to the calling identity.
func (h *WebhookHandler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	wh.Use(identity.RequireCaller(h.tokens))
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.GET("/deliveries", h.ListDeliveries)
		wh.DELETE("/:id", h.DeleteSubscription)
	}
}

// CreateSubscription handles POST /webhooks.
func (h *WebhookHandler) CreateSubscription(c *gin.Context) {
	var req webhooks.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), identity.CallerFromCtx(c), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// The secret is returned once so the subscriber can verify signatures.
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
	})
}

// ListSubscriptions handles GET /webhooks: the caller's own subscriptions.
func (h *WebhookHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.svc.ListByOwner(c.Request.Context(), identity.CallerFromCtx(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if subs == nil {
		subs = []*webhooks.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// ListDeliveries handles GET /webhooks/deliveries?limit=N.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	ds, err := h.svc.RecentDeliveries(c.Request.Context(), identity.CallerFromCtx(c), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": ds, "count": len(ds)})
}

// DeleteSubscription handles DELETE /webhooks/:id.
func (h *WebhookHandler) DeleteSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid subscription id")
		return
	}
	if err := h.svc.Unsubscribe(c.Request.Context(), identity.CallerFromCtx(c), subID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

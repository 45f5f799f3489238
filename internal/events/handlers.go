package events

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/idgen"
	"github.com/matchpit/bounty/internal/security"
	"github.com/matchpit/bounty/internal/validation"
)

// Handler provides HTTP endpoints for webhook subscription management.
type Handler struct {
	store Store
}

// NewHandler creates a webhook subscription handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up webhook subscription routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/:userId/webhooks", h.CreateSubscription)
	r.GET("/users/:userId/webhooks", h.ListSubscriptions)
	r.DELETE("/users/:userId/webhooks/:webhookId", h.DeleteSubscription)
}

// CreateSubscriptionRequest registers a webhook endpoint.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// CreateSubscription handles POST /v1/users/:userId/webhooks
func (h *Handler) CreateSubscription(c *gin.Context) {
	userID := c.Param("userId")
	if userID != c.GetString("authUserID") {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Can only manage your own webhooks",
		})
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidEvidenceURL(req.URL) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "url must be a well-formed http(s) URL",
		})
		return
	}
	if err := security.ValidateWebhookURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	types := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		t := EventType(e)
		if !IsKnownEventType(t) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "unknown event type: " + e,
			})
			return
		}
		types = append(types, t)
	}

	secret := generateSecret()
	sub := &Subscription{
		ID:        idgen.WithPrefix("whk_"),
		UserID:    userID,
		URL:       req.URL,
		Secret:    secret,
		Events:    types,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  secret, // Only shown once
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Matchpit-Signature",
		},
	})
}

// ListSubscriptions handles GET /v1/users/:userId/webhooks
func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID := c.Param("userId")
	if userID != c.GetString("authUserID") {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Can only manage your own webhooks",
		})
		return
	}

	subs, err := h.store.GetByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list webhooks",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"webhooks": subs,
		"count":    len(subs),
	})
}

// DeleteSubscription handles DELETE /v1/users/:userId/webhooks/:webhookId
func (h *Handler) DeleteSubscription(c *gin.Context) {
	userID := c.Param("userId")
	if userID != c.GetString("authUserID") {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Can only manage your own webhooks",
		})
		return
	}

	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil || sub.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Webhook not found",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/validation"
)

// Handler provides HTTP endpoints for API key management.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up the open registration route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/register", h.Register)
}

// RegisterProtectedRoutes sets up key management routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/users/:userId/keys", RequireSelf("userId"), h.ListKeys)
	r.DELETE("/users/:userId/keys/:keyId", RequireSelf("userId"), h.RevokeKey)
}

// RegisterRequest creates the initial API key for a player.
type RegisterRequest struct {
	UserID string `json:"userId" binding:"required"`
	Name   string `json:"name"`
}

// Register handles POST /v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "userId must be a valid user identifier",
		})
		return
	}
	if req.Name == "" {
		req.Name = "default"
	}

	rawKey, key, err := h.manager.GenerateKey(c.Request.Context(), req.UserID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "key_generation_failed",
			"message": "Failed to generate API key",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey": key,
		"key":    rawKey, // Only shown once
		"usage":  "Include 'Authorization: Bearer " + rawKey[:8] + "...' on requests",
	})
}

// ListKeys handles GET /v1/users/:userId/keys
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.manager.ListKeys(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list API keys",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":  keys,
		"count": len(keys),
	})
}

// RevokeKey handles DELETE /v1/users/:userId/keys/:keyId
func (h *Handler) RevokeKey(c *gin.Context) {
	err := h.manager.RevokeKey(c.Request.Context(), c.Param("keyId"), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "API key not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "revoke_failed",
			"message": "Failed to revoke API key",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

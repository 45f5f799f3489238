package arbitration

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/auth"
	"github.com/matchpit/bounty/internal/bounty"
)

// Handler provides HTTP endpoints for dispute arbitration.
type Handler struct {
	service *bounty.Service
	roster  *Roster
}

// NewHandler creates an arbitration handler.
func NewHandler(service *bounty.Service, roster *Roster) *Handler {
	return &Handler{service: service, roster: roster}
}

// RegisterRoutes sets up moderator-gated arbitration routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	mod := r.Group("", auth.RequireModerator(h.roster.IsModerator))
	mod.GET("/disputes/:disputeId", h.GetDispute)
	mod.POST("/disputes/:disputeId/resolve", h.ResolveDispute)
}

// GetDispute handles GET /v1/disputes/:disputeId
func (h *Handler) GetDispute(c *gin.Context) {
	d, err := h.service.GetDispute(c.Request.Context(), c.Param("disputeId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Dispute not found",
		})
		return
	}

	resp := gin.H{"dispute": d}
	if snap, err := h.service.Get(c.Request.Context(), d.WagerID); err == nil {
		resp["wager"] = snap
		if proofs, err := h.service.ListProofs(c.Request.Context(), d.WagerID); err == nil {
			resp["proofs"] = proofs
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ResolveRequest carries a moderator ruling.
type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// ResolveDispute handles POST /v1/disputes/:disputeId/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	moderator := auth.GetAuthenticatedUser(c)
	snap, err := h.service.ResolveDispute(c.Request.Context(), c.Param("disputeId"), moderator, req.Resolution)
	if err != nil {
		bounty.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

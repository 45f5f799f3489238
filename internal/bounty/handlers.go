package bounty

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/escrow"
	"github.com/matchpit/bounty/internal/validation"
)

// Handler provides HTTP endpoints for wager operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new wager handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) wager routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wagers/:wagerId", validation.WagerIDParamMiddleware(), h.GetWager)
	r.GET("/wagers/:wagerId/proofs", validation.WagerIDParamMiddleware(), h.ListProofs)
	r.GET("/users/:userId/wagers", h.ListActiveWagers)
}

// RegisterProtectedRoutes sets up wager routes requiring an
// authenticated player identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/wagers", h.CreateWager)
	wager := r.Group("/wagers/:wagerId", validation.WagerIDParamMiddleware())
	wager.POST("/accept", h.AcceptWager)
	wager.POST("/start", h.StartWager)
	wager.POST("/proof", h.SubmitProof)
	wager.POST("/dispute", h.OpenDispute)
	wager.POST("/cancel", h.CancelWager)
}

// CreateWager handles POST /v1/wagers
func (h *Handler) CreateWager(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.Creator = c.GetString("authUserID")
	req.Game = validation.SanitizeString(req.Game, 100)
	req.Description = validation.SanitizeString(req.Description, 1000)

	checks := []func() *validation.ValidationError{
		validation.Required("creator", req.Creator),
		validation.ValidUserID("creator", req.Creator),
		validation.Required("game", req.Game),
		validation.PositiveAmount("stake", req.Stake),
	}
	if req.TargetUser != "" {
		checks = append(checks, validation.ValidUserID("targetUser", req.TargetUser))
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	snap, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wager": snap})
}

// GetWager handles GET /v1/wagers/:wagerId
func (h *Handler) GetWager(c *gin.Context) {
	snap, err := h.service.Get(c.Request.Context(), c.Param("wagerId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

// ListProofs handles GET /v1/wagers/:wagerId/proofs
func (h *Handler) ListProofs(c *gin.Context) {
	proofs, err := h.service.ListProofs(c.Request.Context(), c.Param("wagerId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"proofs": proofs,
		"count":  len(proofs),
	})
}

// ListActiveWagers handles GET /v1/users/:userId/wagers
func (h *Handler) ListActiveWagers(c *gin.Context) {
	userID := c.Param("userId")
	if errs := validation.Validate(
		validation.Required("userId", userID),
		validation.ValidUserID("userId", userID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	snaps, err := h.service.ListActive(c.Request.Context(), userID, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wagers": snaps,
		"count":  len(snaps),
	})
}

// AcceptWager handles POST /v1/wagers/:wagerId/accept
func (h *Handler) AcceptWager(c *gin.Context) {
	snap, err := h.service.Accept(c.Request.Context(), c.Param("wagerId"), c.GetString("authUserID"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

// StartWager handles POST /v1/wagers/:wagerId/start
func (h *Handler) StartWager(c *gin.Context) {
	snap, err := h.service.Start(c.Request.Context(), c.Param("wagerId"), c.GetString("authUserID"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

// SubmitProof handles POST /v1/wagers/:wagerId/proof
func (h *Handler) SubmitProof(c *gin.Context) {
	var req SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.WagerID = c.Param("wagerId")
	req.Submitter = c.GetString("authUserID")

	if errs := validation.Validate(
		validation.Required("claimedWinner", req.ClaimedWinner),
		validation.ValidUserID("claimedWinner", req.ClaimedWinner),
		validation.ValidEvidenceURLs("evidenceUrls", req.EvidenceURLs),
		validation.MaxLength("evidenceType", req.EvidenceType, 50),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	snap, err := h.service.SubmitProof(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

// OpenDispute handles POST /v1/wagers/:wagerId/dispute
func (h *Handler) OpenDispute(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, 1000)

	dispute, err := h.service.OpenDispute(c.Request.Context(), c.Param("wagerId"), c.GetString("authUserID"), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": dispute})
}

// CancelWager handles POST /v1/wagers/:wagerId/cancel
func (h *Handler) CancelWager(c *gin.Context) {
	snap, err := h.service.Cancel(c.Request.Context(), c.Param("wagerId"), c.GetString("authUserID"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wager": snap})
}

// RespondError maps domain errors onto the HTTP error taxonomy.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Wager not found",
		})
	case errors.Is(err, ErrDisputeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Dispute not found",
		})
	case errors.Is(err, ErrInvalidStake),
		errors.Is(err, ErrSelfWager),
		errors.Is(err, ErrNotTargeted),
		errors.Is(err, ErrInvalidProof),
		errors.Is(err, ErrOwnProof),
		errors.Is(err, ErrInvalidResolution):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNotCreator), errors.Is(err, ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": err.Error(),
		})
	case errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrProofAlreadySubmitted),
		errors.Is(err, ErrAlreadyDisputed),
		errors.Is(err, ErrDisputeResolved),
		errors.Is(err, ErrDisputeWindowClosed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "state_conflict",
			"message": err.Error(),
		})
	case errors.Is(err, escrow.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "insufficient_funds",
			"message": "Stake exceeds available balance",
		})
	case errors.Is(err, escrow.ErrEscrowUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "escrow_unavailable",
			"message": "Escrow temporarily unavailable, retry shortly",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}

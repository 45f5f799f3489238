package wallet

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/idgen"
	"github.com/matchpit/bounty/internal/pagination"
	"github.com/matchpit/bounty/internal/validation"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	wallet *Service
	logger *slog.Logger
}

// NewHandler creates a new wallet handler
func NewHandler(wallet *Service, logger *slog.Logger) *Handler {
	return &Handler{wallet: wallet, logger: logger}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:userId/balance", h.GetBalance)
	r.GET("/users/:userId/ledger", h.GetHistory)
}

// RegisterAdminRoutes sets up admin-only wallet routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/deposits", h.Deposit)
}

// GetBalance handles GET /users/:userId/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("userId")
	if !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid user id",
		})
		return
	}

	balance, err := h.wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": balance,
	})
}

// GetHistory handles GET /users/:userId/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")
	if !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid user id",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	entries, next, err := h.wallet.GetHistory(c.Request.Context(), userID, c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "invalid cursor",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve ledger history",
		})
		return
	}

	resp := gin.H{
		"entries": entries,
		"hasMore": next != "",
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// DepositRequest for manual deposit recording (admin use)
type DepositRequest struct {
	UserID string `json:"userId" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// Deposit handles POST /admin/deposits
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidUserID("userId", req.UserID),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	ref := idgen.WithPrefix("dep_")
	if err := h.wallet.Deposit(c.Request.Context(), req.UserID, req.Amount, ref); err != nil {
		h.logger.Error("deposit failed", "user", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "deposit_error",
			"message": "Failed to record deposit",
		})
		return
	}

	h.logger.Info("deposit recorded", "user", req.UserID, "amount", req.Amount, "ref", ref)
	c.JSON(http.StatusCreated, gin.H{
		"userId":    req.UserID,
		"amount":    req.Amount,
		"reference": ref,
	})
}

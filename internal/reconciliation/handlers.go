package reconciliation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes on-demand reconciliation to operators.
type Handler struct {
	runner *Runner
}

// NewHandler creates a reconciliation handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterAdminRoutes sets up admin reconciliation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/reconcile", h.Run)
}

// Run handles POST /admin/reconcile
func (h *Handler) Run(c *gin.Context) {
	report, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reconciliation_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

package backup

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the backup worker over the admin API
type Handler struct {
	worker *Worker
	logger *zap.Logger
}

// NewHandler creates a new backup handler. worker may be nil when backups
// are disabled.
func NewHandler(worker *Worker, logger *zap.Logger) *Handler {
	return &Handler{worker: worker, logger: logger}
}

// RegisterRoutes registers the backup endpoints on an admin route group
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/backup/trigger", h.Trigger)
	r.GET("/backup/stats", h.GetStats)
	r.GET("/backup/history", h.History)
}

// Trigger handles POST /admin/backup/trigger
func (h *Handler) Trigger(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "backups are disabled"})
		return
	}
	if err := h.worker.Run(c.Request.Context()); err != nil {
		h.logger.Error("Manual backup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.worker.Stats())
}

// GetStats handles GET /admin/backup/stats
func (h *Handler) GetStats(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusOK, Stats{Enabled: false})
		return
	}
	c.JSON(http.StatusOK, h.worker.Stats())
}

// History handles GET /admin/backup/history
func (h *Handler) History(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []RunRecord{}})
		return
	}
	runs, err := h.worker.History()
	if err != nil {
		h.logger.Error("Failed to read backup history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

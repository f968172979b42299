package activity

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/audit"
	apperrors "github.com/scimtool/scimtool/internal/common/errors"
)

// Handler exposes the activity feed over the admin API
type Handler struct {
	parser *Parser
	logs   audit.Store
	logger *zap.Logger
}

// NewHandler creates a new activity handler
func NewHandler(parser *Parser, logs audit.Store, logger *zap.Logger) *Handler {
	return &Handler{parser: parser, logs: logs, logger: logger}
}

// RegisterRoutes registers the feed endpoint on an admin route group
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/activity", h.Feed)
}

// Feed handles GET /admin/activity. It reads the most recent request logs
// and renders them as provisioning events.
func (h *Handler) Feed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, _, err := h.logs.List(c.Request.Context(), audit.Query{
		Limit:         limit,
		HideKeepalive: true,
	})
	if err != nil {
		h.logger.Error("Failed to load request logs for activity feed", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("load activity feed", err))
		return
	}

	events := h.parser.Parse(c.Request.Context(), logs)
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}

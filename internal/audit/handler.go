package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/scimtool/scimtool/internal/common/errors"
)

// Handler exposes the stored request log over the admin API
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a new audit log handler
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers the log endpoints on an admin route group
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/logs", h.ListLogs)
	r.GET("/logs/:id", h.GetLog)
	r.POST("/logs/clear", h.ClearLogs)
}

// ListLogs handles GET /admin/logs
func (h *Handler) ListLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	q := Query{
		Method:        c.Query("method"),
		URLContains:   c.Query("urlContains"),
		Search:        c.Query("search"),
		IncludeAdmin:  c.Query("includeAdmin") == "true",
		HideKeepalive: c.Query("hideKeepalive") == "true",
		Offset:        (page - 1) * pageSize,
		Limit:         pageSize,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		q.Status, _ = strconv.Atoi(statusStr)
	}
	if hasErrStr := c.Query("hasError"); hasErrStr != "" {
		hasErr := hasErrStr == "true"
		q.HasError = &hasErr
	}
	if since, err := time.Parse(time.RFC3339, c.Query("since")); err == nil {
		q.Since = &since
	}
	if until, err := time.Parse(time.RFC3339, c.Query("until")); err == nil {
		q.Until = &until
	}

	logs, total, err := h.store.List(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("Failed to list request logs", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("list request logs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetLog handles GET /admin/logs/:id
func (h *Handler) GetLog(c *gin.Context) {
	entry, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			apperrors.HandleError(c, apperrors.NotFound("Log entry"))
			return
		}
		h.logger.Error("Failed to get request log", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("get request log", err))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ClearLogs handles POST /admin/logs/clear
func (h *Handler) ClearLogs(c *gin.Context) {
	removed, err := h.store.Clear(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to clear request logs", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("clear request logs", err))
		return
	}

	h.logger.Info("Request log cleared", zap.Int("removed", removed))
	c.JSON(http.StatusOK, gin.H{"cleared": removed})
}

// Package admin exposes the operator-facing API: database browser,
// statistics, manual provisioning, and build information.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/audit"
	apperrors "github.com/scimtool/scimtool/internal/common/errors"
	"github.com/scimtool/scimtool/internal/scim"
)

// Handler serves the admin endpoints
type Handler struct {
	store  scim.Store
	users  *scim.UserService
	groups *scim.GroupService
	logs   audit.Store
	logger *zap.Logger
	prefix string
}

// NewHandler creates a new admin handler. prefix is the SCIM mount path,
// used to build meta.location values for manually provisioned resources.
func NewHandler(store scim.Store, users *scim.UserService, groups *scim.GroupService, logs audit.Store, logger *zap.Logger, prefix string) *Handler {
	return &Handler{store: store, users: users, groups: groups, logs: logs, logger: logger, prefix: prefix}
}

// RegisterRoutes registers the admin endpoints on an admin route group
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/database/users", h.BrowseUsers)
	r.GET("/database/users/:id", h.UserDetail)
	r.GET("/database/groups", h.BrowseGroups)
	r.GET("/database/groups/:id", h.GroupDetail)
	r.GET("/database/statistics", h.Statistics)
	r.POST("/users/manual", h.CreateUserManual)
	r.POST("/groups/manual", h.CreateGroupManual)
	r.GET("/version", h.Version)
}

func pageParams(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize, (page - 1) * pageSize
}

// BrowseUsers handles GET /admin/database/users
func (h *Handler) BrowseUsers(c *gin.Context) {
	page, pageSize, offset := pageParams(c)

	users, total, err := h.store.SearchUsers(c.Request.Context(), c.Query("search"), offset, pageSize)
	if err != nil {
		h.logger.Error("Failed to browse users", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("browse users", err))
		return
	}

	rows := make([]gin.H, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow(u))
	}
	c.JSON(http.StatusOK, gin.H{
		"users":    rows,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// UserDetail handles GET /admin/database/users/:id. The response carries the
// stored record plus the groups the user belongs to.
func (h *Handler) UserDetail(c *gin.Context) {
	id := c.Param("id")
	user, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		if err == scim.ErrNotFound {
			apperrors.HandleError(c, apperrors.NotFound("User"))
			return
		}
		h.logger.Error("Failed to load user", zap.String("id", id), zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("get user", err))
		return
	}

	groups, err := h.store.GroupsOfUser(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load user groups", zap.String("id", id), zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("get user groups", err))
		return
	}

	row := userRow(user)
	row["attributes"] = user.Attributes
	row["groups"] = groups
	c.JSON(http.StatusOK, row)
}

// BrowseGroups handles GET /admin/database/groups
func (h *Handler) BrowseGroups(c *gin.Context) {
	page, pageSize, offset := pageParams(c)

	groups, total, err := h.store.SearchGroups(c.Request.Context(), c.Query("search"), offset, pageSize)
	if err != nil {
		h.logger.Error("Failed to browse groups", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("browse groups", err))
		return
	}

	rows := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, groupRow(g))
	}
	c.JSON(http.StatusOK, gin.H{
		"groups":   rows,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GroupDetail handles GET /admin/database/groups/:id
func (h *Handler) GroupDetail(c *gin.Context) {
	id := c.Param("id")
	group, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		if err == scim.ErrNotFound {
			apperrors.HandleError(c, apperrors.NotFound("Group"))
			return
		}
		h.logger.Error("Failed to load group", zap.String("id", id), zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("get group", err))
		return
	}

	row := groupRow(group)
	row["members"] = group.Members
	c.JSON(http.StatusOK, row)
}

// Statistics handles GET /admin/database/statistics
func (h *Handler) Statistics(c *gin.Context) {
	ctx := c.Request.Context()

	userCount, err := h.store.CountUsers(ctx)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("count users", err))
		return
	}
	groupCount, err := h.store.CountGroups(ctx)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("count groups", err))
		return
	}
	logCount, err := h.logs.Count(ctx)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("count logs", err))
		return
	}
	logsLastDay, err := h.logs.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("count recent logs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":           userCount,
		"groups":          groupCount,
		"requestLogs":     logCount,
		"requestsLast24h": logsLastDay,
	})
}

func userRow(u *scim.User) gin.H {
	return gin.H{
		"id":         u.SCIMID,
		"userName":   u.UserName,
		"externalId": u.ExternalID,
		"active":     u.Active,
		"createdAt":  u.CreatedAt,
		"updatedAt":  u.UpdatedAt,
	}
}

func groupRow(g *scim.Group) gin.H {
	return gin.H{
		"id":          g.SCIMID,
		"displayName": g.DisplayName,
		"memberCount": len(g.Members),
		"createdAt":   g.CreatedAt,
		"updatedAt":   g.UpdatedAt,
	}
}

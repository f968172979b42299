package scim

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/common/middleware"
)

// Handler exposes the SCIM 2.0 HTTP surface
type Handler struct {
	users  *UserService
	groups *GroupService
	logger *zap.Logger
	prefix string
}

// NewHandler creates a new SCIM handler. prefix is the mount path for the
// endpoint, e.g. "/scim/v2".
func NewHandler(users *UserService, groups *GroupService, logger *zap.Logger, prefix string) *Handler {
	return &Handler{users: users, groups: groups, logger: logger, prefix: prefix}
}

// RegisterRoutes registers SCIM 2.0 endpoints with the Gin router
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	// Bearer token authentication is handled by middleware before these routes

	// User endpoints (RFC 7644 Section 3.3)
	users := r.Group(h.prefix + "/Users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.ReplaceUser)
		users.PATCH("/:id", h.PatchUser)
		users.DELETE("/:id", h.DeleteUser)
	}

	// Group endpoints (RFC 7644 Section 3.3)
	groups := r.Group(h.prefix + "/Groups")
	{
		groups.GET("", h.ListGroups)
		groups.POST("", h.CreateGroup)
		groups.GET("/:id", h.GetGroup)
		groups.PUT("/:id", h.ReplaceGroup)
		groups.PATCH("/:id", h.PatchGroup)
		groups.DELETE("/:id", h.DeleteGroup)
	}

	// Discovery endpoints (RFC 7644 Section 4)
	r.GET(h.prefix+"/ServiceProviderConfig", h.ServiceProviderConfig)
	r.GET(h.prefix+"/ResourceTypes", h.ResourceTypes)
	r.GET(h.prefix+"/Schemas", h.Schemas)
}

// ----------------------------------------------------------------
// User endpoints
// ----------------------------------------------------------------

// ListUsers handles GET /Users with filtering and pagination
// Implements RFC 7644 Section 3.4.2
func (h *Handler) ListUsers(c *gin.Context) {
	startIndex := h.parseStartIndex(c)
	count := h.parseCount(c)

	users, total, err := h.users.List(c.Request.Context(), c.Query("filter"), startIndex, count)
	if err != nil {
		h.writeError(c, "User", "list", err)
		return
	}

	baseURL := h.baseURL(c)
	resources := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		resources = append(resources, u.Resource(baseURL))
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "list", "success").Inc()
	c.JSON(http.StatusOK, NewListResponse(resources, total, startIndex))
}

// CreateUser handles POST /Users
// Implements RFC 7644 Section 3.3
func (h *Handler) CreateUser(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, "User", "create", ErrInvalidValue("Invalid request body."))
		return
	}

	user, err := h.users.Create(c.Request.Context(), payload)
	if err != nil {
		h.writeError(c, "User", "create", err)
		return
	}

	resource := user.Resource(h.baseURL(c))
	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "create", "success").Inc()
	c.Header("Location", resource["meta"].(Meta).Location)
	c.JSON(http.StatusCreated, resource)
}

// GetUser handles GET /Users/:id
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "User", "get", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "get", "success").Inc()
	c.JSON(http.StatusOK, user.Resource(h.baseURL(c)))
}

// ReplaceUser handles PUT /Users/:id
// Implements RFC 7644 Section 3.5.1
func (h *Handler) ReplaceUser(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, "User", "replace", ErrInvalidValue("Invalid request body."))
		return
	}

	user, err := h.users.Replace(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		h.writeError(c, "User", "replace", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "replace", "success").Inc()
	c.JSON(http.StatusOK, user.Resource(h.baseURL(c)))
}

// PatchUser handles PATCH /Users/:id
// Implements RFC 7644 Section 3.5.2
func (h *Handler) PatchUser(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, "User", "patch", ErrInvalidValue("Invalid PatchOp body."))
		return
	}

	user, err := h.users.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, "User", "patch", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "patch", "success").Inc()
	c.JSON(http.StatusOK, user.Resource(h.baseURL(c)))
}

// DeleteUser handles DELETE /Users/:id
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "User", "delete", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("User", "delete", "success").Inc()
	c.Status(http.StatusNoContent)
}

// ----------------------------------------------------------------
// Group endpoints
// ----------------------------------------------------------------

// ListGroups handles GET /Groups with filtering and pagination
func (h *Handler) ListGroups(c *gin.Context) {
	startIndex := h.parseStartIndex(c)
	count := h.parseCount(c)

	groups, total, err := h.groups.List(c.Request.Context(), c.Query("filter"), startIndex, count)
	if err != nil {
		h.writeError(c, "Group", "list", err)
		return
	}

	baseURL := h.baseURL(c)
	resources := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		resources = append(resources, g.Resource(baseURL))
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "list", "success").Inc()
	c.JSON(http.StatusOK, NewListResponse(resources, total, startIndex))
}

// CreateGroup handles POST /Groups
func (h *Handler) CreateGroup(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, "Group", "create", ErrInvalidValue("Invalid request body."))
		return
	}

	group, err := h.groups.Create(c.Request.Context(), payload)
	if err != nil {
		h.writeError(c, "Group", "create", err)
		return
	}

	resource := group.Resource(h.baseURL(c))
	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "create", "success").Inc()
	c.Header("Location", resource["meta"].(Meta).Location)
	c.JSON(http.StatusCreated, resource)
}

// GetGroup handles GET /Groups/:id
func (h *Handler) GetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Group", "get", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "get", "success").Inc()
	c.JSON(http.StatusOK, group.Resource(h.baseURL(c)))
}

// ReplaceGroup handles PUT /Groups/:id
func (h *Handler) ReplaceGroup(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, "Group", "replace", ErrInvalidValue("Invalid request body."))
		return
	}

	group, err := h.groups.Replace(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		h.writeError(c, "Group", "replace", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "replace", "success").Inc()
	c.JSON(http.StatusOK, group.Resource(h.baseURL(c)))
}

// PatchGroup handles PATCH /Groups/:id. Responds 204 without a body; Entra
// accepts this and it avoids re-rendering large member sets.
func (h *Handler) PatchGroup(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, "Group", "patch", ErrInvalidValue("Invalid PatchOp body."))
		return
	}

	if _, err := h.groups.Patch(c.Request.Context(), c.Param("id"), req); err != nil {
		h.writeError(c, "Group", "patch", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "patch", "success").Inc()
	c.Status(http.StatusNoContent)
}

// DeleteGroup handles DELETE /Groups/:id
func (h *Handler) DeleteGroup(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "Group", "delete", err)
		return
	}

	middleware.ProvisioningOperationsTotal.WithLabelValues("Group", "delete", "success").Inc()
	c.Status(http.StatusNoContent)
}

// ----------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------

// parseStartIndex parses the startIndex query parameter (1-indexed per SCIM spec)
func (h *Handler) parseStartIndex(c *gin.Context) int {
	startIndexStr := c.DefaultQuery("startIndex", "1")
	startIndex, err := strconv.Atoi(startIndexStr)
	if err != nil || startIndex < 1 {
		return 1
	}
	return startIndex
}

// parseCount parses the count query parameter. Invalid values fall back to
// the default; values above the server maximum are capped; zero and negative
// values are honored as an empty page request.
func (h *Handler) parseCount(c *gin.Context) int {
	countStr := c.DefaultQuery("count", strconv.Itoa(DefaultCount))
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return DefaultCount
	}
	if count > MaxCount {
		return MaxCount
	}
	if count < 0 {
		return 0
	}
	return count
}

// baseURL returns the base URL for meta.location, honoring forwarding proxy
// headers so locations match what the IdP dialed.
func (h *Handler) baseURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, h.prefix)
}

// writeError renders any error as an RFC 7644 error body
func (h *Handler) writeError(c *gin.Context, resource, operation string, err error) {
	scimErr := AsError(err)
	if scimErr.StatusCode() >= http.StatusInternalServerError {
		h.logger.Error("SCIM operation failed",
			zap.String("resource", resource),
			zap.String("operation", operation),
			zap.Error(err))
	} else {
		h.logger.Debug("SCIM request rejected",
			zap.String("resource", resource),
			zap.String("operation", operation),
			zap.String("detail", scimErr.Detail))
	}
	middleware.ProvisioningOperationsTotal.WithLabelValues(resource, operation, "error").Inc()
	c.JSON(scimErr.StatusCode(), scimErr)
}

package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/scimtool/scimtool/internal/common/errors"
	"github.com/scimtool/scimtool/internal/scim"
)

// manualUserRequest is the operator-facing shape for creating a user without
// going through the IdP
type manualUserRequest struct {
	UserName   string `json:"userName" binding:"required"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Email      string `json:"email"`
	ExternalID string `json:"externalId"`
	Department string `json:"department"`
	Active     *bool  `json:"active"`
}

// manualGroupRequest is the operator-facing shape for creating a group
type manualGroupRequest struct {
	DisplayName string   `json:"displayName" binding:"required"`
	ID          string   `json:"id"`
	Members     []string `json:"members"`
}

// CreateUserManual handles POST /admin/users/manual. The request is expanded
// to a canonical SCIM payload so manually created users look exactly like
// IdP-provisioned ones.
func (h *Handler) CreateUserManual(c *gin.Context) {
	var req manualUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("userName is required"))
		return
	}

	payload := map[string]interface{}{
		"schemas":  []interface{}{scim.SchemaUser},
		"userName": req.UserName,
	}
	if req.ExternalID != "" {
		payload["externalId"] = req.ExternalID
	}
	if req.Active != nil {
		payload["active"] = *req.Active
	}
	if req.GivenName != "" || req.FamilyName != "" {
		name := map[string]interface{}{}
		if req.GivenName != "" {
			name["givenName"] = req.GivenName
		}
		if req.FamilyName != "" {
			name["familyName"] = req.FamilyName
		}
		name["formatted"] = strings.TrimSpace(req.GivenName + " " + req.FamilyName)
		payload["name"] = name
		payload["displayName"] = name["formatted"]
	}
	if req.Email != "" {
		payload["emails"] = []interface{}{
			map[string]interface{}{"value": req.Email, "type": "work", "primary": true},
		}
	}
	if req.Department != "" {
		payload["schemas"] = []interface{}{scim.SchemaUser, scim.SchemaEnterpriseUser}
		payload[scim.SchemaEnterpriseUser] = map[string]interface{}{
			"department": req.Department,
		}
	}

	user, err := h.users.Create(c.Request.Context(), payload)
	if err != nil {
		writeProvisioningError(c, err)
		return
	}

	h.logger.Info("User created manually", zap.String("userName", user.UserName))
	c.JSON(http.StatusCreated, user.Resource(h.scimBaseURL(c)))
}

// CreateGroupManual handles POST /admin/groups/manual
func (h *Handler) CreateGroupManual(c *gin.Context) {
	var req manualGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("displayName is required"))
		return
	}

	payload := map[string]interface{}{
		"schemas":     []interface{}{scim.SchemaGroup},
		"displayName": req.DisplayName,
	}
	if req.ID != "" {
		payload["id"] = req.ID
	}
	if len(req.Members) > 0 {
		members := make([]interface{}, 0, len(req.Members))
		for _, id := range req.Members {
			members = append(members, map[string]interface{}{"value": id})
		}
		payload["members"] = members
	}

	group, err := h.groups.Create(c.Request.Context(), payload)
	if err != nil {
		writeProvisioningError(c, err)
		return
	}

	h.logger.Info("Group created manually", zap.String("displayName", group.DisplayName))
	c.JSON(http.StatusCreated, group.Resource(h.scimBaseURL(c)))
}

// writeProvisioningError maps provisioning failures onto the admin API's
// error shape while keeping the SCIM status code
func writeProvisioningError(c *gin.Context, err error) {
	scimErr := scim.AsError(err)
	c.JSON(scimErr.StatusCode(), gin.H{"error": scimErr.Detail})
}

// scimBaseURL mirrors the SCIM handler's base URL derivation so manual
// responses carry usable meta.location values
func (h *Handler) scimBaseURL(c *gin.Context) string {
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
	return scheme + "://" + host + h.prefix
}

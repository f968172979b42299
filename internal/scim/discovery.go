package scim

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceProviderConfig handles GET /ServiceProviderConfig (RFC 7644 Section 4)
func (h *Handler) ServiceProviderConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schemas":      []string{SchemaServiceConfig},
		"documentationUri": "https://tools.ietf.org/html/rfc7644",
		"patch": gin.H{
			"supported": true,
		},
		"bulk": gin.H{
			"supported":      false,
			"maxOperations":  0,
			"maxPayloadSize": 0,
		},
		"filter": gin.H{
			"supported":  true,
			"maxResults": MaxCount,
		},
		"changePassword": gin.H{
			"supported": false,
		},
		"sort": gin.H{
			"supported": false,
		},
		"etag": gin.H{
			"supported": true,
		},
		"authenticationSchemes": []gin.H{
			{
				"type":        "oauthbearertoken",
				"name":        "OAuth Bearer Token",
				"description": "Authentication using Bearer Token",
				"specUri":     "http://www.rfc-editor.org/info/rfc6750",
				"primary":     true,
			},
		},
		"meta": gin.H{
			"resourceType": "ServiceProviderConfig",
			"location":     h.baseURL(c) + "/ServiceProviderConfig",
		},
	})
}

// ResourceTypes handles GET /ResourceTypes
func (h *Handler) ResourceTypes(c *gin.Context) {
	baseURL := h.baseURL(c)

	resourceTypes := []map[string]interface{}{
		{
			"schemas":     []string{"urn:ietf:params:scim:schemas:core:2.0:ResourceType"},
			"id":          ResourceTypeUser,
			"name":        ResourceTypeUser,
			"endpoint":    baseURL + "/Users",
			"description": "User Account",
			"schema":      SchemaUser,
			"schemaExtensions": []gin.H{
				{"schema": SchemaEnterpriseUser, "required": false},
			},
		},
		{
			"schemas":     []string{"urn:ietf:params:scim:schemas:core:2.0:ResourceType"},
			"id":          ResourceTypeGroup,
			"name":        ResourceTypeGroup,
			"endpoint":    baseURL + "/Groups",
			"description": "Group",
			"schema":      SchemaGroup,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"schemas":      []string{SchemaListResponse},
		"totalResults": len(resourceTypes),
		"itemsPerPage": len(resourceTypes),
		"startIndex":   1,
		"Resources":    resourceTypes,
	})
}

// Schemas handles GET /Schemas
func (h *Handler) Schemas(c *gin.Context) {
	schemas := []map[string]interface{}{
		{
			"schemas":     []string{"urn:ietf:params:scim:schemas:core:2.0:Schema"},
			"id":          SchemaUser,
			"name":        ResourceTypeUser,
			"description": "User Account",
		},
		{
			"schemas":     []string{"urn:ietf:params:scim:schemas:core:2.0:Schema"},
			"id":          SchemaGroup,
			"name":        ResourceTypeGroup,
			"description": "Group",
		},
		{
			"schemas":     []string{"urn:ietf:params:scim:schemas:core:2.0:Schema"},
			"id":          SchemaEnterpriseUser,
			"name":        "EnterpriseUser",
			"description": "Enterprise User",
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"schemas":      []string{SchemaListResponse},
		"totalResults": len(schemas),
		"itemsPerPage": len(schemas),
		"startIndex":   1,
		"Resources":    schemas,
	})
}

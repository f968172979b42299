// Package scim implements the SCIM 2.0 provisioning endpoint per RFC 7643/7644
package scim

// SCIM schema URNs (RFC 7643)
const (
	SchemaUser           = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaGroup          = "urn:ietf:params:scim:schemas:core:2.0:Group"
	SchemaEnterpriseUser = "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User"
	SchemaListResponse   = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	SchemaPatchOp        = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	SchemaError          = "urn:ietf:params:scim:api:messages:2.0:Error"
	SchemaServiceConfig  = "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"
)

// Pagination limits (RFC 7644 Section 3.4.2.4)
const (
	DefaultCount = 100
	MaxCount     = 200
)

// Resource type names used in meta.resourceType and discovery
const (
	ResourceTypeUser  = "User"
	ResourceTypeGroup = "Group"
)

package scim

import "time"

// User is the stored representation of a SCIM user. UserName, ExternalID and
// Active are first-class columns; every other attribute the IdP sends lives
// in the Attributes bag and is returned verbatim.
type User struct {
	ID         int64
	SCIMID     string
	UserName   string
	ExternalID string
	Active     bool
	Attributes map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Group is the stored representation of a SCIM group
type Group struct {
	ID          int64
	SCIMID      string
	DisplayName string
	Members     []Member
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a group membership row. Value holds the member's SCIM id; the
// reference is not validated against the user table.
type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	Type    string `json:"type,omitempty"`
}

// ListResponse is the RFC 7644 list envelope
type ListResponse struct {
	Schemas      []string                 `json:"schemas"`
	TotalResults int                      `json:"totalResults"`
	StartIndex   int                      `json:"startIndex"`
	ItemsPerPage int                      `json:"itemsPerPage"`
	Resources    []map[string]interface{} `json:"Resources"`
}

// NewListResponse builds a list envelope. Resources is never null on the wire.
func NewListResponse(resources []map[string]interface{}, total, startIndex int) ListResponse {
	if resources == nil {
		resources = []map[string]interface{}{}
	}
	return ListResponse{
		Schemas:      []string{SchemaListResponse},
		TotalResults: total,
		StartIndex:   startIndex,
		ItemsPerPage: len(resources),
		Resources:    resources,
	}
}

// PatchRequest is the RFC 7644 PatchOp message
type PatchRequest struct {
	Schemas    []string         `json:"schemas"`
	Operations []PatchOperation `json:"Operations"`
}

// PatchOperation is a single patch operation. Op is matched case-insensitively.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// reservedUserKeys are attributes that must never appear in the extension bag;
// they are stored in first-class columns and re-attached on render.
var reservedUserKeys = map[string]bool{
	"id":         true,
	"userName":   true,
	"externalId": true,
	"active":     true,
	"meta":       true,
}

// ScrubAttributes removes reserved keys from an attribute bag in place
func ScrubAttributes(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return map[string]interface{}{}
	}
	for key := range reservedUserKeys {
		delete(attrs, key)
	}
	return attrs
}

// userSchemas returns the schemas list for a user resource: whatever the bag
// carries, with the core User URN guaranteed present and first.
func userSchemas(attrs map[string]interface{}) []string {
	out := []string{SchemaUser}
	raw, ok := attrs["schemas"].([]interface{})
	if !ok {
		return out
	}
	for _, entry := range raw {
		urn, ok := entry.(string)
		if !ok || urn == SchemaUser {
			continue
		}
		out = append(out, urn)
	}
	return out
}

// Resource renders the stored user as a SCIM resource. First-class fields are
// written after the bag so they always win over stale bag copies.
func (u *User) Resource(baseURL string) map[string]interface{} {
	out := make(map[string]interface{}, len(u.Attributes)+6)
	for k, v := range u.Attributes {
		if reservedUserKeys[k] {
			continue
		}
		out[k] = v
	}
	out["schemas"] = userSchemas(u.Attributes)
	out["id"] = u.SCIMID
	out["userName"] = u.UserName
	if u.ExternalID != "" {
		out["externalId"] = u.ExternalID
	}
	out["active"] = u.Active
	out["meta"] = BuildMeta(ResourceTypeUser, baseURL, u.SCIMID, u.CreatedAt, u.UpdatedAt)
	return out
}

// Resource renders the stored group as a SCIM resource
func (g *Group) Resource(baseURL string) map[string]interface{} {
	members := make([]map[string]interface{}, 0, len(g.Members))
	for _, m := range g.Members {
		entry := map[string]interface{}{"value": m.Value}
		if m.Display != "" {
			entry["display"] = m.Display
		}
		if m.Type != "" {
			entry["type"] = m.Type
		}
		members = append(members, entry)
	}
	return map[string]interface{}{
		"schemas":     []string{SchemaGroup},
		"id":          g.SCIMID,
		"displayName": g.DisplayName,
		"members":     members,
		"meta":        BuildMeta(ResourceTypeGroup, baseURL, g.SCIMID, g.CreatedAt, g.UpdatedAt),
	}
}

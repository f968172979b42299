// Package integration exercises the full provisioning flow the way an IdP
// drives it: obtain a token, then create, query, patch, and delete resources
// over the authenticated SCIM endpoint.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scimtool/scimtool/internal/oauth"
	"github.com/scimtool/scimtool/internal/scim"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// flowStore is an in-memory scim.Store for the end-to-end tests
type flowStore struct {
	mu     sync.Mutex
	users  []*scim.User
	groups []*scim.Group
	nextID int64
	now    time.Time
}

func newFlowStore() *flowStore {
	return &flowStore{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *flowStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func cloneUser(u *scim.User) *scim.User {
	c := *u
	c.Attributes = make(map[string]interface{}, len(u.Attributes))
	for k, v := range u.Attributes {
		c.Attributes[k] = v
	}
	return &c
}

func cloneGroup(g *scim.Group) *scim.Group {
	c := *g
	c.Members = append([]scim.Member{}, g.Members...)
	return &c
}

func (s *flowStore) CreateUser(_ context.Context, u *scim.User) (*scim.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneUser(u)
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = s.tick()
	c.UpdatedAt = c.CreatedAt
	c.Attributes = scim.ScrubAttributes(c.Attributes)
	s.users = append(s.users, c)
	return cloneUser(c), nil
}

func (s *flowStore) GetUser(_ context.Context, scimID string) (*scim.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.SCIMID == scimID {
			return cloneUser(u), nil
		}
	}
	return nil, scim.ErrNotFound
}

func (s *flowStore) GetUserByUserName(_ context.Context, userName string) (*scim.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.UserName == userName {
			return cloneUser(u), nil
		}
	}
	return nil, scim.ErrNotFound
}

func userMatches(u *scim.User, f *scim.Filter) bool {
	if f == nil {
		return true
	}
	switch f.Attribute {
	case "userName":
		return strings.EqualFold(u.UserName, f.Value)
	case "externalId":
		return u.ExternalID == f.Value
	case "id":
		return u.SCIMID == f.Value
	}
	return false
}

func (s *flowStore) ListUsers(_ context.Context, f *scim.Filter, offset, limit int) ([]*scim.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*scim.User{}
	for _, u := range s.users {
		if userMatches(u, f) {
			matched = append(matched, u)
		}
	}
	total := len(matched)

	page := []*scim.User{}
	if limit > 0 {
		for i := offset; i < len(matched) && len(page) < limit; i++ {
			page = append(page, cloneUser(matched[i]))
		}
	}
	return page, total, nil
}

func (s *flowStore) UpdateUser(_ context.Context, u *scim.User) (*scim.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.users {
		if existing.SCIMID != u.SCIMID {
			continue
		}

		c := cloneUser(u)
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = s.tick()
		c.Attributes = scim.ScrubAttributes(c.Attributes)
		s.users[i] = c
		return cloneUser(c), nil
	}
	return nil, scim.ErrNotFound
}

func (s *flowStore) DeleteUser(_ context.Context, scimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.SCIMID == scimID {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return scim.ErrNotFound
}

func (s *flowStore) CreateGroup(_ context.Context, g *scim.Group) (*scim.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.SCIMID == g.SCIMID {
			return nil, scim.ErrConflict(fmt.Sprintf("Group with id %q already exists.", g.SCIMID))
		}
	}

	c := cloneGroup(g)
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = s.tick()
	c.UpdatedAt = c.CreatedAt
	s.groups = append(s.groups, c)
	return cloneGroup(c), nil
}

func (s *flowStore) GetGroup(_ context.Context, scimID string) (*scim.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID == scimID {
			return cloneGroup(g), nil
		}
	}
	return nil, scim.ErrNotFound
}

func (s *flowStore) ListGroups(_ context.Context, f *scim.Filter, offset, limit int) ([]*scim.Group, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*scim.Group{}
	for _, g := range s.groups {
		if f == nil ||
			(f.Attribute == "displayName" && strings.EqualFold(g.DisplayName, f.Value)) ||
			(f.Attribute == "id" && g.SCIMID == f.Value) {
			matched = append(matched, g)
		}
	}
	total := len(matched)

	page := []*scim.Group{}
	if limit > 0 {
		for i := offset; i < len(matched) && len(page) < limit; i++ {
			page = append(page, cloneGroup(matched[i]))
		}
	}
	return page, total, nil
}

func (s *flowStore) ReplaceGroup(_ context.Context, scimID, displayName string, members []scim.Member) (*scim.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID == scimID {
			g.DisplayName = displayName
			g.Members = append([]scim.Member{}, members...)
			g.UpdatedAt = s.tick()
			return cloneGroup(g), nil
		}
	}
	return nil, scim.ErrNotFound
}

func (s *flowStore) PatchGroup(_ context.Context, scimID string, change *scim.GroupChange) (*scim.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID != scimID {
			continue
		}

		if change.ReplaceMembers != nil {
			g.Members = append([]scim.Member{}, (*change.ReplaceMembers)...)
		}
		for _, add := range change.Add {
			present := false
			for _, m := range g.Members {
				if m.Value == add.Value {
					present = true
					break
				}
			}
			if !present {
				g.Members = append(g.Members, add)
			}
		}
		for _, remove := range change.Remove {
			kept := g.Members[:0]
			for _, m := range g.Members {
				if m.Value != remove {
					kept = append(kept, m)
				}
			}
			g.Members = kept
		}
		if change.DisplayName != nil {
			g.DisplayName = *change.DisplayName
		}
		g.UpdatedAt = s.tick()
		return cloneGroup(g), nil
	}
	return nil, scim.ErrNotFound
}

func (s *flowStore) DeleteGroup(_ context.Context, scimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.groups {
		if g.SCIMID == scimID {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return nil
		}
	}
	return scim.ErrNotFound
}

func (s *flowStore) SearchUsers(ctx context.Context, _ string, offset, limit int) ([]*scim.User, int, error) {
	return s.ListUsers(ctx, nil, offset, limit)
}

func (s *flowStore) SearchGroups(ctx context.Context, _ string, offset, limit int) ([]*scim.Group, int, error) {
	return s.ListGroups(ctx, nil, offset, limit)
}

func (s *flowStore) GroupsOfUser(_ context.Context, memberID string) ([]scim.GroupRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := []scim.GroupRef{}
	for _, g := range s.groups {
		for _, m := range g.Members {
			if m.Value == memberID {
				refs = append(refs, scim.GroupRef{SCIMID: g.SCIMID, DisplayName: g.DisplayName})
				break
			}
		}
	}
	return refs, nil
}

func (s *flowStore) UserNames(_ context.Context, scimIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := map[string]string{}
	for _, id := range scimIDs {
		for _, u := range s.users {
			if u.SCIMID == id {
				names[id] = u.UserName
			}
		}
	}
	return names, nil
}

func (s *flowStore) CountUsers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *flowStore) CountGroups(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups), nil
}

func (s *flowStore) ExportUsers(_ context.Context) ([]*scim.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*scim.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (s *flowStore) ExportGroups(_ context.Context) ([]*scim.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*scim.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	return out, nil
}

// newProvisioningServer wires the token endpoint and the authenticated SCIM
// endpoint the way cmd/scim-service does
func newProvisioningServer(t *testing.T) *gin.Engine {
	t.Helper()
	log := zap.NewNop()

	hash, err := bcrypt.GenerateFromPassword([]byte("flow-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	registry := oauth.NewStaticRegistry([]oauth.Client{
		{ID: "entra-flow", SecretHash: string(hash), Scopes: []string{"scim:read", "scim:write"}},
	})
	tokenService := oauth.NewTokenService(registry, "flow-jwt-secret", "scimtool", time.Hour, log)

	store := newFlowStore()
	users := scim.NewUserService(store, log)
	groups := scim.NewGroupService(store, log)

	router := gin.New()
	oauth.NewHandler(tokenService, log).RegisterRoutes(router)

	scimGroup := router.Group("")
	scimGroup.Use(oauth.AuthMiddleware(tokenService, "", log))
	scim.NewHandler(users, groups, log, "/scim/v2").RegisterRoutes(scimGroup)

	return router
}

func obtainToken(t *testing.T, router *gin.Engine) string {
	t.Helper()
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"entra-flow"},
		"client_secret": {"flow-secret"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp oauth.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func scimRequest(router *gin.Engine, token, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/scim+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProvisioningFlow(t *testing.T) {
	router := newProvisioningServer(t)

	// Unauthenticated requests are rejected with a SCIM error
	w := scimRequest(router, "", http.MethodGet, "/scim/v2/Users", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "urn:ietf:params:scim:api:messages:2.0:Error")

	token := obtainToken(t, router)

	// Create a user
	w = scimRequest(router, token, http.MethodPost, "/scim/v2/Users", `{
		"schemas": ["urn:ietf:params:scim:schemas:core:2.0:User"],
		"userName": "flow.user@example.com",
		"externalId": "ext-flow-1",
		"displayName": "Flow User",
		"active": true
	}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	userID, _ := created["id"].(string)
	require.NotEmpty(t, userID)
	assert.Equal(t, "flow.user@example.com", created["userName"])

	// The IdP looks the user up by userName before updating
	w = scimRequest(router, token, http.MethodGet,
		"/scim/v2/Users?filter="+url.QueryEscape(`userName eq "flow.user@example.com"`), "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		TotalResults int                      `json:"totalResults"`
		Resources    []map[string]interface{} `json:"Resources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.TotalResults)
	assert.Equal(t, userID, list.Resources[0]["id"])

	// Deactivate via PATCH
	w = scimRequest(router, token, http.MethodPatch, "/scim/v2/Users/"+userID, `{
		"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
		"Operations": [{"op": "Replace", "path": "active", "value": false}]
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var patched map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.Equal(t, false, patched["active"])

	// Create a group with a caller-supplied id
	w = scimRequest(router, token, http.MethodPost, "/scim/v2/Groups", `{
		"schemas": ["urn:ietf:params:scim:schemas:core:2.0:Group"],
		"id": "g-flow",
		"displayName": "Flow Team"
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var group map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	assert.Equal(t, "g-flow", group["id"])

	// Add the user to the group; group patches return 204 with no body
	w = scimRequest(router, token, http.MethodPatch, "/scim/v2/Groups/g-flow", fmt.Sprintf(`{
		"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
		"Operations": [{"op": "Add", "path": "members", "value": [{"value": %q}]}]
	}`, userID))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = scimRequest(router, token, http.MethodGet, "/scim/v2/Groups/g-flow", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	members, _ := group["members"].([]interface{})
	require.Len(t, members, 1)

	// Remove the member with the filtered path form
	w = scimRequest(router, token, http.MethodPatch, "/scim/v2/Groups/g-flow", fmt.Sprintf(`{
		"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
		"Operations": [{"op": "Remove", "path": "members[value eq \"%s\"]"}]
	}`, userID))
	require.Equal(t, http.StatusNoContent, w.Code)

	// Delete the user, then the lookup 404s with the SCIM detail format
	w = scimRequest(router, token, http.MethodDelete, "/scim/v2/Users/"+userID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = scimRequest(router, token, http.MethodGet, "/scim/v2/Users/"+userID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("Resource %s not found.", userID))
}

func TestProvisioningFlow_MissingSchemaRejected(t *testing.T) {
	router := newProvisioningServer(t)
	token := obtainToken(t, router)

	w := scimRequest(router, token, http.MethodPost, "/scim/v2/Users",
		`{"userName":"no-schema@example.com"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"scimType":"invalidValue"`)
	assert.Contains(t, w.Body.String(), "urn:ietf:params:scim:schemas:core:2.0:User")
}

func TestProvisioningFlow_DuplicateUserNameAccepted(t *testing.T) {
	router := newProvisioningServer(t)
	token := obtainToken(t, router)

	body := `{"schemas":["urn:ietf:params:scim:schemas:core:2.0:User"],"userName":"dup@example.com"}`
	w := scimRequest(router, token, http.MethodPost, "/scim/v2/Users", body)
	require.Equal(t, http.StatusCreated, w.Code)

	// The data model does not enforce userName uniqueness; both rows land
	w = scimRequest(router, token, http.MethodPost, "/scim/v2/Users", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = scimRequest(router, token, http.MethodGet,
		"/scim/v2/Users?filter="+url.QueryEscape(`userName eq "dup@example.com"`), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalResults":2`)
}

func TestProvisioningFlow_BadTokenRejected(t *testing.T) {
	router := newProvisioningServer(t)

	w := scimRequest(router, "not-a-valid-token", http.MethodGet, "/scim/v2/Users", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="scim"`, w.Header().Get("WWW-Authenticate"))
}

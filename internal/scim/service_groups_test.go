package scim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGroupService() (*GroupService, *memStore) {
	store := newMemStore()
	return NewGroupService(store, zap.NewNop()), store
}

func groupPayload(displayName string) map[string]interface{} {
	return map[string]interface{}{
		"schemas":     []interface{}{SchemaGroup},
		"displayName": displayName,
	}
}

func TestGroupService_Create(t *testing.T) {
	svc, _ := newGroupService()

	g, err := svc.Create(context.Background(), map[string]interface{}{
		"schemas":     []interface{}{SchemaGroup},
		"displayName": "Engineering",
		"members": []interface{}{
			map[string]interface{}{"value": "u-1", "display": "Alice"},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, g.SCIMID)
	assert.Equal(t, "Engineering", g.DisplayName)
	require.Len(t, g.Members, 1)
	assert.Equal(t, "u-1", g.Members[0].Value)
}

func TestGroupService_CreateHonorsCallerID(t *testing.T) {
	svc, _ := newGroupService()

	payload := groupPayload("Engineering")
	payload["id"] = "caller-supplied-id"
	g, err := svc.Create(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "caller-supplied-id", g.SCIMID)
}

func TestGroupService_CreateDuplicateID(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	a := groupPayload("A")
	a["id"] = "g-1"
	_, err := svc.Create(ctx, a)
	require.NoError(t, err)

	b := groupPayload("B")
	b["id"] = "g-1"
	_, err = svc.Create(ctx, b)
	require.Error(t, err)

	scimErr := AsError(err)
	assert.Equal(t, 409, scimErr.StatusCode())
	assert.Equal(t, TypeUniqueness, scimErr.ScimType)
}

func TestGroupService_CreateMissingDisplayName(t *testing.T) {
	svc, _ := newGroupService()

	_, err := svc.Create(context.Background(), map[string]interface{}{
		"schemas": []interface{}{SchemaGroup},
		"members": []interface{}{},
	})
	require.Error(t, err)
	assert.Equal(t, TypeInvalidValue, AsError(err).ScimType)
}

func TestGroupService_CreateMissingSchema(t *testing.T) {
	svc, _ := newGroupService()

	_, err := svc.Create(context.Background(), map[string]interface{}{"displayName": "Engineering"})
	require.Error(t, err)

	scimErr := AsError(err)
	assert.Equal(t, 400, scimErr.StatusCode())
	assert.Equal(t, TypeInvalidValue, scimErr.ScimType)
	assert.Contains(t, scimErr.Detail, SchemaGroup)
}

func TestGroupService_CreateDanglingMemberTolerated(t *testing.T) {
	svc, _ := newGroupService()

	// Member ids are not validated against the user table
	payload := groupPayload("Ghosts")
	payload["members"] = []interface{}{
		map[string]interface{}{"value": "never-provisioned"},
	}
	g, err := svc.Create(context.Background(), payload)
	require.NoError(t, err)
	assert.Len(t, g.Members, 1)
}

func TestGroupService_PatchAddAndRemoveMembers(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	payload := groupPayload("Engineering")
	payload["members"] = []interface{}{
		map[string]interface{}{"value": "u-1"},
	}
	g, err := svc.Create(ctx, payload)
	require.NoError(t, err)

	patched, err := svc.Patch(ctx, g.SCIMID, patchReq(
		PatchOperation{Op: "add", Path: "members", Value: []interface{}{
			map[string]interface{}{"value": "u-2"},
		}},
		PatchOperation{Op: "remove", Path: `members[value eq "u-1"]`},
	))
	require.NoError(t, err)
	require.Len(t, patched.Members, 1)
	assert.Equal(t, "u-2", patched.Members[0].Value)
}

func TestGroupService_PatchAddIsIdempotent(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	payload := groupPayload("Engineering")
	payload["members"] = []interface{}{
		map[string]interface{}{"value": "u-1"},
	}
	g, err := svc.Create(ctx, payload)
	require.NoError(t, err)

	patched, err := svc.Patch(ctx, g.SCIMID, patchReq(
		PatchOperation{Op: "add", Path: "members", Value: []interface{}{
			map[string]interface{}{"value": "u-1"},
		}},
	))
	require.NoError(t, err)
	assert.Len(t, patched.Members, 1, "re-adding an existing member is a no-op")
}

func TestGroupService_PatchRemoveNonMember(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	g, err := svc.Create(ctx, groupPayload("Engineering"))
	require.NoError(t, err)

	patched, err := svc.Patch(ctx, g.SCIMID, patchReq(
		PatchOperation{Op: "remove", Path: `members[value eq "not-a-member"]`},
	))
	require.NoError(t, err, "removing a non-member succeeds silently")
	assert.Empty(t, patched.Members)
}

func TestGroupService_PatchRename(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	g, err := svc.Create(ctx, groupPayload("Old Name"))
	require.NoError(t, err)

	patched, err := svc.Patch(ctx, g.SCIMID, patchReq(
		PatchOperation{Op: "replace", Path: "displayName", Value: "New Name"},
	))
	require.NoError(t, err)
	assert.Equal(t, "New Name", patched.DisplayName)
}

func TestGroupService_PatchInvalidOpLeavesGroupUntouched(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	g, err := svc.Create(ctx, groupPayload("Engineering"))
	require.NoError(t, err)

	_, err = svc.Patch(ctx, g.SCIMID, patchReq(
		PatchOperation{Op: "add", Path: "members", Value: []interface{}{
			map[string]interface{}{"value": "u-1"},
		}},
		PatchOperation{Op: "move", Path: "displayName", Value: "x"},
	))
	require.Error(t, err)

	stored, err := svc.Get(ctx, g.SCIMID)
	require.NoError(t, err)
	assert.Empty(t, stored.Members, "failed patch must not apply any operation")
}

func TestGroupService_Replace(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	payload := groupPayload("Engineering")
	payload["members"] = []interface{}{
		map[string]interface{}{"value": "u-1"},
		map[string]interface{}{"value": "u-2"},
	}
	g, err := svc.Create(ctx, payload)
	require.NoError(t, err)

	replacement := groupPayload("Platform")
	replacement["members"] = []interface{}{
		map[string]interface{}{"value": "u-3"},
	}
	replaced, err := svc.Replace(ctx, g.SCIMID, replacement)
	require.NoError(t, err)
	assert.Equal(t, "Platform", replaced.DisplayName)
	require.Len(t, replaced.Members, 1)
	assert.Equal(t, "u-3", replaced.Members[0].Value)
}

func TestGroupService_ReplaceMissingSchema(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	g, err := svc.Create(ctx, groupPayload("Engineering"))
	require.NoError(t, err)

	_, err = svc.Replace(ctx, g.SCIMID, map[string]interface{}{"displayName": "Platform"})
	require.Error(t, err)
	assert.Equal(t, TypeInvalidValue, AsError(err).ScimType)
}

func TestGroupService_ListFiltered(t *testing.T) {
	svc, _ := newGroupService()
	ctx := context.Background()

	_, err := svc.Create(ctx, groupPayload("Engineering"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, groupPayload("Sales"))
	require.NoError(t, err)

	groups, total, err := svc.List(ctx, `displayName eq "Sales"`, 1, DefaultCount)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, groups, 1)
	assert.Equal(t, "Sales", groups[0].DisplayName)
}

func TestGroupService_DeleteNotFound(t *testing.T) {
	svc, _ := newGroupService()

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 404, AsError(err).StatusCode())
}

package scim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupService implements the SCIM Group resource operations
type GroupService struct {
	store  Store
	logger *zap.Logger
}

// NewGroupService creates a new group service
func NewGroupService(store Store, logger *zap.Logger) *GroupService {
	return &GroupService{store: store, logger: logger}
}

// parseGroupPayload extracts displayName and members from a create/replace body
func parseGroupPayload(payload map[string]interface{}) (string, []Member, error) {
	displayName, _ := payload["displayName"].(string)
	if displayName == "" {
		return "", nil, ErrInvalidValue("displayName is required.")
	}

	members := []Member{}
	if raw, ok := payload["members"]; ok && raw != nil {
		var err error
		if members, err = parseMembers(raw); err != nil {
			return "", nil, err
		}
	}
	return displayName, members, nil
}

// Create provisions a new group. The caller may supply its own id (Entra does
// this when it mirrors directory object ids); otherwise one is generated.
// Member references are not validated against the user table.
func (s *GroupService) Create(ctx context.Context, payload map[string]interface{}) (*Group, error) {
	if err := requireSchema(payload, SchemaGroup); err != nil {
		return nil, err
	}
	displayName, members, err := parseGroupPayload(payload)
	if err != nil {
		return nil, err
	}

	scimID, _ := payload["id"].(string)
	if scimID == "" {
		scimID = uuid.NewString()
	}

	created, err := s.store.CreateGroup(ctx, &Group{
		SCIMID:      scimID,
		DisplayName: displayName,
		Members:     members,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SCIM group created",
		zap.String("id", created.SCIMID),
		zap.String("displayName", created.DisplayName),
		zap.Int("members", len(created.Members)))
	return created, nil
}

// Get fetches a group by id
func (s *GroupService) Get(ctx context.Context, id string) (*Group, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}
	return g, nil
}

// List returns a page of groups plus the total match count
func (s *GroupService) List(ctx context.Context, filterExpr string, startIndex, count int) ([]*Group, int, error) {
	var f *Filter
	if filterExpr != "" {
		var err error
		if f, err = ParseGroupFilter(filterExpr); err != nil {
			return nil, 0, err
		}
	}

	offset := startIndex - 1
	if offset < 0 {
		offset = 0
	}
	return s.store.ListGroups(ctx, f, offset, count)
}

// Patch applies a PatchOp message to a group. The whole change set is applied
// in one transaction, so a failing operation leaves the group untouched.
func (s *GroupService) Patch(ctx context.Context, id string, req PatchRequest) (*Group, error) {
	if err := validatePatchSchemas(req.Schemas); err != nil {
		return nil, err
	}

	change, err := BuildGroupPatch(req.Operations)
	if err != nil {
		return nil, err
	}

	g, err := s.store.PatchGroup(ctx, id, change)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}

	s.logger.Info("SCIM group patched",
		zap.String("id", g.SCIMID),
		zap.Int("added", len(change.Add)),
		zap.Int("removed", len(change.Remove)))
	return g, nil
}

// Replace overwrites displayName and the whole member set
func (s *GroupService) Replace(ctx context.Context, id string, payload map[string]interface{}) (*Group, error) {
	if err := requireSchema(payload, SchemaGroup); err != nil {
		return nil, err
	}
	displayName, members, err := parseGroupPayload(payload)
	if err != nil {
		return nil, err
	}

	g, err := s.store.ReplaceGroup(ctx, id, displayName, members)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}

	s.logger.Info("SCIM group replaced", zap.String("id", g.SCIMID))
	return g, nil
}

// Delete removes a group and its membership rows. Other groups' references to
// deleted users stay dangling on purpose.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFoundResource(id)
		}
		return err
	}
	s.logger.Info("SCIM group deleted", zap.String("id", id))
	return nil
}

package scim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService implements the SCIM User resource operations
type UserService struct {
	store  Store
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store Store, logger *zap.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

// parseUserPayload extracts the first-class attributes from a create/replace
// body. Everything else, including the schemas list, stays in the bag.
func parseUserPayload(payload map[string]interface{}) (*User, error) {
	userName, _ := payload["userName"].(string)
	if userName == "" {
		return nil, ErrInvalidValue("userName is required.")
	}

	u := &User{
		UserName: userName,
		Active:   true,
	}

	if raw, ok := payload["externalId"]; ok {
		ext, ok := raw.(string)
		if !ok {
			return nil, ErrInvalidValue("externalId must be a string.")
		}
		u.ExternalID = ext
	}

	if raw, ok := payload["active"]; ok {
		active, err := coerceActive(raw)
		if err != nil {
			return nil, err
		}
		u.Active = active
	}

	attrs := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if reservedUserKeys[k] {
			continue
		}
		attrs[k] = v
	}
	u.Attributes = attrs
	return u, nil
}

// Create provisions a new user from the request body
func (s *UserService) Create(ctx context.Context, payload map[string]interface{}) (*User, error) {
	if err := requireSchema(payload, SchemaUser); err != nil {
		return nil, err
	}
	u, err := parseUserPayload(payload)
	if err != nil {
		return nil, err
	}
	u.SCIMID = uuid.NewString()

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("SCIM user created",
		zap.String("id", created.SCIMID),
		zap.String("userName", created.UserName))
	return created, nil
}

// Get fetches a user by id
func (s *UserService) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}
	return u, nil
}

// List returns a page of users. filterExpr is the raw filter query parameter,
// empty for an unfiltered listing. startIndex is 1-based; count <= 0 returns
// an empty page with the correct totalResults.
func (s *UserService) List(ctx context.Context, filterExpr string, startIndex, count int) ([]*User, int, error) {
	var f *Filter
	if filterExpr != "" {
		var err error
		if f, err = ParseUserFilter(filterExpr); err != nil {
			return nil, 0, err
		}
	}

	offset := startIndex - 1
	if offset < 0 {
		offset = 0
	}
	return s.store.ListUsers(ctx, f, offset, count)
}

// Patch applies a PatchOp message to a user. All operations succeed or the
// stored resource is left untouched.
func (s *UserService) Patch(ctx context.Context, id string, req PatchRequest) (*User, error) {
	if err := validatePatchSchemas(req.Schemas); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Work on a copy so a failing operation never leaks partial state
	patched := *u
	patched.Attributes = make(map[string]interface{}, len(u.Attributes))
	for k, v := range u.Attributes {
		patched.Attributes[k] = v
	}

	if err := ApplyUserPatch(&patched, req.Operations); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateUser(ctx, &patched)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}

	s.logger.Info("SCIM user patched",
		zap.String("id", updated.SCIMID),
		zap.Bool("active", updated.Active))
	return updated, nil
}

// Replace overwrites the whole user resource with the request body
func (s *UserService) Replace(ctx context.Context, id string, payload map[string]interface{}) (*User, error) {
	if err := requireSchema(payload, SchemaUser); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	u, err := parseUserPayload(payload)
	if err != nil {
		return nil, err
	}
	u.SCIMID = existing.SCIMID
	u.CreatedAt = existing.CreatedAt

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundResource(id)
		}
		return nil, err
	}

	s.logger.Info("SCIM user replaced", zap.String("id", updated.SCIMID))
	return updated, nil
}

// Delete removes a user
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFoundResource(id)
		}
		return err
	}
	s.logger.Info("SCIM user deleted", zap.String("id", id))
	return nil
}

// validatePatchSchemas checks the PatchOp message schema list
func validatePatchSchemas(schemas []string) error {
	for _, urn := range schemas {
		if urn == SchemaPatchOp {
			return nil
		}
	}
	return ErrInvalidValue("PatchOp message must declare schema " + SchemaPatchOp + ".")
}

// requireSchema checks that a create/replace body declares the resource's
// core schema URN
func requireSchema(payload map[string]interface{}, urn string) error {
	schemas, _ := payload["schemas"].([]interface{})
	for _, entry := range schemas {
		if s, ok := entry.(string); ok && s == urn {
			return nil
		}
	}
	return ErrInvalidValue("Missing required schema " + urn + ".")
}

package scim

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a resource id does not exist
var ErrNotFound = errors.New("resource not found")

// GroupRef is a lightweight group reference used for membership lookups
type GroupRef struct {
	SCIMID      string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Store is the persistence interface for SCIM resources. List methods return
// the page plus the total match count; the resource order is creation time
// ascending so pages stay stable while the IdP walks them.
type Store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, scimID string) (*User, error)
	GetUserByUserName(ctx context.Context, userName string) (*User, error)
	ListUsers(ctx context.Context, f *Filter, offset, limit int) ([]*User, int, error)
	UpdateUser(ctx context.Context, u *User) (*User, error)
	DeleteUser(ctx context.Context, scimID string) error

	CreateGroup(ctx context.Context, g *Group) (*Group, error)
	GetGroup(ctx context.Context, scimID string) (*Group, error)
	ListGroups(ctx context.Context, f *Filter, offset, limit int) ([]*Group, int, error)
	ReplaceGroup(ctx context.Context, scimID, displayName string, members []Member) (*Group, error)
	PatchGroup(ctx context.Context, scimID string, change *GroupChange) (*Group, error)
	DeleteGroup(ctx context.Context, scimID string) error

	// Admin and reporting helpers
	SearchUsers(ctx context.Context, query string, offset, limit int) ([]*User, int, error)
	SearchGroups(ctx context.Context, query string, offset, limit int) ([]*Group, int, error)
	GroupsOfUser(ctx context.Context, memberID string) ([]GroupRef, error)
	UserNames(ctx context.Context, scimIDs []string) (map[string]string, error)
	CountUsers(ctx context.Context) (int, error)
	CountGroups(ctx context.Context) (int, error)

	// Backup export
	ExportUsers(ctx context.Context) ([]*User, error)
	ExportGroups(ctx context.Context) ([]*Group, error)
}

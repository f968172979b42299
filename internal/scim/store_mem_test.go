package scim

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store used by the package tests. It mirrors the
// PostgresStore semantics: creation-order listing, duplicate userNames
// accepted, group id conflicts, idempotent member adds, no-op removes of
// non-members.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   []*User
	groups  []*Group
	now     time.Time
}

func newMemStore() *memStore {
	return &memStore{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// tick advances the fake clock so created_at ordering is deterministic
func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *memStore) CreateUser(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := cloneUser(u)
	stored.ID = s.nextID
	stored.Attributes = ScrubAttributes(stored.Attributes)
	stored.CreatedAt = s.tick()
	stored.UpdatedAt = stored.CreatedAt
	s.users = append(s.users, stored)
	return cloneUser(stored), nil
}

func (s *memStore) GetUser(_ context.Context, scimID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.SCIMID == scimID {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) GetUserByUserName(_ context.Context, userName string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.UserName == userName {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) ListUsers(_ context.Context, f *Filter, offset, limit int) ([]*User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*User{}
	for _, u := range s.users {
		if userMatches(u, f) {
			matched = append(matched, u)
		}
	}
	total := len(matched)
	if limit <= 0 {
		return []*User{}, total, nil
	}

	page := []*User{}
	for i := offset; i < len(matched) && len(page) < limit; i++ {
		page = append(page, cloneUser(matched[i]))
	}
	return page, total, nil
}

func userMatches(u *User, f *Filter) bool {
	if f == nil {
		return true
	}
	switch f.Attribute {
	case "userName":
		return u.UserName == f.Value
	case "externalId":
		return u.ExternalID == f.Value
	default:
		return u.SCIMID == f.Value
	}
}

func (s *memStore) UpdateUser(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.users {
		if existing.SCIMID != u.SCIMID {
			continue
		}
		stored := cloneUser(u)
		stored.ID = existing.ID
		stored.Attributes = ScrubAttributes(stored.Attributes)
		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = s.tick()
		s.users[i] = stored
		return cloneUser(stored), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) DeleteUser(_ context.Context, scimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.SCIMID == scimID {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) CreateGroup(_ context.Context, g *Group) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.SCIMID == g.SCIMID {
			return nil, ErrConflict(fmt.Sprintf("Group with id %q already exists.", g.SCIMID))
		}
	}

	s.nextID++
	stored := cloneGroup(g)
	stored.ID = s.nextID
	stored.Members = dedupeMembers(stored.Members)
	stored.CreatedAt = s.tick()
	stored.UpdatedAt = stored.CreatedAt
	s.groups = append(s.groups, stored)
	return cloneGroup(stored), nil
}

func (s *memStore) GetGroup(_ context.Context, scimID string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID == scimID {
			return cloneGroup(g), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) ListGroups(_ context.Context, f *Filter, offset, limit int) ([]*Group, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*Group{}
	for _, g := range s.groups {
		if groupMatches(g, f) {
			matched = append(matched, g)
		}
	}
	total := len(matched)
	if limit <= 0 {
		return []*Group{}, total, nil
	}

	page := []*Group{}
	for i := offset; i < len(matched) && len(page) < limit; i++ {
		page = append(page, cloneGroup(matched[i]))
	}
	return page, total, nil
}

func groupMatches(g *Group, f *Filter) bool {
	if f == nil {
		return true
	}
	if f.Attribute == "displayName" {
		return g.DisplayName == f.Value
	}
	return g.SCIMID == f.Value
}

func (s *memStore) ReplaceGroup(_ context.Context, scimID, displayName string, members []Member) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID != scimID {
			continue
		}
		g.DisplayName = displayName
		g.Members = dedupeMembers(members)
		g.UpdatedAt = s.tick()
		return cloneGroup(g), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) PatchGroup(_ context.Context, scimID string, change *GroupChange) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.SCIMID != scimID {
			continue
		}
		if change.ReplaceMembers != nil {
			g.Members = dedupeMembers(*change.ReplaceMembers)
		}
		g.Members = dedupeMembers(append(g.Members, change.Add...))
		for _, id := range change.Remove {
			for i, m := range g.Members {
				if m.Value == id {
					g.Members = append(g.Members[:i], g.Members[i+1:]...)
					break
				}
			}
		}
		if change.DisplayName != nil {
			g.DisplayName = *change.DisplayName
		}
		g.UpdatedAt = s.tick()
		return cloneGroup(g), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) DeleteGroup(_ context.Context, scimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.groups {
		if g.SCIMID == scimID {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) SearchUsers(_ context.Context, _ string, offset, limit int) ([]*User, int, error) {
	return s.ListUsers(context.Background(), nil, offset, limit)
}

func (s *memStore) SearchGroups(_ context.Context, _ string, offset, limit int) ([]*Group, int, error) {
	return s.ListGroups(context.Background(), nil, offset, limit)
}

func (s *memStore) GroupsOfUser(_ context.Context, memberID string) ([]GroupRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := []GroupRef{}
	for _, g := range s.groups {
		for _, m := range g.Members {
			if m.Value == memberID {
				refs = append(refs, GroupRef{SCIMID: g.SCIMID, DisplayName: g.DisplayName})
				break
			}
		}
	}
	return refs, nil
}

func (s *memStore) UserNames(_ context.Context, scimIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := map[string]string{}
	for _, id := range scimIDs {
		for _, u := range s.users {
			if u.SCIMID == id {
				names[id] = u.UserName
				break
			}
		}
	}
	return names, nil
}

func (s *memStore) CountUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memStore) CountGroups(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups), nil
}

func (s *memStore) ExportUsers(_ context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	return users, nil
}

func (s *memStore) ExportGroups(_ context.Context) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, cloneGroup(g))
	}
	return groups, nil
}

func cloneUser(u *User) *User {
	out := *u
	out.Attributes = make(map[string]interface{}, len(u.Attributes))
	for k, v := range u.Attributes {
		out.Attributes[k] = v
	}
	return &out
}

func cloneGroup(g *Group) *Group {
	out := *g
	out.Members = append([]Member(nil), g.Members...)
	return &out
}

func dedupeMembers(members []Member) []Member {
	seen := map[string]bool{}
	out := []Member{}
	for _, m := range members {
		if seen[m.Value] {
			continue
		}
		seen[m.Value] = true
		out = append(out, m)
	}
	return out
}

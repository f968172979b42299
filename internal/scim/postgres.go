package scim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the resource tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS scim_users (
			id BIGSERIAL PRIMARY KEY,
			scim_id TEXT NOT NULL UNIQUE,
			user_name TEXT NOT NULL,
			external_id TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			attributes JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scim_users_external_id ON scim_users (external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scim_users_created_at ON scim_users (created_at)`,
		`CREATE TABLE IF NOT EXISTS scim_groups (
			id BIGSERIAL PRIMARY KEY,
			scim_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scim_groups_display_name ON scim_groups (display_name)`,
		`CREATE TABLE IF NOT EXISTS scim_group_members (
			group_id BIGINT NOT NULL REFERENCES scim_groups(id) ON DELETE CASCADE,
			member_id TEXT NOT NULL,
			display TEXT,
			member_type TEXT,
			PRIMARY KEY (group_id, member_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scim_group_members_member ON scim_group_members (member_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ----------------------------------------------------------------
// Users
// ----------------------------------------------------------------

const userColumns = `id, scim_id, user_name, COALESCE(external_id, ''), active, attributes, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var attributesJSON []byte
	if err := row.Scan(&u.ID, &u.SCIMID, &u.UserName, &u.ExternalID, &u.Active,
		&attributesJSON, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &u.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	if u.Attributes == nil {
		u.Attributes = map[string]interface{}{}
	}
	return &u, nil
}

// CreateUser inserts a new user row. userName uniqueness is the provisioning
// contract's concern, not a data-model constraint.
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	attributesJSON, err := json.Marshal(ScrubAttributes(u.Attributes))
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO scim_users (scim_id, user_name, external_id, active, attributes, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $6)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query, u.SCIMID, u.UserName, u.ExternalID, u.Active, attributesJSON, now)
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// GetUser fetches a user by SCIM id
func (s *PostgresStore) GetUser(ctx context.Context, scimID string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM scim_users WHERE scim_id = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, scimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByUserName fetches a user by userName
func (s *PostgresStore) GetUserByUserName(ctx context.Context, userName string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM scim_users WHERE user_name = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, userName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by userName: %w", err)
	}
	return u, nil
}

// userFilterClause maps a parsed filter to a WHERE clause on scim_users
func userFilterClause(f *Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}
	switch f.Attribute {
	case "userName":
		return "WHERE user_name = $1", []interface{}{f.Value}
	case "externalId":
		return "WHERE external_id = $1", []interface{}{f.Value}
	default: // id
		return "WHERE scim_id = $1", []interface{}{f.Value}
	}
}

// ListUsers returns a page of users plus the total match count
func (s *PostgresStore) ListUsers(ctx context.Context, f *Filter, offset, limit int) ([]*User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where, args := userFilterClause(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM scim_users ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	if limit <= 0 {
		return []*User{}, total, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM scim_users %s ORDER BY created_at ASC, id ASC OFFSET $%d LIMIT $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateUser persists the mutable fields of a user and bumps updated_at
func (s *PostgresStore) UpdateUser(ctx context.Context, u *User) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	attributesJSON, err := json.Marshal(ScrubAttributes(u.Attributes))
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	query := `
		UPDATE scim_users
		SET user_name = $2, external_id = NULLIF($3, ''), active = $4, attributes = $5, updated_at = $6
		WHERE scim_id = $1
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query, u.SCIMID, u.UserName, u.ExternalID, u.Active, attributesJSON, time.Now().UTC())
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// DeleteUser removes a user row. Group membership rows referencing the user
// are left in place; members are not referentially enforced.
func (s *PostgresStore) DeleteUser(ctx context.Context, scimID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM scim_users WHERE scim_id = $1`, scimID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------------------------------
// Groups
// ----------------------------------------------------------------

const groupColumns = `id, scim_id, display_name, created_at, updated_at`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	if err := row.Scan(&g.ID, &g.SCIMID, &g.DisplayName, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func loadMembers(ctx context.Context, q querier, groupID int64) ([]Member, error) {
	rows, err := q.Query(ctx, `
		SELECT member_id, COALESCE(display, ''), COALESCE(member_type, '')
		FROM scim_group_members WHERE group_id = $1 ORDER BY member_id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Value, &m.Display, &m.Type); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func insertMembers(ctx context.Context, q querier, groupID int64, members []Member) error {
	for _, m := range members {
		// Re-adding an existing member is a no-op
		_, err := q.Exec(ctx, `
			INSERT INTO scim_group_members (group_id, member_id, display, member_type)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			ON CONFLICT (group_id, member_id) DO NOTHING`,
			groupID, m.Value, m.Display, m.Type)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return nil
}

// CreateGroup inserts a group and its initial member set
func (s *PostgresStore) CreateGroup(ctx context.Context, g *Group) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	query := `
		INSERT INTO scim_groups (scim_id, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING ` + groupColumns

	created, err := scanGroup(tx.QueryRow(ctx, query, g.SCIMID, g.DisplayName, now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict(fmt.Sprintf("Group with id %q already exists.", g.SCIMID))
		}
		return nil, fmt.Errorf("create group: %w", err)
	}

	if err := insertMembers(ctx, tx, created.ID, g.Members); err != nil {
		return nil, err
	}
	if created.Members, err = loadMembers(ctx, tx, created.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// GetGroup fetches a group with its members by SCIM id
func (s *PostgresStore) GetGroup(ctx context.Context, scimID string) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + groupColumns + ` FROM scim_groups WHERE scim_id = $1`
	g, err := scanGroup(s.pool.QueryRow(ctx, query, scimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g.Members, err = loadMembers(ctx, s.pool, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// groupFilterClause maps a parsed filter to a WHERE clause on scim_groups
func groupFilterClause(f *Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}
	switch f.Attribute {
	case "displayName":
		return "WHERE display_name = $1", []interface{}{f.Value}
	default: // id
		return "WHERE scim_id = $1", []interface{}{f.Value}
	}
}

// ListGroups returns a page of groups (with members) plus the total match count
func (s *PostgresStore) ListGroups(ctx context.Context, f *Filter, offset, limit int) ([]*Group, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where, args := groupFilterClause(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM scim_groups ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}

	if limit <= 0 {
		return []*Group{}, total, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM scim_groups %s ORDER BY created_at ASC, id ASC OFFSET $%d LIMIT $%d`,
		groupColumns, where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	groups := []*Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, g := range groups {
		if g.Members, err = loadMembers(ctx, s.pool, g.ID); err != nil {
			return nil, 0, err
		}
	}
	return groups, total, nil
}

// ReplaceGroup overwrites displayName and the whole member set atomically
func (s *PostgresStore) ReplaceGroup(ctx context.Context, scimID, displayName string, members []Member) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE scim_groups SET display_name = $2, updated_at = $3
		WHERE scim_id = $1
		RETURNING ` + groupColumns
	g, err := scanGroup(tx.QueryRow(ctx, query, scimID, displayName, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replace group: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM scim_group_members WHERE group_id = $1`, g.ID); err != nil {
		return nil, fmt.Errorf("clear members: %w", err)
	}
	if err := insertMembers(ctx, tx, g.ID, members); err != nil {
		return nil, err
	}
	if g.Members, err = loadMembers(ctx, tx, g.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

// PatchGroup applies a GroupChange in a single transaction
func (s *PostgresStore) PatchGroup(ctx context.Context, scimID string, change *GroupChange) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := scanGroup(tx.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM scim_groups WHERE scim_id = $1 FOR UPDATE`, scimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patch group: %w", err)
	}

	if change.ReplaceMembers != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM scim_group_members WHERE group_id = $1`, g.ID); err != nil {
			return nil, fmt.Errorf("clear members: %w", err)
		}
		if err := insertMembers(ctx, tx, g.ID, *change.ReplaceMembers); err != nil {
			return nil, err
		}
	}
	if err := insertMembers(ctx, tx, g.ID, change.Add); err != nil {
		return nil, err
	}
	if len(change.Remove) > 0 {
		// Removing a non-member is a no-op
		if _, err := tx.Exec(ctx,
			`DELETE FROM scim_group_members WHERE group_id = $1 AND member_id = ANY($2)`,
			g.ID, change.Remove); err != nil {
			return nil, fmt.Errorf("remove members: %w", err)
		}
	}

	displayName := g.DisplayName
	if change.DisplayName != nil {
		displayName = *change.DisplayName
	}
	g, err = scanGroup(tx.QueryRow(ctx,
		`UPDATE scim_groups SET display_name = $2, updated_at = $3 WHERE id = $1 RETURNING `+groupColumns,
		g.ID, displayName, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("patch group: %w", err)
	}

	if g.Members, err = loadMembers(ctx, tx, g.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

// DeleteGroup removes a group; membership rows cascade
func (s *PostgresStore) DeleteGroup(ctx context.Context, scimID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM scim_groups WHERE scim_id = $1`, scimID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------------------------------
// Admin and reporting helpers
// ----------------------------------------------------------------

// SearchUsers returns users whose userName or externalId matches the query
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, offset, limit int) ([]*User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where := ""
	args := []interface{}{}
	if query != "" {
		where = "WHERE user_name ILIKE $1 OR external_id ILIKE $1"
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scim_users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM scim_users %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// SearchGroups returns groups whose displayName matches the query
func (s *PostgresStore) SearchGroups(ctx context.Context, query string, offset, limit int) ([]*Group, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where := ""
	args := []interface{}{}
	if query != "" {
		where = "WHERE display_name ILIKE $1"
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scim_groups `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM scim_groups %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		groupColumns, where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search groups: %w", err)
	}

	groups := []*Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, g := range groups {
		if g.Members, err = loadMembers(ctx, s.pool, g.ID); err != nil {
			return nil, 0, err
		}
	}
	return groups, total, nil
}

// GroupsOfUser returns the groups a member id belongs to
func (s *PostgresStore) GroupsOfUser(ctx context.Context, memberID string) ([]GroupRef, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT g.scim_id, g.display_name
		FROM scim_groups g
		JOIN scim_group_members m ON m.group_id = g.id
		WHERE m.member_id = $1
		ORDER BY g.display_name ASC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("groups of user: %w", err)
	}
	defer rows.Close()

	refs := []GroupRef{}
	for rows.Next() {
		var ref GroupRef
		if err := rows.Scan(&ref.SCIMID, &ref.DisplayName); err != nil {
			return nil, fmt.Errorf("scan group ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UserNames resolves SCIM ids to userNames for display purposes
func (s *PostgresStore) UserNames(ctx context.Context, scimIDs []string) (map[string]string, error) {
	if len(scimIDs) == 0 {
		return map[string]string{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT scim_id, user_name FROM scim_users WHERE scim_id = ANY($1)`, scimIDs)
	if err != nil {
		return nil, fmt.Errorf("user names: %w", err)
	}
	defer rows.Close()

	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// CountUsers returns the total user count
func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scim_users`).Scan(&total)
	return total, err
}

// CountGroups returns the total group count
func (s *PostgresStore) CountGroups(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scim_groups`).Scan(&total)
	return total, err
}

// ExportUsers returns every user, ordered by creation time
func (s *PostgresStore) ExportUsers(ctx context.Context) ([]*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM scim_users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ExportGroups returns every group with members, ordered by creation time
func (s *PostgresStore) ExportGroups(ctx context.Context) ([]*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM scim_groups ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("export groups: %w", err)
	}

	groups := []*Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range groups {
		var err error
		if g.Members, err = loadMembers(ctx, s.pool, g.ID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

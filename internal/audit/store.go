// Package audit records every request against the SCIM endpoint to the
// database and exposes the stored log for inspection.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a log entry does not exist
var ErrNotFound = errors.New("log entry not found")

// RequestLog is one recorded request/response exchange
type RequestLog struct {
	ID           string            `json:"id"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Status       int               `json:"status"`
	DurationMS   int               `json:"durationMs"`
	Headers      map[string]string `json:"headers,omitempty"`
	RequestBody  string            `json:"requestBody,omitempty"`
	ResponseBody string            `json:"responseBody,omitempty"`
	ErrorDetail  string            `json:"errorDetail,omitempty"`
	ClientID     string            `json:"clientId,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Query filters a log listing
type Query struct {
	Method        string
	Status        int
	HasError      *bool
	URLContains   string
	Search        string
	Since         *time.Time
	Until         *time.Time
	IncludeAdmin  bool
	HideKeepalive bool
	Offset        int
	Limit         int
}

// Store is the persistence interface for request logs
type Store interface {
	Insert(ctx context.Context, entry *RequestLog) error
	List(ctx context.Context, q Query) ([]*RequestLog, int, error)
	Get(ctx context.Context, id string) (*RequestLog, error)
	Clear(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL log store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the log table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			status INT NOT NULL,
			duration_ms INT NOT NULL DEFAULT 0,
			headers JSONB,
			request_body TEXT,
			response_body TEXT,
			error_detail TEXT,
			client_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs (created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Insert stores one log entry
func (s *PostgresStore) Insert(ctx context.Context, entry *RequestLog) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headersJSON, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO request_logs
			(id, method, url, status, duration_ms, headers, request_body, response_body, error_detail, client_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), $11)`,
		entry.ID, entry.Method, entry.URL, entry.Status, entry.DurationMS,
		headersJSON, entry.RequestBody, entry.ResponseBody, entry.ErrorDetail,
		entry.ClientID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func buildWhere(q Query) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if q.Method != "" {
		add("method = $%d", q.Method)
	}
	if q.Status != 0 {
		add("status = $%d", q.Status)
	}
	if q.HasError != nil {
		if *q.HasError {
			clauses = append(clauses, "status >= 400")
		} else {
			clauses = append(clauses, "status < 400")
		}
	}
	if q.URLContains != "" {
		add("url ILIKE $%d", "%"+q.URLContains+"%")
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		args = append(args, pattern)
		n := strconv.Itoa(len(args))
		clauses = append(clauses,
			"(url ILIKE $"+n+" OR request_body ILIKE $"+n+" OR response_body ILIKE $"+n+")")
	}
	if q.Since != nil {
		add("created_at >= $%d", *q.Since)
	}
	if q.Until != nil {
		add("created_at <= $%d", *q.Until)
	}
	if !q.IncludeAdmin {
		clauses = append(clauses, "url NOT LIKE '/admin%'")
	}
	if q.HideKeepalive {
		clauses = append(clauses, "url NOT ILIKE '%ServiceProviderConfig%'")
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + clauses[0]
		for _, clause := range clauses[1:] {
			where += " AND " + clause
		}
	}
	return where, args
}

const logColumns = `id, method, url, status, duration_ms, COALESCE(headers, '{}'), COALESCE(request_body, ''),
	COALESCE(response_body, ''), COALESCE(error_detail, ''), COALESCE(client_id, ''), created_at`

func scanLog(row pgx.Row) (*RequestLog, error) {
	var entry RequestLog
	var headersJSON []byte
	if err := row.Scan(&entry.ID, &entry.Method, &entry.URL, &entry.Status, &entry.DurationMS,
		&headersJSON, &entry.RequestBody, &entry.ResponseBody, &entry.ErrorDetail,
		&entry.ClientID, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &entry.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return &entry, nil
}

// List returns a page of log entries, newest first, plus the total match count
func (s *PostgresStore) List(ctx context.Context, q Query) ([]*RequestLog, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	where, args := buildWhere(q)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM request_logs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM request_logs %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		logColumns, where, len(args)+1, len(args)+2)
	args = append(args, q.Offset, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := []*RequestLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, total, rows.Err()
}

// Get fetches a single log entry by id
func (s *PostgresStore) Get(ctx context.Context, id string) (*RequestLog, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	entry, err := scanLog(s.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM request_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get log: %w", err)
	}
	return entry, nil
}

// Clear deletes all log entries and returns how many were removed
func (s *PostgresStore) Clear(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM request_logs`)
	if err != nil {
		return 0, fmt.Errorf("clear logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the total log entry count
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM request_logs`).Scan(&total)
	return total, err
}

// CountSince returns the number of log entries created after the given time
func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM request_logs WHERE created_at >= $1`, since).Scan(&total)
	return total, err
}

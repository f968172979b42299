package audit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memLogStore is an in-memory Store for the package tests
type memLogStore struct {
	mu      sync.Mutex
	entries []*RequestLog
}

func newMemLogStore() *memLogStore {
	return &memLogStore{}
}

func (s *memLogStore) Insert(_ context.Context, entry *RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memLogStore) matches(entry *RequestLog, q Query) bool {
	if q.Method != "" && entry.Method != q.Method {
		return false
	}
	if q.Status != 0 && entry.Status != q.Status {
		return false
	}
	if q.HasError != nil && (entry.Status >= 400) != *q.HasError {
		return false
	}
	if q.URLContains != "" && !strings.Contains(strings.ToLower(entry.URL), strings.ToLower(q.URLContains)) {
		return false
	}
	if !q.IncludeAdmin && strings.HasPrefix(entry.URL, "/admin") {
		return false
	}
	if q.HideKeepalive && strings.Contains(entry.URL, "ServiceProviderConfig") {
		return false
	}
	if q.Since != nil && entry.CreatedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && entry.CreatedAt.After(*q.Until) {
		return false
	}
	return true
}

func (s *memLogStore) List(_ context.Context, q Query) ([]*RequestLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*RequestLog{}
	// Newest first
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.matches(s.entries[i], q) {
			matched = append(matched, s.entries[i])
		}
	}
	total := len(matched)

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	page := []*RequestLog{}
	for i := q.Offset; i < len(matched) && len(page) < limit; i++ {
		page = append(page, matched[i])
	}
	return page, total, nil
}

func (s *memLogStore) Get(_ context.Context, id string) (*RequestLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memLogStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.entries)
	s.entries = nil
	return removed, nil
}

func (s *memLogStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *memLogStore) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, entry := range s.entries {
		if !entry.CreatedAt.Before(since) {
			total++
		}
	}
	return total, nil
}

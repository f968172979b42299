// Package storage provides a small append-only journal used to keep a
// tamper-evident history of backup runs.
package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AppendOnlyStore is a journal that only ever grows. Entries are opaque
// byte records; one record per line.
type AppendOnlyStore interface {
	// Append adds one record to the end of the journal
	Append(data []byte) error

	// ReadAll returns every record in insertion order
	ReadAll() ([][]byte, error)
}

// FileAppendOnlyStore implements AppendOnlyStore on a single file
type FileAppendOnlyStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileAppendOnlyStore opens (creating if needed) a file-backed journal
func NewFileAppendOnlyStore(path string) (*FileAppendOnlyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	file.Close()
	return &FileAppendOnlyStore{path: path}, nil
}

// Append writes one record and syncs it to disk
func (s *FileAppendOnlyStore) Append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// ReadAll returns every record in the journal
func (s *FileAppendOnlyStore) ReadAll() ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	records := [][]byte{}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		records = append(records, line)
	}
	return records, nil
}

// MemoryAppendOnlyStore implements AppendOnlyStore in memory, for tests
type MemoryAppendOnlyStore struct {
	mu      sync.RWMutex
	records [][]byte
}

// NewMemoryAppendOnlyStore creates an empty in-memory journal
func NewMemoryAppendOnlyStore() *MemoryAppendOnlyStore {
	return &MemoryAppendOnlyStore{}
}

// Append stores a copy of the record
func (s *MemoryAppendOnlyStore) Append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, append([]byte(nil), data...))
	return nil
}

// ReadAll returns copies of every record
func (s *MemoryAppendOnlyStore) ReadAll() ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.records))
	for i, record := range s.records {
		out[i] = append([]byte(nil), record...)
	}
	return out, nil
}

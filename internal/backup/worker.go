// Package backup periodically snapshots the resource database to a JSON
// document on disk so a dev-tunnel deployment can be restored after a wipe.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/scim"
	"github.com/scimtool/scimtool/pkg/storage"
)

// Snapshot is the on-disk backup document
type Snapshot struct {
	CreatedAt time.Time     `json:"createdAt"`
	Users     []*scim.User  `json:"users"`
	Groups    []*scim.Group `json:"groups"`
}

// Stats describes the worker's recent activity
type Stats struct {
	Enabled   bool      `json:"enabled"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Path      string    `json:"path"`
}

// RunRecord is one journal entry describing a completed snapshot. Checksum
// chains to the previous record so a rewritten history is detectable.
type RunRecord struct {
	At           time.Time `json:"at"`
	Users        int       `json:"users"`
	Groups       int       `json:"groups"`
	Bytes        int       `json:"bytes"`
	Checksum     string    `json:"checksum"`
	PrevChecksum string    `json:"prevChecksum,omitempty"`
}

// Worker writes periodic snapshots of the resource store
type Worker struct {
	store    scim.Store
	journal  storage.AppendOnlyStore
	path     string
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	stats    Stats
	lastHash string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWorker creates a backup worker. interval must be positive; journal may
// be nil when run history is not wanted.
func NewWorker(store scim.Store, journal storage.AppendOnlyStore, path string, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		store:    store,
		journal:  journal,
		path:     path,
		interval: interval,
		logger:   logger,
		stats:    Stats{Enabled: true, Path: path},
	}
}

// Start launches the periodic snapshot loop
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.Run(ctx); err != nil {
					w.logger.Error("Backup run failed", zap.Error(err))
				}
			}
		}
	}()
	w.logger.Info("Backup worker started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
}

// Stop terminates the loop and waits for an in-flight run to finish
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Name identifies the worker to the shutdown manager
func (w *Worker) Name() string {
	return "backup-worker"
}

// Shutdown implements the graceful shutdown hook
func (w *Worker) Shutdown(ctx context.Context) error {
	w.Stop()
	return nil
}

// Run performs one snapshot. The document is written to a temp file and
// renamed into place so a crash mid-write never corrupts the last backup.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	err := w.snapshot(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now().UTC()
	if err != nil {
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastError = ""
	}
	w.mu.Unlock()
	return err
}

func (w *Worker) snapshot(ctx context.Context) error {
	users, err := w.store.ExportUsers(ctx)
	if err != nil {
		return fmt.Errorf("export users: %w", err)
	}
	groups, err := w.store.ExportGroups(ctx)
	if err != nil {
		return fmt.Errorf("export groups: %w", err)
	}

	doc := Snapshot{
		CreatedAt: time.Now().UTC(),
		Users:     users,
		Groups:    groups,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	w.recordRun(len(users), len(groups), data)

	w.logger.Debug("Backup written",
		zap.Int("users", len(users)),
		zap.Int("groups", len(groups)))
	return nil
}

// recordRun appends a chained journal entry for a completed snapshot.
// Journal failures never fail the backup itself.
func (w *Worker) recordRun(users, groups int, data []byte) {
	if w.journal == nil {
		return
	}

	sum := sha256.Sum256(data)
	record := RunRecord{
		At:       time.Now().UTC(),
		Users:    users,
		Groups:   groups,
		Bytes:    len(data),
		Checksum: hex.EncodeToString(sum[:]),
	}

	w.mu.Lock()
	record.PrevChecksum = w.lastHash
	w.lastHash = record.Checksum
	w.mu.Unlock()

	entry, err := json.Marshal(record)
	if err != nil {
		w.logger.Warn("Failed to marshal backup record", zap.Error(err))
		return
	}
	if err := w.journal.Append(entry); err != nil {
		w.logger.Warn("Failed to journal backup run", zap.Error(err))
	}
}

// History returns the journaled run records, oldest first
func (w *Worker) History() ([]RunRecord, error) {
	if w.journal == nil {
		return []RunRecord{}, nil
	}
	raw, err := w.journal.ReadAll()
	if err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(raw))
	for _, line := range raw {
		var record RunRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Stats returns a copy of the worker's current stats
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

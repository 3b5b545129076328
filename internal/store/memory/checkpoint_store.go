// Package memory provides an in-process CheckpointStore for tests and for
// running without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// CheckpointStore implements domain.CheckpointStore in process memory.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]domain.ScanCheckpoint

	now func() time.Time
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]domain.ScanCheckpoint),
		now:         time.Now,
	}
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)

// Create inserts a fresh in-progress checkpoint.
func (s *CheckpointStore) Create(_ context.Context, cp domain.ScanCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[cp.ScanID]; exists {
		return fmt.Errorf("memory: create checkpoint %s: already exists", cp.ScanID)
	}

	now := s.now()
	cp.Status = domain.CheckpointInProgress
	cp.FailReason = ""
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.Metadata != nil {
		meta := make(map[string]string, len(cp.Metadata))
		for k, v := range cp.Metadata {
			meta[k] = v
		}
		cp.Metadata = meta
	}
	s.checkpoints[cp.ScanID] = cp
	return nil
}

// Save updates cursor and progress for an in-progress checkpoint.
func (s *CheckpointStore) Save(_ context.Context, scanID, cursor string, processedCount, totalEstimate int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[scanID]
	if !ok || cp.Status != domain.CheckpointInProgress {
		return fmt.Errorf("memory: save checkpoint %s: %w", scanID, domain.ErrNotFound)
	}
	if processedCount < cp.ProcessedCount {
		return fmt.Errorf("memory: save checkpoint %s: count %d behind %d: %w",
			scanID, processedCount, cp.ProcessedCount, domain.ErrCheckpointRegressed)
	}

	cp.Cursor = cursor
	cp.ProcessedCount = processedCount
	if totalEstimate > 0 {
		cp.TotalEstimate = totalEstimate
	}
	cp.UpdatedAt = s.now()
	s.checkpoints[scanID] = cp
	return nil
}

// Complete marks the checkpoint completed.
func (s *CheckpointStore) Complete(ctx context.Context, scanID string) error {
	return s.finish(scanID, domain.CheckpointCompleted, "")
}

// Fail marks the checkpoint failed with the given cause.
func (s *CheckpointStore) Fail(ctx context.Context, scanID, reason string) error {
	return s.finish(scanID, domain.CheckpointFailed, reason)
}

func (s *CheckpointStore) finish(scanID string, status domain.CheckpointStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[scanID]
	if !ok || cp.Status != domain.CheckpointInProgress {
		return fmt.Errorf("memory: finish checkpoint %s: %w", scanID, domain.ErrNotFound)
	}
	cp.Status = status
	cp.FailReason = reason
	cp.UpdatedAt = s.now()
	s.checkpoints[scanID] = cp
	return nil
}

// LoadActive returns all non-terminal checkpoints for the owner, oldest
// first, optionally narrowed by scan type.
func (s *CheckpointStore) LoadActive(_ context.Context, owner, scanType string) ([]domain.ScanCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ScanCheckpoint
	for _, cp := range s.checkpoints {
		if cp.Owner != owner || cp.Status.Terminal() {
			continue
		}
		if scanType != "" && cp.ScanType != scanType {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PurgeOlderThan deletes terminal checkpoints last updated more than
// retention ago.
func (s *CheckpointStore) PurgeOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	var purged int64
	for id, cp := range s.checkpoints {
		if cp.Status.Terminal() && cp.UpdatedAt.Before(cutoff) {
			delete(s.checkpoints, id)
			purged++
		}
	}
	return purged, nil
}

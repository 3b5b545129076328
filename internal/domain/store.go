package domain

import (
	"context"
	"time"
)

// CheckpointStore persists scan checkpoints. The scanner only ever touches
// checkpoints through this interface, which is what keeps its resume logic
// storage-agnostic.
type CheckpointStore interface {
	// Create inserts a fresh in-progress checkpoint.
	Create(ctx context.Context, cp ScanCheckpoint) error

	// Save updates cursor and progress for an in-progress checkpoint.
	// ProcessedCount is monotonic: a save that would lower it fails with
	// ErrCheckpointRegressed. TotalEstimate is the upstream's advisory
	// catalog size; zero leaves the stored estimate untouched.
	Save(ctx context.Context, scanID, cursor string, processedCount, totalEstimate int64) error

	// Complete marks the checkpoint completed.
	Complete(ctx context.Context, scanID string) error

	// Fail marks the checkpoint failed with the given cause.
	Fail(ctx context.Context, scanID, reason string) error

	// LoadActive returns all non-terminal checkpoints for the owner,
	// optionally narrowed by scan type (empty means any).
	LoadActive(ctx context.Context, owner, scanType string) ([]ScanCheckpoint, error)

	// PurgeOlderThan deletes terminal checkpoints last updated more than
	// retention ago and returns how many were removed.
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

package domain

import "time"

// CheckpointStatus is the lifecycle state of a scan checkpoint.
type CheckpointStatus string

const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// Terminal reports whether the status is a terminal one.
func (s CheckpointStatus) Terminal() bool {
	return s == CheckpointCompleted || s == CheckpointFailed
}

// ScanCheckpoint is the durable progress record of one scan. A restarted
// process resumes a non-terminal checkpoint from its cursor instead of
// rescanning the catalog from the start. Owner partitions checkpoints
// between processes; this core assumes a single writer per checkpoint.
type ScanCheckpoint struct {
	ScanID         string
	Owner          string
	ScanType       string // e.g. "catalog"
	Game           Game
	Level          ScanLevel
	Cursor         string
	ProcessedCount int64
	TotalEstimate  int64
	Status         CheckpointStatus
	FailReason     string
	// Metadata carries free-form scan parameters (filters, thresholds).
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

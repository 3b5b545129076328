package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

func newCheckpoint(scanID string) domain.ScanCheckpoint {
	return domain.ScanCheckpoint{
		ScanID:   scanID,
		Owner:    "worker-1",
		ScanType: "catalog",
		Game:     "a8db",
		Level:    domain.LevelStandard,
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	require.NoError(t, store.Create(ctx, newCheckpoint("scan-1")))
	require.NoError(t, store.Save(ctx, "scan-1", "cursor-a", 100, 5000))
	// A zero estimate leaves the stored one untouched.
	require.NoError(t, store.Save(ctx, "scan-1", "cursor-b", 200, 0))

	active, err := store.LoadActive(ctx, "worker-1", "catalog")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cursor-b", active[0].Cursor)
	assert.Equal(t, int64(200), active[0].ProcessedCount)
	assert.Equal(t, int64(5000), active[0].TotalEstimate)
	assert.Equal(t, domain.CheckpointInProgress, active[0].Status)

	require.NoError(t, store.Complete(ctx, "scan-1"))
	active, err = store.LoadActive(ctx, "worker-1", "catalog")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSaveRejectsRegression(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	require.NoError(t, store.Create(ctx, newCheckpoint("scan-1")))
	require.NoError(t, store.Save(ctx, "scan-1", "cursor-a", 300, 0))

	err := store.Save(ctx, "scan-1", "cursor-z", 250, 0)
	require.ErrorIs(t, err, domain.ErrCheckpointRegressed)

	// Equal counts are allowed: a cursor can advance without new listings.
	require.NoError(t, store.Save(ctx, "scan-1", "cursor-b", 300, 0))

	active, err := store.LoadActive(ctx, "worker-1", "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cursor-b", active[0].Cursor)
}

func TestSaveAfterTerminalFails(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	require.NoError(t, store.Create(ctx, newCheckpoint("scan-1")))
	require.NoError(t, store.Fail(ctx, "scan-1", "upstream down"))

	err := store.Save(ctx, "scan-1", "cursor-a", 10, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadActiveFiltersOwnerAndType(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	cp := newCheckpoint("scan-1")
	require.NoError(t, store.Create(ctx, cp))

	other := newCheckpoint("scan-2")
	other.Owner = "worker-2"
	require.NoError(t, store.Create(ctx, other))

	inv := newCheckpoint("scan-3")
	inv.ScanType = "inventory"
	require.NoError(t, store.Create(ctx, inv))

	active, err := store.LoadActive(ctx, "worker-1", "catalog")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "scan-1", active[0].ScanID)

	active, err = store.LoadActive(ctx, "worker-1", "")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, newCheckpoint("old-done")))
	require.NoError(t, store.Complete(ctx, "old-done"))
	require.NoError(t, store.Create(ctx, newCheckpoint("old-active")))

	now = now.Add(48 * time.Hour)
	require.NoError(t, store.Create(ctx, newCheckpoint("fresh-done")))
	require.NoError(t, store.Complete(ctx, "fresh-done"))

	purged, err := store.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// The stale in-progress checkpoint survives for resume.
	active, err := store.LoadActive(ctx, "worker-1", "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "old-active", active[0].ScanID)
}

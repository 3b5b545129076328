package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// CheckpointStore implements domain.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a new CheckpointStore backed by the given
// connection pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)

// Create inserts a fresh in-progress checkpoint.
func (s *CheckpointStore) Create(ctx context.Context, cp domain.ScanCheckpoint) error {
	meta := cp.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("postgres: marshal checkpoint metadata %s: %w", cp.ScanID, err)
	}

	const query = `
		INSERT INTO scan_checkpoints (
			scan_id, owner, scan_type, game, level, cursor,
			processed_count, total_estimate, status, fail_reason,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, NOW(), NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		cp.ScanID, cp.Owner, cp.ScanType,
		string(cp.Game), int16(cp.Level), cp.Cursor,
		cp.ProcessedCount, cp.TotalEstimate,
		string(domain.CheckpointInProgress), "",
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: create checkpoint %s: %w", cp.ScanID, err)
	}
	return nil
}

// Save updates cursor and progress for an in-progress checkpoint. The
// WHERE clause enforces both that the checkpoint is still in progress and
// that progress never moves backwards; distinguishing the two failure
// causes requires a second read.
func (s *CheckpointStore) Save(ctx context.Context, scanID, cursor string, processedCount, totalEstimate int64) error {
	const query = `
		UPDATE scan_checkpoints
		SET cursor = $1, processed_count = $2,
		    total_estimate = CASE WHEN $5 > 0 THEN $5 ELSE total_estimate END,
		    updated_at = NOW()
		WHERE scan_id = $3
		  AND status = $4
		  AND processed_count <= $2`

	tag, err := s.pool.Exec(ctx, query,
		cursor, processedCount, scanID, string(domain.CheckpointInProgress), totalEstimate,
	)
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint %s: %w", scanID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current int64
	err = s.pool.QueryRow(ctx,
		"SELECT processed_count FROM scan_checkpoints WHERE scan_id = $1 AND status = $2",
		scanID, string(domain.CheckpointInProgress),
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: save checkpoint %s: %w", scanID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("postgres: save checkpoint %s: %w", scanID, err)
	}
	return fmt.Errorf("postgres: save checkpoint %s: count %d behind %d: %w",
		scanID, processedCount, current, domain.ErrCheckpointRegressed)
}

// Complete marks the checkpoint completed.
func (s *CheckpointStore) Complete(ctx context.Context, scanID string) error {
	return s.finish(ctx, scanID, domain.CheckpointCompleted, "")
}

// Fail marks the checkpoint failed with the given cause.
func (s *CheckpointStore) Fail(ctx context.Context, scanID, reason string) error {
	return s.finish(ctx, scanID, domain.CheckpointFailed, reason)
}

func (s *CheckpointStore) finish(ctx context.Context, scanID string, status domain.CheckpointStatus, reason string) error {
	const query = `
		UPDATE scan_checkpoints
		SET status = $1, fail_reason = $2, updated_at = NOW()
		WHERE scan_id = $3 AND status = $4`

	tag, err := s.pool.Exec(ctx, query,
		string(status), reason, scanID, string(domain.CheckpointInProgress),
	)
	if err != nil {
		return fmt.Errorf("postgres: finish checkpoint %s: %w", scanID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish checkpoint %s: %w", scanID, domain.ErrNotFound)
	}
	return nil
}

// LoadActive returns all non-terminal checkpoints for the owner, oldest
// first, optionally narrowed by scan type.
func (s *CheckpointStore) LoadActive(ctx context.Context, owner, scanType string) ([]domain.ScanCheckpoint, error) {
	query := `
		SELECT scan_id, owner, scan_type, game, level, cursor,
		       processed_count, total_estimate, status, fail_reason,
		       metadata, created_at, updated_at
		FROM scan_checkpoints
		WHERE owner = $1 AND status = $2`
	args := []any{owner, string(domain.CheckpointInProgress)}
	if scanType != "" {
		query += " AND scan_type = $3"
		args = append(args, scanType)
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load active checkpoints for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []domain.ScanCheckpoint
	for rows.Next() {
		cp, err := scanCheckpointRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate checkpoints: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes terminal checkpoints last updated more than
// retention ago and returns how many were removed.
func (s *CheckpointStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	const query = `
		DELETE FROM scan_checkpoints
		WHERE status IN ($1, $2)
		  AND updated_at < NOW() - $3::interval`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.CheckpointCompleted), string(domain.CheckpointFailed),
		retention.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCheckpointRow(row pgx.Row) (domain.ScanCheckpoint, error) {
	var (
		cp       domain.ScanCheckpoint
		game     string
		level    int16
		status   string
		metaJSON []byte
	)
	err := row.Scan(
		&cp.ScanID, &cp.Owner, &cp.ScanType, &game, &level, &cp.Cursor,
		&cp.ProcessedCount, &cp.TotalEstimate, &status, &cp.FailReason,
		&metaJSON, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		return domain.ScanCheckpoint{}, err
	}
	cp.Game = domain.Game(game)
	cp.Level = domain.ScanLevel(level)
	cp.Status = domain.CheckpointStatus(status)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &cp.Metadata); err != nil {
			return domain.ScanCheckpoint{}, fmt.Errorf("decode metadata for %s: %w", cp.ScanID, err)
		}
	}
	return cp, nil
}

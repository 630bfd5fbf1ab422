package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// WorkUnitRepository handles work unit data persistence
type WorkUnitRepository struct {
	db *PostgresDB
}

// NewWorkUnitRepository creates a new work unit repository
func NewWorkUnitRepository(db *PostgresDB) *WorkUnitRepository {
	return &WorkUnitRepository{db: db}
}

const workUnitColumns = `id, owner_id, batch_id, client_id, snapshot_json, created_at, updated_at`

func scanWorkUnit(row pgx.Row) (*models.WorkUnit, error) {
	var wu models.WorkUnit
	err := row.Scan(
		&wu.ID,
		&wu.OwnerID,
		&wu.BatchID,
		&wu.ClientID,
		&wu.Snapshot,
		&wu.CreatedAt,
		&wu.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wu, nil
}

// Upsert creates a work unit or refreshes its snapshot, keyed by
// (batch, client). Existing work units keep their IDs so payments stay
// attached across repeated syncs.
func (r *WorkUnitRepository) Upsert(ctx context.Context, wu *models.WorkUnit) error {
	if wu.ID == "" {
		wu.ID = uuid.New().String()
	}
	if len(wu.Snapshot) == 0 {
		wu.Snapshot = []byte("{}")
	}

	now := time.Now()

	query := `
		INSERT INTO work_units (id, owner_id, batch_id, client_id, snapshot_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (batch_id, client_id) DO UPDATE SET
			snapshot_json = EXCLUDED.snapshot_json,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + workUnitColumns

	stored, err := scanWorkUnit(r.db.Pool().QueryRow(ctx, query,
		wu.ID,
		wu.OwnerID,
		wu.BatchID,
		wu.ClientID,
		wu.Snapshot,
		now,
	))
	if err != nil {
		return fmt.Errorf("failed to upsert work unit: %w", err)
	}

	*wu = *stored
	return nil
}

// GetByID retrieves a work unit by ID within an owner scope
func (r *WorkUnitRepository) GetByID(ctx context.Context, ownerID, id string) (*models.WorkUnit, error) {
	query := `SELECT ` + workUnitColumns + ` FROM work_units WHERE owner_id = $1 AND id = $2`

	wu, err := scanWorkUnit(r.db.Pool().QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("work unit not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get work unit: %w", err)
	}

	return wu, nil
}

// FindForClient retrieves a client's most recent work unit under a batch of
// the given kind, or nil when none exists.
func (r *WorkUnitRepository) FindForClient(ctx context.Context, ownerID, clientID string, kind types.BatchKind) (*models.WorkUnit, error) {
	query := `
		SELECT wu.id, wu.owner_id, wu.batch_id, wu.client_id, wu.snapshot_json, wu.created_at, wu.updated_at
		FROM work_units wu
		JOIN batches b ON b.id = wu.batch_id
		WHERE wu.owner_id = $1 AND wu.client_id = $2 AND b.kind = $3
		ORDER BY wu.updated_at DESC
		LIMIT 1`

	wu, err := scanWorkUnit(r.db.Pool().QueryRow(ctx, query, ownerID, clientID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find work unit: %w", err)
	}

	return wu, nil
}

// ListByBatch retrieves all work units under a batch
func (r *WorkUnitRepository) ListByBatch(ctx context.Context, ownerID, batchID string) ([]*models.WorkUnit, error) {
	query := `SELECT ` + workUnitColumns + ` FROM work_units WHERE owner_id = $1 AND batch_id = $2 ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work units: %w", err)
	}
	defer rows.Close()

	var units []*models.WorkUnit
	for rows.Next() {
		wu, err := scanWorkUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work unit: %w", err)
		}
		units = append(units, wu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work units: %w", err)
	}

	return units, nil
}

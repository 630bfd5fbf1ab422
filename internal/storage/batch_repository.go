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

// BatchRepository handles batch data persistence
type BatchRepository struct {
	db *PostgresDB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *PostgresDB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, owner_id, name, kind, snapshot_json, created_at, updated_at`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var b models.Batch
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.Kind,
		&b.Snapshot,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if len(batch.Snapshot) == 0 {
		batch.Snapshot = []byte("{}")
	}

	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	query := `
		INSERT INTO batches (id, owner_id, name, kind, snapshot_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Pool().Exec(ctx, query,
		batch.ID,
		batch.OwnerID,
		batch.Name,
		batch.Kind,
		batch.Snapshot,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by ID within an owner scope
func (r *BatchRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE owner_id = $1 AND id = $2`

	batch, err := scanBatch(r.db.Pool().QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

// GetLatestByKind retrieves the most recently updated batch of a kind, or
// nil when the owner has none yet.
func (r *BatchRepository) GetLatestByKind(ctx context.Context, ownerID string, kind types.BatchKind) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + `
		FROM batches
		WHERE owner_id = $1 AND kind = $2
		ORDER BY updated_at DESC
		LIMIT 1`

	batch, err := scanBatch(r.db.Pool().QueryRow(ctx, query, ownerID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest batch: %w", err)
	}

	return batch, nil
}

// UpdateSnapshot replaces a batch's name and document snapshot
func (r *BatchRepository) UpdateSnapshot(ctx context.Context, ownerID, id, name string, snapshot []byte) error {
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}

	query := `
		UPDATE batches
		SET name = $3, snapshot_json = $4, updated_at = $5
		WHERE owner_id = $1 AND id = $2`

	tag, err := r.db.Pool().Exec(ctx, query, ownerID, id, name, snapshot, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update batch snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch not found: %s", id)
	}

	return nil
}

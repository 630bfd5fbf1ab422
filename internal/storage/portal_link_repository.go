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

// PortalLinkRepository handles portal link persistence. Only token hashes
// are stored; plaintext tokens exist in memory at issuance time and never
// again.
type PortalLinkRepository struct {
	db *PostgresDB
}

// NewPortalLinkRepository creates a new portal link repository
func NewPortalLinkRepository(db *PostgresDB) *PortalLinkRepository {
	return &PortalLinkRepository{db: db}
}

const portalLinkColumns = `id, owner_id, client_id, work_unit_id, scope, token_hash, issued_at, expires_at, last_used_at`

func scanPortalLink(row pgx.Row) (*models.PortalLink, error) {
	var l models.PortalLink
	err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.ClientID,
		&l.WorkUnitID,
		&l.Scope,
		&l.TokenHash,
		&l.IssuedAt,
		&l.ExpiresAt,
		&l.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Issue expires every currently valid link for the (work unit, scope) pair
// and inserts the new one in the same transaction, so at most one valid link
// exists at a time.
func (r *PortalLinkRepository) Issue(ctx context.Context, link *models.PortalLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin issue transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	now := time.Now()

	expireQuery := `
		UPDATE portal_links
		SET expires_at = $3
		WHERE work_unit_id = $1 AND scope = $2
			AND (expires_at IS NULL OR expires_at > $3)`

	if _, err := tx.Exec(ctx, expireQuery, link.WorkUnitID, link.Scope, now); err != nil {
		return fmt.Errorf("failed to expire previous links: %w", err)
	}

	insertQuery := `
		INSERT INTO portal_links (id, owner_id, client_id, work_unit_id, scope, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, insertQuery,
		link.ID, link.OwnerID, link.ClientID, link.WorkUnitID, link.Scope,
		link.TokenHash, link.IssuedAt, link.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert portal link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit issue transaction: %w", err)
	}

	return nil
}

// ResolveByHash retrieves the link matching a token hash if it is still
// valid at the given instant.
func (r *PortalLinkRepository) ResolveByHash(ctx context.Context, tokenHash string, scope types.PortalScope, now time.Time) (*models.PortalLink, error) {
	query := `SELECT ` + portalLinkColumns + `
		FROM portal_links
		WHERE token_hash = $1 AND scope = $2
			AND (expires_at IS NULL OR expires_at > $3)`

	link, err := scanPortalLink(r.db.Pool().QueryRow(ctx, query, tokenHash, scope, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve portal link: %w", err)
	}

	return link, nil
}

// Touch records a successful use of the link
func (r *PortalLinkRepository) Touch(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE portal_links SET last_used_at = $2 WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("failed to touch portal link: %w", err)
	}

	return nil
}

// GetValidForWorkUnit retrieves the currently valid link for a work unit,
// or nil when none exists.
func (r *PortalLinkRepository) GetValidForWorkUnit(ctx context.Context, ownerID, workUnitID string, scope types.PortalScope, now time.Time) (*models.PortalLink, error) {
	query := `SELECT ` + portalLinkColumns + `
		FROM portal_links
		WHERE owner_id = $1 AND work_unit_id = $2 AND scope = $3
			AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY issued_at DESC
		LIMIT 1`

	link, err := scanPortalLink(r.db.Pool().QueryRow(ctx, query, ownerID, workUnitID, scope, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get portal link: %w", err)
	}

	return link, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payplan-sync/internal/models"
)

// ClientRepository handles client data persistence
type ClientRepository struct {
	db *PostgresDB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *PostgresDB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `id, owner_id, client_code, name, addressee_name, entity_type, primary_email, created_at, updated_at`

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.ClientCode,
		&c.Name,
		&c.AddresseeName,
		&c.EntityType,
		&c.PrimaryEmail,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert creates a client or refreshes its profile fields, keyed by
// (owner, client code).
func (r *ClientRepository) Upsert(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.New().String()
	}

	now := time.Now()

	query := `
		INSERT INTO clients (id, owner_id, client_code, name, addressee_name, entity_type, primary_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (owner_id, client_code) DO UPDATE SET
			name = EXCLUDED.name,
			addressee_name = EXCLUDED.addressee_name,
			entity_type = EXCLUDED.entity_type,
			primary_email = CASE WHEN EXCLUDED.primary_email <> '' THEN EXCLUDED.primary_email ELSE clients.primary_email END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + clientColumns

	stored, err := scanClient(r.db.Pool().QueryRow(ctx, query,
		client.ID,
		client.OwnerID,
		client.ClientCode,
		client.Name,
		client.AddresseeName,
		client.EntityType,
		client.PrimaryEmail,
		now,
	))
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}

	*client = *stored
	return nil
}

// GetByID retrieves a client by ID within an owner scope
func (r *ClientRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = $1 AND id = $2`

	client, err := scanClient(r.db.Pool().QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return client, nil
}

// GetByCode retrieves a client by its wizard-local client code
func (r *ClientRepository) GetByCode(ctx context.Context, ownerID, clientCode string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = $1 AND client_code = $2`

	client, err := scanClient(r.db.Pool().QueryRow(ctx, query, ownerID, clientCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client not found: %s", clientCode)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return client, nil
}

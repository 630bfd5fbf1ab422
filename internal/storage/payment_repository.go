package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
	"github.com/shopspring/decimal"
)

// PaymentRepository handles payment data persistence. Multi-row invariants
// (sync application, confirmation with its audit event) run inside a single
// transaction here so callers cannot observe partial state.
type PaymentRepository struct {
	db *PostgresDB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *PostgresDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, owner_id, work_unit_id, scope, state_code, payment_type,
	quarter, due_date, amount::text, tax_year, notes, method, sort_order, identity_key, status,
	confirmed_at, confirmed_by_email, confirmed_date, confirmed_amount::text,
	confirmation_number, confirmation_note, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var amountStr, confirmedAmountStr *string

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.WorkUnitID,
		&p.Scope,
		&p.StateCode,
		&p.PaymentType,
		&p.Quarter,
		&p.DueDate,
		&amountStr,
		&p.TaxYear,
		&p.Notes,
		&p.Method,
		&p.SortOrder,
		&p.IdentityKey,
		&p.Status,
		&p.ConfirmedAt,
		&p.ConfirmedByEmail,
		&p.ConfirmedDate,
		&confirmedAmountStr,
		&p.ConfirmationNumber,
		&p.ConfirmationNote,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amountStr != nil {
		d, err := decimal.NewFromString(*amountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", *amountStr, err)
		}
		p.Amount = &d
	}
	if confirmedAmountStr != nil {
		d, err := decimal.NewFromString(*confirmedAmountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid confirmed amount %q: %w", *confirmedAmountStr, err)
		}
		p.ConfirmedAmount = &d
	}

	return &p, nil
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// ListByWorkUnit retrieves all payments under a work unit, in document order
func (r *PaymentRepository) ListByWorkUnit(ctx context.Context, ownerID, workUnitID string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE owner_id = $1 AND work_unit_id = $2
		ORDER BY scope, sort_order`

	return r.queryPayments(ctx, query, ownerID, workUnitID)
}

// ListQuarter retrieves the non-cancelled payments for one tax quarter of a
// work unit, the set a quarterly instruction email covers.
func (r *PaymentRepository) ListQuarter(ctx context.Context, ownerID, workUnitID string, taxYear, quarter int) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE owner_id = $1 AND work_unit_id = $2
			AND tax_year = $3 AND quarter = $4
			AND status <> 'CANCELLED'
		ORDER BY scope, sort_order`

	return r.queryPayments(ctx, query, ownerID, workUnitID, taxYear, quarter)
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}

// GetByID retrieves a payment by ID within an owner scope
func (r *PaymentRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE owner_id = $1 AND id = $2`

	p, err := scanPayment(r.db.Pool().QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// ApplySync applies a reconciliation result atomically: inserts for new
// identity keys, field updates for matched rows, and soft-cancellation for
// rows no longer present in the document.
func (r *PaymentRepository) ApplySync(ctx context.Context, creates, updates []*models.Payment, cancelIDs []string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	now := time.Now()

	insertQuery := `
		INSERT INTO payments (id, owner_id, work_unit_id, scope, state_code, payment_type,
			quarter, due_date, amount, tax_year, notes, method, sort_order, identity_key, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`

	for _, p := range creates {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.Status == "" {
			p.Status = types.StatusDraft
		}
		_, err := tx.Exec(ctx, insertQuery,
			p.ID, p.OwnerID, p.WorkUnitID, p.Scope, p.StateCode, p.PaymentType,
			p.Quarter, p.DueDate, decimalArg(p.Amount), p.TaxYear, p.Notes, p.Method,
			p.SortOrder, p.IdentityKey, p.Status, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment %s: %w", p.IdentityKey, err)
		}
	}

	updateQuery := `
		UPDATE payments
		SET payment_type = $2, quarter = $3, due_date = $4, amount = $5, tax_year = $6,
			notes = $7, method = $8, status = $9, updated_at = $10
		WHERE id = $1`

	for _, p := range updates {
		_, err := tx.Exec(ctx, updateQuery,
			p.ID, p.PaymentType, p.Quarter, p.DueDate, decimalArg(p.Amount), p.TaxYear,
			p.Notes, p.Method, p.Status, now,
		)
		if err != nil {
			return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
		}
	}

	if len(cancelIDs) > 0 {
		cancelQuery := `
			UPDATE payments
			SET status = 'CANCELLED', updated_at = $2
			WHERE id = ANY($1) AND status IN ('DRAFT', 'SENT', 'VIEWED')`

		if _, err := tx.Exec(ctx, cancelQuery, cancelIDs, now); err != nil {
			return fmt.Errorf("failed to cancel payments: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	return nil
}

// Confirm records a client confirmation: the status flip, the confirmation
// details, and the audit event commit together. The status predicate makes
// the flip first-writer-wins under concurrent submissions.
func (r *PaymentRepository) Confirm(ctx context.Context, ownerID, paymentID string, input *models.ConfirmationInput, actorType types.ActorType) (*models.Payment, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin confirm transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	now := time.Now()

	query := `
		UPDATE payments
		SET status = 'CONFIRMED',
			confirmed_at = $3,
			confirmed_by_email = $4,
			confirmed_date = $5,
			confirmed_amount = $6,
			confirmation_number = $7,
			confirmation_note = $8,
			updated_at = $3
		WHERE owner_id = $1 AND id = $2 AND status IN ('DRAFT', 'SENT', 'VIEWED')
		RETURNING ` + paymentColumns

	p, err := scanPayment(tx.QueryRow(ctx, query,
		ownerID, paymentID, now,
		input.Email, input.Date, decimalArg(input.Amount), input.Number, input.Note,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotConfirmable
		}
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	metadata, err := json.Marshal(map[string]any{
		"confirmedDate":      input.Date,
		"confirmedAmount":    decimalArg(input.Amount),
		"confirmationNumber": input.Number,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event metadata: %w", err)
	}

	eventQuery := `
		INSERT INTO confirmation_events (id, owner_id, payment_id, event_type, actor_type, actor_email, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, eventQuery,
		uuid.New().String(), ownerID, paymentID, types.EventConfirmed, actorType, input.Email, metadata, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record confirmation event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit confirm transaction: %w", err)
	}

	return p, nil
}

// Update rewrites a payment's operator-editable fields and status
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET payment_type = $3, quarter = $4, due_date = $5, amount = $6, tax_year = $7,
			notes = $8, method = $9, status = $10,
			confirmed_at = $11, confirmed_by_email = $12, confirmed_date = $13,
			confirmed_amount = $14, confirmation_number = $15, confirmation_note = $16,
			updated_at = $17
		WHERE owner_id = $1 AND id = $2`

	tag, err := r.db.Pool().Exec(ctx, query,
		p.OwnerID, p.ID, p.PaymentType, p.Quarter, p.DueDate, decimalArg(p.Amount), p.TaxYear,
		p.Notes, p.Method, p.Status,
		p.ConfirmedAt, p.ConfirmedByEmail, p.ConfirmedDate, decimalArg(p.ConfirmedAmount),
		p.ConfirmationNumber, p.ConfirmationNote, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", p.ID)
	}

	return nil
}

// FlipSentToViewed marks all SENT payments of a work unit as VIEWED,
// recording that the client has opened the portal page.
func (r *PaymentRepository) FlipSentToViewed(ctx context.Context, workUnitID string) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'VIEWED', updated_at = $2
		WHERE work_unit_id = $1 AND status = 'SENT'`

	tag, err := r.db.Pool().Exec(ctx, query, workUnitID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark payments viewed: %w", err)
	}

	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, user_id, amount::text, currency, package_type, valid_until, status, metadata, created_at, updated_at`

// PaymentRepository handles payment data access.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func scanPayment(row pgx.Row, p *model.Payment) error {
	var amount string
	if err := row.Scan(&p.ID, &p.UserID, &amount, &p.Currency, &p.PackageType, &p.ValidUntil,
		&p.Status, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Amount = d
	return nil
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, amount, currency, package_type, valid_until, status, metadata)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Amount.StringFixed(2), p.Currency, p.PackageType, p.ValidUntil, p.Status, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p := &model.Payment{}
	if err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByTxRef retrieves the payment carrying the gateway transaction reference.
func (r *PaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*model.Payment, error) {
	p := &model.Payment{}
	if err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE metadata->>'tx_ref' = $1`, txRef), p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByUser retrieves a user's payments, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Payment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

// FindActive retrieves the completed payment with the latest validity that is
// still valid at now.
func (r *PaymentRepository) FindActive(ctx context.Context, userID int, now time.Time) (*model.Payment, error) {
	p := &model.Payment{}
	err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = $1 AND status = 'completed' AND valid_until > $2
		 ORDER BY valid_until DESC
		 LIMIT 1`, userID, now), p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Transition moves a payment from one status to another and replaces its
// metadata. It fails with ErrConcurrentUpdate when the payment is no longer in
// the from status, which makes webhook and redirect reconciliation idempotent.
func (r *PaymentRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus, meta model.PaymentMetadata) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $3, metadata = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND status = $2`,
		id, from, to, meta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// ApplyJourneyEvent folds the event into the journey of the user's active
// payment. Returns pgx.ErrNoRows when the user has no active payment.
func (r *PaymentRepository) ApplyJourneyEvent(ctx context.Context, ev model.JourneyEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		id   uuid.UUID
		meta model.PaymentMetadata
	)
	err = tx.QueryRow(ctx,
		`SELECT id, metadata FROM payments
		 WHERE user_id = $1 AND status = 'completed' AND valid_until > $2
		 ORDER BY valid_until DESC
		 LIMIT 1
		 FOR UPDATE`, ev.UserID, ev.OccurredAt,
	).Scan(&id, &meta)
	if err != nil {
		return err
	}

	meta.Journey.Apply(ev)

	if _, err := tx.Exec(ctx,
		`UPDATE payments SET metadata = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id, meta,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

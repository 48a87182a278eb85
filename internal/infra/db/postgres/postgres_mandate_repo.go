package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/repository"
)

var _ repository.MandateRepository = (*mandateRepo)(nil)

type mandateRepo struct{ pool *pgxpool.Pool }

func NewMandateRepo(pool *pgxpool.Pool) *mandateRepo {
	return &mandateRepo{pool: pool}
}

func (r *mandateRepo) Save(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	const q = `
INSERT INTO payment_mandates (id, gateway_id, payer_ref, token, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  gateway_id=$2, payer_ref=$3, token=$4, status=$5, updated_at=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, m.ID, m.GatewayID, m.PayerRef, m.Token, string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Mandate, error) {
	q := `SELECT id, gateway_id, payer_ref, token, status, created_at, updated_at FROM payment_mandates WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanMandate(row)
}

func (r *mandateRepo) FindChargeable(ctx context.Context, tx repository.Tx, gatewayID, payerRef string) (*model.Mandate, error) {
	const q = `SELECT id, gateway_id, payer_ref, token, status, created_at, updated_at
  FROM payment_mandates WHERE gateway_id=$1 AND payer_ref=$2 AND status='active'
 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, gatewayID, payerRef)
	if err != nil {
		return nil, err
	}
	return scanMandate(row)
}

func (r *mandateRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.MandateStatus) error {
	const q = `UPDATE payment_mandates SET status=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanMandate(row pgx.Row) (*model.Mandate, error) {
	m := &model.Mandate{}
	var status string
	if err := row.Scan(&m.ID, &m.GatewayID, &m.PayerRef, &m.Token, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	m.Status = model.MandateStatus(status)
	return m, nil
}

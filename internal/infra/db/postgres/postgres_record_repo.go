package postgres

import (
	"encoding/json"
	"errors"
	"time"

	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/repository"
)

var _ repository.RecordRepository = (*recordRepo)(nil)

const recordColumns = `name, gateway_id, flow_type, correlation_id, status, tx_data, mandate_id,
  initiation_response_payload, processing_response_payload, saved_return_value, failure_reason, created_at, updated_at`

type recordRepo struct{ pool *pgxpool.Pool }

func NewRecordRepo(pool *pgxpool.Pool) *recordRepo {
	return &recordRepo{pool: pool}
}

func (r *recordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.TransactionRecord) error {
	const q = `
INSERT INTO payment_records (
  name, gateway_id, flow_type, correlation_id, status, tx_data, mandate_id,
  initiation_response_payload, processing_response_payload, saved_return_value, failure_reason, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (name) DO UPDATE SET
  gateway_id=$2, flow_type=$3, correlation_id=$4, status=$5, tx_data=$6, mandate_id=$7,
  initiation_response_payload=$8, processing_response_payload=$9, saved_return_value=$10, failure_reason=$11, updated_at=$13;`

	txData, err := json.Marshal(rec.TxData)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	saved, err := marshalNullable(rec.SavedResult)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		rec.Name, rec.GatewayID, string(rec.FlowType), rec.CorrelationID, string(rec.Status), txData, rec.MandateID,
		rec.InitiationPayload, rec.ProcessingPayload, saved, rec.FailureReason, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *recordRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.TransactionRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM payment_records WHERE name=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, name)
	if err != nil {
		return nil, err
	}
	return scanRecord(row)
}

func (r *recordRepo) UpdateTxDataIfStatusIn(ctx context.Context, tx repository.Tx, name string, data model.TxData, status model.FlowStatus, from []model.FlowStatus) (bool, error) {
	const q = `
UPDATE payment_records
   SET tx_data = $2,
       status = $3,
       updated_at = NOW()
 WHERE name = $1
   AND status = ANY($4);`

	txData, err := json.Marshal(data)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, name, txData, string(status), statusStrings(from))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *recordRepo) SetInitiation(ctx context.Context, tx repository.Tx, name string, flowType model.FlowType, correlationID string, mandateID *string, payload map[string]interface{}) error {
	// flow_type is written once here and the guard keeps it immutable:
	// only a record that has no flow type yet (or retries the same one) matches.
	const q = `
UPDATE payment_records
   SET flow_type = $2,
       correlation_id = $3,
       mandate_id = $4,
       initiation_response_payload = $5,
       updated_at = NOW()
 WHERE name = $1
   AND (flow_type = '' OR flow_type = $2);`

	cmd, err := execSQL(ctx, r.pool, tx, q, name, string(flowType), correlationID, mandateID, payload)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *recordRepo) SetProcessed(ctx context.Context, tx repository.Tx, name string, status model.FlowStatus, payload map[string]interface{}, failureReason string, saved *model.Processed) error {
	// Guarded like UpdateTxDataIfStatusIn: only a status with a legal edge
	// into the target matches, so a settled record can never be rewritten.
	const q = `
UPDATE payment_records
   SET status = $2,
       processing_response_payload = $3,
       failure_reason = $4,
       saved_return_value = $5,
       updated_at = NOW()
 WHERE name = $1
   AND status = ANY($6);`

	savedJSON, err := marshalNullable(saved)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, name, string(status), payload, failureReason, savedJSON,
		statusStrings(model.StatusesLeadingTo(status)))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *recordRepo) ListUnsettledOlderThan(ctx context.Context, tx repository.Tx, statuses []model.FlowStatus, olderThan time.Time, limit int) ([]*model.TransactionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + recordColumns + ` FROM payment_records
 WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3;`

	rows, err := queryRows(ctx, r.pool, tx, q, statusStrings(statuses), olderThan, limit)
	if err != nil {
		switch err {
		case pgx.ErrNoRows:
			return nil, domain.ErrNotFound
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *recordRepo) DeleteSettledOlderThan(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	const q = `DELETE FROM payment_records WHERE status IN ('Completed','Failed') AND updated_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, before)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*model.TransactionRecord, error) {
	rec := &model.TransactionRecord{}
	var (
		flowType, status string
		txData, saved    []byte
	)
	if err := row.Scan(&rec.Name, &rec.GatewayID, &flowType, &rec.CorrelationID, &status, &txData, &rec.MandateID,
		&rec.InitiationPayload, &rec.ProcessingPayload, &saved, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.FlowType = model.FlowType(flowType)
	rec.Status = model.FlowStatus(status)
	if len(txData) > 0 {
		if err := json.Unmarshal(txData, &rec.TxData); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(saved) > 0 {
		rec.SavedResult = &model.Processed{}
		if err := json.Unmarshal(saved, rec.SavedResult); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return rec, nil
}

func marshalNullable(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case *model.Processed:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func statusStrings(in []model.FlowStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

package repository

import (
	"context"
	"time"

	"payment-flows/internal/domain/model"
)

// RecordRepository persists transaction records. Every status-changing write
// must be durable before the caller makes any outward network call, so a
// mid-flow crash is resumable from the last committed status.
type RecordRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.TransactionRecord) error
	FindByName(ctx context.Context, tx Tx, name string) (*model.TransactionRecord, error)

	// UpdateTxDataIfStatusIn merges new tx data and moves the record to
	// `status`, but only when the current status is one of `from`. Returns
	// false without error when the guard did not match (CAS miss).
	UpdateTxDataIfStatusIn(ctx context.Context, tx Tx, name string, data model.TxData, status model.FlowStatus, from []model.FlowStatus) (bool, error)

	// SetInitiation atomically persists the outcome of a successful remote
	// initiation: flow type, correlation id, optional mandate link and the
	// initiation payload.
	SetInitiation(ctx context.Context, tx Tx, name string, flowType model.FlowType, correlationID string, mandateID *string, payload map[string]interface{}) error

	// SetProcessed persists the terminal processing write in one statement:
	// final status, the gateway's processing payload, failure reason (empty
	// unless failed) and the saved outward result for idempotent replay.
	SetProcessed(ctx context.Context, tx Tx, name string, status model.FlowStatus, payload map[string]interface{}, failureReason string, saved *model.Processed) error

	// ListUnsettledOlderThan returns records stuck in the given statuses whose
	// last update predates `olderThan`; used by the reconciler.
	ListUnsettledOlderThan(ctx context.Context, tx Tx, statuses []model.FlowStatus, olderThan time.Time, limit int) ([]*model.TransactionRecord, error)

	// DeleteSettledOlderThan drops Completed/Failed records last touched
	// before `before`. Retention housekeeping, not part of the core flow.
	DeleteSettledOlderThan(ctx context.Context, tx Tx, before time.Time) (int64, error)
}

// MandateRepository owns the durable side of reusable payment authorizations.
type MandateRepository interface {
	Save(ctx context.Context, tx Tx, m *model.Mandate) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Mandate, error)
	FindChargeable(ctx context.Context, tx Tx, gatewayID, payerRef string) (*model.Mandate, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.MandateStatus) error
}

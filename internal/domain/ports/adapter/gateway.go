package adapter

import (
	"context"

	"payment-flows/internal/domain/model"
)

// FlowContext carries the per-call state a gateway adapter may read while
// initiating or processing. The controller builds a fresh one per invocation;
// nothing in it is shared between calls.
type FlowContext struct {
	Record          *model.TransactionRecord
	TxData          model.TxData
	Mandate         *model.Mandate
	ResponsePayload map[string]interface{}

	bucket    model.StatusBucket
	bucketSet bool
}

// ResolveTo records the mandatory outcome classification. Every processing
// routine must call it exactly once before returning.
func (c *FlowContext) ResolveTo(b model.StatusBucket) {
	c.bucket = b
	c.bucketSet = true
}

// Resolved returns the classification and whether one was set.
func (c *FlowContext) Resolved() (model.StatusBucket, bool) {
	return c.bucket, c.bucketSet
}

// PaymentGateway is the hex port every payment provider integration
// implements. Each Initiate* call returns a correlation id plus an opaque
// initiation payload; each Process* call may return a result value and must
// resolve the FlowContext to exactly one status bucket.
type PaymentGateway interface {
	Name() string

	// SupportsHostedURL reports whether the provider offers a hosted payment
	// page the caller can redirect to.
	SupportsHostedURL() bool

	// PatchTxData applies gateway-specific preprocessing, e.g. rounding or
	// currency checks. Invoked once at initiation.
	PatchTxData(ctx context.Context, data model.TxData) (model.TxData, error)

	// ShouldHaveMandate reports whether this transaction data calls for a
	// reusable mandate (e.g. a subscription charge).
	ShouldHaveMandate(ctx context.Context, fc *FlowContext) (bool, error)
	// GetMandate fetches an existing chargeable mandate for the payer, or
	// (nil, nil) when none exists.
	GetMandate(ctx context.Context, fc *FlowContext) (*model.Mandate, error)
	// CreateMandate constructs a new pending mandate for the payer.
	CreateMandate(ctx context.Context, fc *FlowContext) (*model.Mandate, error)

	InitiateMandateAcquisition(ctx context.Context, fc *FlowContext) (*model.Initiated, error)
	InitiateMandatedCharge(ctx context.Context, fc *FlowContext) (*model.Initiated, error)
	InitiateCharge(ctx context.Context, fc *FlowContext) (*model.Initiated, error)

	// ValidateResponsePayload checks the authenticity (signature/integrity)
	// of fc.ResponsePayload before any processing happens.
	ValidateResponsePayload(ctx context.Context, fc *FlowContext) error

	ProcessMandateAcquisition(ctx context.Context, fc *FlowContext) (*model.Processed, error)
	ProcessMandatedCharge(ctx context.Context, fc *FlowContext) (*model.Processed, error)
	ProcessCharge(ctx context.Context, fc *FlowContext) (*model.Processed, error)

	// RenderFailureMessage extracts a human-readable failure message out of
	// the response payload for the reference document's failure hook.
	RenderFailureMessage(ctx context.Context, fc *FlowContext) string
}

// StatusPoller is an optional extension a gateway may implement to let the
// reconciler fetch the current signed processing payload for a stale record
// out-of-band (covering lost webhooks and mid-flow crashes).
type StatusPoller interface {
	PollProcessingPayload(ctx context.Context, rec *model.TransactionRecord) (map[string]interface{}, error)
}

// GatewayRegistry resolves a gateway id to its configured adapter. Resolution
// fails with domain.ErrGatewayNotConfigured when the id is unknown or the
// adapter is missing its settings.
type GatewayRegistry interface {
	Resolve(gatewayID string) (PaymentGateway, error)
}

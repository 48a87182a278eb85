package adapter

import (
	"context"

	"payment-flows/internal/domain/model"
)

// HookResult is what a processed-hook may hand back to overturn the outward
// result computed by the controller. A nil HookResult keeps the default.
type HookResult struct {
	Message string
	Action  map[string]string
	Payload map[string]interface{}
}

// ReferenceDocument is the merchant-side business object reacting to payment
// outcomes. All hooks are optional in spirit: embed NoopReferenceDocument and
// override what you care about.
type ReferenceDocument interface {
	// Processed hooks run after the bucket classification is committed; they
	// may supply a replacement outward result. Errors are logged and surfaced
	// as a generic server error but never re-open the classification.
	OnMandateAcquisitionProcessed(ctx context.Context, bucket model.StatusBucket, fc *FlowContext) (*HookResult, error)
	OnMandatedChargeProcessed(ctx context.Context, bucket model.StatusBucket, fc *FlowContext) (*HookResult, error)
	OnChargeProcessed(ctx context.Context, bucket model.StatusBucket, fc *FlowContext) (*HookResult, error)

	// OnPaymentFailed receives the terminal status and a rendered,
	// human-readable failure message. Errors here are logged only.
	OnPaymentFailed(ctx context.Context, status model.FlowStatus, message string) error
	// OnPaymentAuthorized fires when a flow lands in the pre-authorized
	// bucket. Errors here are logged only.
	OnPaymentAuthorized(ctx context.Context, status model.FlowStatus) error
}

// NoopReferenceDocument is the explicit no-op default. Resolvers fall back to
// it when the reference document declares no hooks.
type NoopReferenceDocument struct{}

var _ ReferenceDocument = (*NoopReferenceDocument)(nil)

func (NoopReferenceDocument) OnMandateAcquisitionProcessed(context.Context, model.StatusBucket, *FlowContext) (*HookResult, error) {
	return nil, nil
}

func (NoopReferenceDocument) OnMandatedChargeProcessed(context.Context, model.StatusBucket, *FlowContext) (*HookResult, error) {
	return nil, nil
}

func (NoopReferenceDocument) OnChargeProcessed(context.Context, model.StatusBucket, *FlowContext) (*HookResult, error) {
	return nil, nil
}

func (NoopReferenceDocument) OnPaymentFailed(context.Context, model.FlowStatus, string) error {
	return nil
}

func (NoopReferenceDocument) OnPaymentAuthorized(context.Context, model.FlowStatus) error {
	return nil
}

// RefDocResolver locates the hooks for a reference document by type and id.
// Implementations return a NoopReferenceDocument when nothing is registered.
type RefDocResolver interface {
	Resolve(ctx context.Context, docType, docID string) (ReferenceDocument, error)
}

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway for dev mode and tests. A
// response payload is "signed" by echoing the shared secret in its sig field.
type NoopGateway struct {
	id     string
	secret string

	mu       sync.Mutex
	seq      int64
	mandates map[string]*model.Mandate // payerRef -> mandate
}

func NewNoopGateway(id, secret string) *NoopGateway {
	return &NoopGateway{id: id, secret: secret, mandates: make(map[string]*model.Mandate)}
}

func (g *NoopGateway) Name() string            { return g.id }
func (g *NoopGateway) SupportsHostedURL() bool { return true }

func (g *NoopGateway) PatchTxData(ctx context.Context, data model.TxData) (model.TxData, error) {
	return data, nil
}

func (g *NoopGateway) ShouldHaveMandate(ctx context.Context, fc *adapter.FlowContext) (bool, error) {
	if fc.TxData.Meta != nil {
		if v, ok := fc.TxData.Meta["require_mandate"].(bool); ok {
			return v, nil
		}
	}
	return false, nil
}

func (g *NoopGateway) GetMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.mandates[payerRef(fc.TxData)]
	if !m.Chargeable() {
		return nil, nil
	}
	return m, nil
}

func (g *NoopGateway) CreateMandate(ctx context.Context, fc *adapter.FlowContext) (*model.Mandate, error) {
	now := time.Now()
	m := &model.Mandate{
		ID:        uuid.NewString(),
		GatewayID: g.id,
		PayerRef:  payerRef(fc.TxData),
		Status:    model.MandateStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.mu.Lock()
	g.mandates[m.PayerRef] = m
	g.mu.Unlock()
	return m, nil
}

func (g *NoopGateway) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopGateway) initiated() (*model.Initiated, error) {
	id := g.next()
	return &model.Initiated{
		CorrelationID: id,
		Payload:       map[string]interface{}{"redirect_url": "https://example.test/pay/" + id},
	}, nil
}

func (g *NoopGateway) InitiateMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	return g.initiated()
}

func (g *NoopGateway) InitiateMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	return g.initiated()
}

func (g *NoopGateway) InitiateCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Initiated, error) {
	return g.initiated()
}

func (g *NoopGateway) ValidateResponsePayload(ctx context.Context, fc *adapter.FlowContext) error {
	if sig, _ := fc.ResponsePayload["sig"].(string); sig != g.secret {
		return fmt.Errorf("noop: signature mismatch")
	}
	return nil
}

func (g *NoopGateway) resolve(fc *adapter.FlowContext) {
	switch fc.ResponsePayload["status"] {
	case "paid":
		fc.ResolveTo(model.BucketSuccess)
	case "authorized":
		fc.ResolveTo(model.BucketPreAuthorized)
	case "running":
		fc.ResolveTo(model.BucketProcessing)
	default:
		fc.ResolveTo(model.BucketFailure)
	}
}

func (g *NoopGateway) ProcessMandateAcquisition(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.resolve(fc)
	if b, _ := fc.Resolved(); b == model.BucketSuccess && fc.Mandate != nil {
		fc.Mandate.Token = "noop-token-" + fc.Mandate.ID
	}
	return nil, nil
}

func (g *NoopGateway) ProcessMandatedCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.resolve(fc)
	return nil, nil
}

func (g *NoopGateway) ProcessCharge(ctx context.Context, fc *adapter.FlowContext) (*model.Processed, error) {
	g.resolve(fc)
	return nil, nil
}

func (g *NoopGateway) RenderFailureMessage(ctx context.Context, fc *adapter.FlowContext) string {
	if msg, _ := fc.ResponsePayload["message"].(string); msg != "" {
		return msg
	}
	return "The payment was declined."
}

package gateway

import (
	"fmt"
	"sync"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/ports/adapter"
)

var _ adapter.GatewayRegistry = (*Registry)(nil)

// Registry maps gateway ids to their configured adapters. Resolution of an
// unknown or unconfigured id fails with ErrGatewayNotConfigured; that error
// is an operator-facing configuration problem, not a user mistake.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapter.PaymentGateway
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]adapter.PaymentGateway)}
}

func (r *Registry) Register(id string, gw adapter.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = gw
}

func (r *Registry) Resolve(gatewayID string) (adapter.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.adapters[gatewayID]
	if !ok || gw == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayNotConfigured, gatewayID)
	}
	return gw, nil
}

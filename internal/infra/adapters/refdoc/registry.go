package refdoc

import (
	"context"
	"sync"

	"payment-flows/internal/domain/ports/adapter"
)

var _ adapter.RefDocResolver = (*Registry)(nil)

// Factory builds the hook implementation for one concrete document instance.
type Factory func(docID string) adapter.ReferenceDocument

// Registry is the in-process resolver mapping reference document types to
// their hook factories. Unregistered documents resolve to the explicit no-op
// default, so presence of hooks is a typed optional, not a reflection lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(docType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[docType] = f
}

func (r *Registry) Resolve(ctx context.Context, docType, docID string) (adapter.ReferenceDocument, error) {
	r.mu.RLock()
	f := r.factories[docType]
	r.mu.RUnlock()
	if f == nil {
		return adapter.NoopReferenceDocument{}, nil
	}
	return f(docID), nil
}

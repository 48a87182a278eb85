package adapter

import "context"

// OpsNotifier pushes short operational alerts (failed flows, reconciler
// trouble) to whoever watches the shop. Implementations must be safe to call
// concurrently; a no-op implementation is used when nothing is configured.
type OpsNotifier interface {
	Notify(ctx context.Context, text string) error
}

// NoopNotifier discards all alerts.
type NoopNotifier struct{}

var _ OpsNotifier = (*NoopNotifier)(nil)

func (NoopNotifier) Notify(context.Context, string) error { return nil }

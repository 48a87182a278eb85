package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
	"payment-flows/internal/domain/ports/repository"
	"payment-flows/internal/usecase"
)

// RecordReconciler periodically scans for records stuck in Queued or Waiting
// and tries to finalize them by polling the gateway for the current signed
// payload and funneling it through the normal ProcessResponse path. This
// covers lost webhooks and processes that crashed mid-flow; idempotency comes
// from the controller's lock-and-replay contract, not from this worker.
type RecordReconciler struct {
	uc         usecase.FlowUseCase
	records    repository.RecordRepository
	gateways   adapter.GatewayRegistry
	notifier   adapter.OpsNotifier
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an unsettled record must be to retry
	log        *zerolog.Logger
}

func NewRecordReconciler(
	uc usecase.FlowUseCase,
	records repository.RecordRepository,
	gateways adapter.GatewayRegistry,
	notifier adapter.OpsNotifier,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *RecordReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if notifier == nil {
		notifier = adapter.NoopNotifier{}
	}
	return &RecordReconciler{
		uc:         uc,
		records:    records,
		gateways:   gateways,
		notifier:   notifier,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger,
	}
}

func (w *RecordReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RecordReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.records.ListUnsettledOlderThan(ctx, nil,
		[]model.FlowStatus{model.FlowStatusQueued, model.FlowStatusWaiting}, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list unsettled records failed")
		return
	}
	for _, rec := range stale {
		if rec.CorrelationID == "" {
			// Never reached the gateway; nothing to poll.
			continue
		}
		if err := w.reconcile(ctx, rec); err != nil {
			w.log.Warn().Err(err).Str("record", rec.Name).Msg("reconciler: record not reconciled")
			continue
		}
		w.log.Info().Str("record", rec.Name).Msg("reconciler: record reconciled")
	}
}

func (w *RecordReconciler) reconcile(ctx context.Context, rec *model.TransactionRecord) error {
	gw, err := w.gateways.Resolve(rec.GatewayID)
	if err != nil {
		return err
	}
	poller, ok := gw.(adapter.StatusPoller)
	if !ok {
		return nil // gateway has no out-of-band channel
	}
	payload, err := poller.PollProcessingPayload(ctx, rec)
	if err != nil {
		if nerr := w.notifier.Notify(ctx, fmt.Sprintf("reconciler: polling %s (%s) failed: %v", rec.Name, rec.GatewayID, err)); nerr != nil {
			w.log.Warn().Err(nerr).Msg("reconciler: ops notification failed")
		}
		return err
	}
	_, err = w.uc.ProcessResponse(ctx, rec.Name, payload)
	return err
}

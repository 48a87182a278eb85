package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"payment-flows/internal/domain/ports/repository"
)

// RecordPurger drops settled records past the retention window. Retention is
// housekeeping around the core, which itself never deletes records.
type RecordPurger struct {
	records   repository.RecordRepository
	interval  time.Duration
	retention time.Duration
	log       *zerolog.Logger
}

func NewRecordPurger(records repository.RecordRepository, interval time.Duration, retentionDays int, logger *zerolog.Logger) *RecordPurger {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RecordPurger{
		records:   records,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		log:       logger,
	}
}

func (w *RecordPurger) Start(ctx context.Context) {
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

func (w *RecordPurger) tick(ctx context.Context) {
	before := time.Now().Add(-w.retention)
	n, err := w.records.DeleteSettledOlderThan(ctx, nil, before)
	if err != nil {
		w.log.Error().Err(err).Msg("purger: delete settled records failed")
		return
	}
	if n > 0 {
		w.log.Info().Int64("deleted", n).Msg("purger: settled records purged")
	}
}

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/infrastructure/metrics"
)

// Reconciler runs reconciliation passes.
type Reconciler interface {
	ReconcileNow(ctx context.Context, tripID string) (*domain.ReconcileOutcome, error)
	ReconcileAll(ctx context.Context, tripIDs []string) ([]*domain.ReconcileOutcome, error)
}

// TripLister lists the trips held by the local store.
type TripLister interface {
	List(ctx context.Context) ([]*domain.Trip, error)
}

// Subscriber delivers the ids of trips changed on the remote ledger.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Config for SyncWorker.
type Config struct {
	Reconciler Reconciler
	Trips      TripLister
	Subscriber Subscriber       // optional, triggers on-demand passes
	Metrics    *metrics.Metrics // optional
	Logger     zerolog.Logger
	Interval   time.Duration // period of full cycles
	TripID     string        // restricts the worker to one trip when set
	OnOutcome  func(*domain.ReconcileOutcome)
}

// SyncWorker keeps the local ledger reconciled with the remote ledger. It
// reconciles every local trip on a timer and single trips as soon as the
// remote announces a change to them.
type SyncWorker struct {
	reconciler Reconciler
	trips      TripLister
	subscriber Subscriber
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	interval   time.Duration
	tripID     string
	onOutcome  func(*domain.ReconcileOutcome)
}

// NewSyncWorker creates a new SyncWorker.
func NewSyncWorker(cfg Config) *SyncWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	return &SyncWorker{
		reconciler: cfg.Reconciler,
		trips:      cfg.Trips,
		subscriber: cfg.Subscriber,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		tripID:     cfg.TripID,
		onOutcome:  cfg.OnOutcome,
	}
}

// Start runs a cycle immediately, then on every tick and on every remote
// change notification. It runs until ctx is cancelled.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info().
		Dur("interval", w.interval).
		Str("trip_id", w.tripID).
		Msg("sync worker started")

	var changes <-chan string
	if w.subscriber != nil {
		ch, err := w.subscriber.Subscribe(ctx)
		if err != nil {
			w.logger.Warn().Err(err).Msg("change notifications unavailable, relying on the timer")
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error().Err(err).Msg("sync cycle failed on start")
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("sync worker shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("sync cycle failed")
			}

		case tripID, ok := <-changes:
			if !ok {
				w.logger.Warn().Msg("change notifications closed, relying on the timer")
				changes = nil
				continue
			}
			w.reconcileChanged(ctx, tripID)
		}
	}
}

// RunOnce reconciles every local trip, or the configured trip.
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObserveCycle(time.Since(start))
		}
	}()

	tripIDs := []string{w.tripID}
	if w.tripID == "" {
		trips, err := w.trips.List(ctx)
		if err != nil {
			return err
		}
		tripIDs = make([]string, len(trips))
		for i, t := range trips {
			tripIDs[i] = t.ID
		}
	}
	if len(tripIDs) == 0 {
		return nil
	}

	outcomes, err := w.reconciler.ReconcileAll(ctx, tripIDs)
	for _, out := range outcomes {
		w.report(out)
	}

	w.logger.Debug().
		Int("trips", len(tripIDs)).
		Dur("duration", time.Since(start)).
		Msg("sync cycle completed")

	return err
}

func (w *SyncWorker) reconcileChanged(ctx context.Context, tripID string) {
	if w.tripID != "" && tripID != w.tripID {
		return
	}

	known, err := w.isLocal(ctx, tripID)
	if err != nil {
		w.logger.Warn().Err(err).Str("trip_id", tripID).Msg("failed to look up changed trip")
		return
	}
	if !known {
		return
	}

	out, err := w.reconciler.ReconcileNow(ctx, tripID)
	if err != nil {
		w.logger.Error().Err(err).Str("trip_id", tripID).Msg("on-demand sync failed")
	}
	w.report(out)
}

// isLocal reports whether the device holds the trip. Notifications about
// other trips are ignored.
func (w *SyncWorker) isLocal(ctx context.Context, tripID string) (bool, error) {
	trips, err := w.trips.List(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range trips {
		if t.ID == tripID {
			return true, nil
		}
	}
	return false, nil
}

func (w *SyncWorker) report(out *domain.ReconcileOutcome) {
	if w.metrics != nil {
		w.metrics.ObserveReconcile(out)
	}
	if out == nil {
		return
	}

	event := w.logger.Info()
	if len(out.Failed) > 0 {
		event = w.logger.Warn().Err(out.Err())
	}
	event.
		Str("trip_id", out.TripID).
		Int("pushed", out.Pushed).
		Int("pulled", out.Pulled).
		Int("deleted", out.Deleted).
		Int("failed", len(out.Failed)).
		Int("conflicts", len(out.Conflicts)).
		Msg("trip reconciled")

	if w.onOutcome != nil {
		w.onOutcome(out)
	}
}

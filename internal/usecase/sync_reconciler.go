package usecase

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/iho/tripledger/internal/domain"
)

const (
	phasePush = "push"
	phasePull = "pull"
)

// SyncReconciler merges the local ledger with the remote ledger. One pass
// pushes unsynced records and delete markers, then pulls remote changes
// since the trip's cursor and merges them last-write-wins on LastModified.
// Failures are collected per record and never stop the pass.
type SyncReconciler struct {
	store       LedgerStore
	remote      RemoteLedger
	logger      zerolog.Logger
	clock       Clock
	flight      singleflight.Group
	concurrency int
}

// SyncReconcilerConfig configures a SyncReconciler.
type SyncReconcilerConfig struct {
	Store       LedgerStore
	Remote      RemoteLedger
	Logger      zerolog.Logger
	Clock       Clock
	Concurrency int // trips reconciled at once by ReconcileAll
}

// NewSyncReconciler creates a new SyncReconciler.
func NewSyncReconciler(cfg SyncReconcilerConfig) *SyncReconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSyncConcurrency
	}

	return &SyncReconciler{
		store:       cfg.Store,
		remote:      cfg.Remote,
		logger:      cfg.Logger,
		clock:       orSystemClock(cfg.Clock),
		concurrency: cfg.Concurrency,
	}
}

// ReconcileNow runs one pass for a trip. Concurrent calls for the same trip
// share a single pass. The error is non-nil only when the pass could not
// start; per-record failures are reported on the outcome.
func (r *SyncReconciler) ReconcileNow(ctx context.Context, tripID string) (*domain.ReconcileOutcome, error) {
	if err := domain.ValidateID(tripID); err != nil {
		return nil, err
	}

	v, err, _ := r.flight.Do(tripID, func() (any, error) {
		return r.reconcile(ctx, tripID)
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.ReconcileOutcome), nil
}

// ReconcileAll reconciles several trips concurrently. Outcomes are returned
// in input order; a trip whose pass could not start has a nil outcome and
// its error is returned after every trip has finished.
func (r *SyncReconciler) ReconcileAll(ctx context.Context, tripIDs []string) ([]*domain.ReconcileOutcome, error) {
	outcomes := make([]*domain.ReconcileOutcome, len(tripIDs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, tripID := range tripIDs {
		g.Go(func() error {
			outcome, err := r.ReconcileNow(ctx, tripID)
			outcomes[i] = outcome
			return err
		})
	}

	return outcomes, g.Wait()
}

func (r *SyncReconciler) reconcile(ctx context.Context, tripID string) (*domain.ReconcileOutcome, error) {
	out := &domain.ReconcileOutcome{TripID: tripID}
	log := r.logger.With().Str("trip_id", tripID).Logger()

	r.pushPhase(ctx, out)

	if err := r.pullPhase(ctx, out); err != nil {
		return nil, err
	}

	for _, f := range out.Failed {
		log.Warn().
			Err(f.Err).
			Str("phase", f.Phase).
			Str("kind", string(f.Kind)).
			Str("record_id", f.ID).
			Msg("record not reconciled")
	}

	log.Info().
		Int("pushed", out.Pushed).
		Int("pulled", out.Pulled).
		Int("deleted", out.Deleted).
		Int("failed", len(out.Failed)).
		Int("conflicts", len(out.Conflicts)).
		Msg("reconciliation finished")

	return out, nil
}

func (r *SyncReconciler) pushPhase(ctx context.Context, out *domain.ReconcileOutcome) {
	sync := r.store.Sync()

	records, err := sync.ListUnsynced(ctx, out.TripID)
	if err != nil {
		out.Failed = append(out.Failed, domain.RecordFailure{Kind: domain.KindTrip, ID: out.TripID, Phase: phasePush, Err: domain.WrapDependency("sync.list_unsynced", err)})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Kind.Rank() < records[j].Kind.Rank() })

	for _, rec := range records {
		if err := r.pushRecord(ctx, out, rec); err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: rec.Kind, ID: rec.ID, Phase: phasePush, Err: err})
		}
	}

	markers, err := sync.ListDeleteMarkers(ctx, out.TripID)
	if err != nil {
		out.Failed = append(out.Failed, domain.RecordFailure{Kind: domain.KindTrip, ID: out.TripID, Phase: phasePush, Err: domain.WrapDependency("sync.list_delete_markers", err)})
	}
	// Children go before parents so a trip deletion is pushed last.
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Kind.Rank() > markers[j].Kind.Rank() })

	for _, m := range markers {
		if err := r.pushMarker(ctx, out, m); err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: m.Kind, ID: m.ID, Phase: phasePush, Err: err})
		}
	}
}

func (r *SyncReconciler) pushRecord(ctx context.Context, out *domain.ReconcileOutcome, rec domain.SyncRecord) error {
	sync := r.store.Sync()

	result, err := r.remote.Push(ctx, rec)
	if err != nil {
		return domain.WrapDependency("remote.push", err)
	}

	switch result.Status {
	case domain.PushApplied:
		marked, err := sync.MarkSynced(ctx, rec.Kind, rec.ID, rec.LastModified)
		if err != nil {
			return domain.WrapDependency("sync.mark_synced", err)
		}
		// Not marked means a newer local edit landed mid-push; it goes out
		// on the next pass.
		if marked {
			out.Pushed++
		}
		return nil

	case domain.PushStale:
		if result.Current == nil {
			return nil
		}
		current := *result.Current
		local, err := sync.Version(ctx, rec.Kind, rec.ID)
		if err != nil {
			return domain.WrapDependency("sync.version", err)
		}
		if local == nil || !local.LastModified.Equal(rec.LastModified) {
			return nil
		}
		if err := sync.ApplyRemote(ctx, current); err != nil {
			return domain.WrapDependency("sync.apply_remote", err)
		}
		out.Pulled++
		out.Conflicts = append(out.Conflicts, domain.Conflict{
			Kind:           rec.Kind,
			ID:             rec.ID,
			Resolution:     domain.RemoteWins,
			LocalModified:  rec.LastModified,
			RemoteModified: current.LastModified,
		})
		return nil

	case domain.PushDeleted:
		removed, err := sync.ApplyDelete(ctx, domain.DeleteMarker{Kind: rec.Kind, ID: rec.ID, TripID: rec.TripID, DeletedAt: rec.LastModified})
		if err != nil {
			return domain.WrapDependency("sync.apply_delete", err)
		}
		if removed {
			out.Deleted++
		}
		out.Conflicts = append(out.Conflicts, domain.Conflict{
			Kind:          rec.Kind,
			ID:            rec.ID,
			Resolution:    domain.DeleteWins,
			LocalModified: rec.LastModified,
		})
		return nil

	default:
		return domain.WrapDependency("remote.push", domain.ErrInvalidRecord)
	}
}

func (r *SyncReconciler) pushMarker(ctx context.Context, out *domain.ReconcileOutcome, m domain.DeleteMarker) error {
	if _, err := r.remote.Push(ctx, m.Record()); err != nil {
		return domain.WrapDependency("remote.push", err)
	}
	if err := r.store.Sync().ClearDeleteMarker(ctx, m.Kind, m.ID); err != nil {
		return domain.WrapDependency("sync.clear_delete_marker", err)
	}
	out.Pushed++
	return nil
}

func (r *SyncReconciler) pullPhase(ctx context.Context, out *domain.ReconcileOutcome) error {
	sync := r.store.Sync()

	cursor, err := sync.Cursor(ctx, out.TripID)
	if err != nil {
		return domain.WrapDependency("sync.cursor", err)
	}
	out.Cursor = cursor

	var (
		records []domain.SyncRecord
		markers []domain.DeleteMarker
		next    = cursor
	)
	for page := 0; page < maxPullPages; page++ {
		res, err := r.remote.Pull(ctx, out.TripID, next)
		if err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: domain.KindTrip, ID: out.TripID, Phase: phasePull, Err: domain.WrapDependency("remote.pull", err)})
			return nil
		}
		records = append(records, res.Records...)
		markers = append(markers, res.DeleteMarkers...)
		if res.Cursor != "" {
			next = res.Cursor
		}
		if !res.HasMore {
			break
		}
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Kind.Rank() < records[j].Kind.Rank() })
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Kind.Rank() > markers[j].Kind.Rank() })

	failed := len(out.Failed)
	for _, rec := range records {
		if err := r.mergeRecord(ctx, out, rec); err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: rec.Kind, ID: rec.ID, Phase: phasePull, Err: err})
		}
	}
	for _, m := range markers {
		if err := r.mergeMarker(ctx, out, m); err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: m.Kind, ID: m.ID, Phase: phasePull, Err: err})
		}
	}

	// The cursor only advances when every pulled change landed, so failed
	// ones are fetched again next pass.
	if len(out.Failed) == failed && next != cursor {
		if err := sync.SaveCursor(ctx, out.TripID, next); err != nil {
			out.Failed = append(out.Failed, domain.RecordFailure{Kind: domain.KindTrip, ID: out.TripID, Phase: phasePull, Err: domain.WrapDependency("sync.save_cursor", err)})
			return nil
		}
		out.Cursor = next
	}

	return nil
}

// mergeRecord applies a remote version only when it is strictly newer than
// the local copy. Ties keep the local copy.
func (r *SyncReconciler) mergeRecord(ctx context.Context, out *domain.ReconcileOutcome, rec domain.SyncRecord) error {
	sync := r.store.Sync()

	local, err := sync.Version(ctx, rec.Kind, rec.ID)
	if err != nil {
		return domain.WrapDependency("sync.version", err)
	}

	switch {
	case local == nil:
	case rec.LastModified.After(local.LastModified):
		if !local.IsSynced {
			out.Conflicts = append(out.Conflicts, domain.Conflict{
				Kind:           rec.Kind,
				ID:             rec.ID,
				Resolution:     domain.RemoteWins,
				LocalModified:  local.LastModified,
				RemoteModified: rec.LastModified,
			})
		}
	case rec.LastModified.Before(local.LastModified) && !local.IsSynced:
		out.Conflicts = append(out.Conflicts, domain.Conflict{
			Kind:           rec.Kind,
			ID:             rec.ID,
			Resolution:     domain.LocalWins,
			LocalModified:  local.LastModified,
			RemoteModified: rec.LastModified,
		})
		return nil
	default:
		return nil
	}

	if rec.Kind == domain.KindSettlement {
		apply, err := r.resolvePendingPair(ctx, out, rec)
		if err != nil || !apply {
			return err
		}
	}

	if err := sync.ApplyRemote(ctx, rec); err != nil {
		return domain.WrapDependency("sync.apply_remote", err)
	}
	out.Pulled++
	return nil
}

// resolvePendingPair handles a pulled pending settlement whose ordered pair
// already has a different pending settlement locally. The lower id survives
// on every device. A local loser is deleted with a marker, which removes it
// from the remote on the next push; a pulled loser is skipped and left to
// the device holding it. It reports whether rec should be applied.
func (r *SyncReconciler) resolvePendingPair(ctx context.Context, out *domain.ReconcileOutcome, rec domain.SyncRecord) (bool, error) {
	pulled, err := rec.Settlement()
	if err != nil {
		return false, err
	}
	if !pulled.IsPending() {
		return true, nil
	}

	local, err := r.store.Settlements().FindPending(ctx, pulled.TripID, pulled.FromMemberID, pulled.ToMemberID)
	if err != nil {
		return false, domain.WrapDependency("settlements.find_pending", err)
	}
	if local == nil || local.ID == pulled.ID {
		return true, nil
	}

	conflict := domain.Conflict{
		Kind:           domain.KindSettlement,
		LocalModified:  local.LastModified,
		RemoteModified: rec.LastModified,
	}

	if local.ID < pulled.ID {
		conflict.ID = pulled.ID
		conflict.Resolution = domain.LocalWins
		out.Conflicts = append(out.Conflicts, conflict)
		return false, nil
	}

	if err := r.store.Settlements().Delete(ctx, local.ID, domain.Timestamp(r.clock())); err != nil {
		return false, domain.WrapDependency("settlements.delete", err)
	}
	conflict.ID = local.ID
	conflict.Resolution = domain.RemoteWins
	out.Conflicts = append(out.Conflicts, conflict)
	return true, nil
}

// mergeMarker applies a remote deletion unconditionally.
func (r *SyncReconciler) mergeMarker(ctx context.Context, out *domain.ReconcileOutcome, m domain.DeleteMarker) error {
	sync := r.store.Sync()

	local, err := sync.Version(ctx, m.Kind, m.ID)
	if err != nil {
		return domain.WrapDependency("sync.version", err)
	}

	removed, err := sync.ApplyDelete(ctx, m)
	if err != nil {
		return domain.WrapDependency("sync.apply_delete", err)
	}
	if removed {
		out.Deleted++
	}
	if local != nil && !local.IsSynced {
		out.Conflicts = append(out.Conflicts, domain.Conflict{
			Kind:           m.Kind,
			ID:             m.ID,
			Resolution:     domain.DeleteWins,
			LocalModified:  local.LastModified,
			RemoteModified: m.DeletedAt,
		})
	}
	return nil
}

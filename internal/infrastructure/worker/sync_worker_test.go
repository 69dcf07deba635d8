package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/infrastructure/metrics"
)

type stubReconciler struct {
	mu      sync.Mutex
	all     [][]string
	now     []string
	failNow error
	failAll error
	nowDone chan string
}

func (s *stubReconciler) ReconcileNow(ctx context.Context, tripID string) (*domain.ReconcileOutcome, error) {
	s.mu.Lock()
	s.now = append(s.now, tripID)
	s.mu.Unlock()
	if s.nowDone != nil {
		defer func() { s.nowDone <- tripID }()
	}
	if s.failNow != nil {
		return nil, s.failNow
	}
	return &domain.ReconcileOutcome{TripID: tripID, Pulled: 1}, nil
}

func (s *stubReconciler) ReconcileAll(ctx context.Context, tripIDs []string) ([]*domain.ReconcileOutcome, error) {
	s.mu.Lock()
	s.all = append(s.all, tripIDs)
	s.mu.Unlock()
	outcomes := make([]*domain.ReconcileOutcome, len(tripIDs))
	for i, id := range tripIDs {
		outcomes[i] = &domain.ReconcileOutcome{TripID: id, Pushed: 1}
	}
	if s.failAll != nil {
		outcomes[0] = nil
	}
	return outcomes, s.failAll
}

func (s *stubReconciler) calls() ([][]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.all...), append([]string(nil), s.now...)
}

type stubTrips struct {
	ids []string
	err error
}

func (s stubTrips) List(ctx context.Context) ([]*domain.Trip, error) {
	if s.err != nil {
		return nil, s.err
	}
	trips := make([]*domain.Trip, len(s.ids))
	for i, id := range s.ids {
		trips[i] = &domain.Trip{ID: id}
	}
	return trips, nil
}

type stubSubscriber struct {
	ch  chan string
	err error
}

func (s stubSubscriber) Subscribe(ctx context.Context) (<-chan string, error) {
	return s.ch, s.err
}

func newTestWorker(rec *stubReconciler, trips TripLister, sub Subscriber, onOutcome func(*domain.ReconcileOutcome)) *SyncWorker {
	cfg := Config{
		Reconciler: rec,
		Trips:      trips,
		Logger:     zerolog.Nop(),
		Interval:   time.Hour,
		OnOutcome:  onOutcome,
	}
	if sub != nil {
		cfg.Subscriber = sub
	}
	return NewSyncWorker(cfg)
}

func TestRunOnceReconcilesLocalTrips(t *testing.T) {
	rec := &stubReconciler{}
	var seen []string
	w := newTestWorker(rec, stubTrips{ids: []string{"t1", "t2"}}, nil, func(out *domain.ReconcileOutcome) {
		seen = append(seen, out.TripID)
	})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	all, _ := rec.calls()
	if len(all) != 1 || len(all[0]) != 2 {
		t.Fatalf("expected one pass over two trips, got %#v", all)
	}
	if len(seen) != 2 || seen[0] != "t1" || seen[1] != "t2" {
		t.Fatalf("expected outcomes for t1 and t2, got %#v", seen)
	}
}

func TestRunOnceHonoursTripFilter(t *testing.T) {
	rec := &stubReconciler{}
	w := newTestWorker(rec, stubTrips{err: errors.New("list should not be called")}, nil, nil)
	w.tripID = "t9"

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	all, _ := rec.calls()
	if len(all) != 1 || len(all[0]) != 1 || all[0][0] != "t9" {
		t.Fatalf("expected a pass over t9 only, got %#v", all)
	}
}

func TestRunOnceSkipsEmptyStore(t *testing.T) {
	rec := &stubReconciler{}
	w := newTestWorker(rec, stubTrips{}, nil, nil)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if all, _ := rec.calls(); len(all) != 0 {
		t.Fatalf("expected no reconcile pass, got %#v", all)
	}
}

func TestRunOnceReportsErrors(t *testing.T) {
	listErr := errors.New("disk gone")
	w := newTestWorker(&stubReconciler{}, stubTrips{err: listErr}, nil, nil)
	if err := w.RunOnce(context.Background()); !errors.Is(err, listErr) {
		t.Fatalf("expected list error, got %v", err)
	}

	passErr := errors.New("pass failed")
	var seen int
	w = newTestWorker(&stubReconciler{failAll: passErr}, stubTrips{ids: []string{"t1", "t2"}}, nil, func(*domain.ReconcileOutcome) {
		seen++
	})
	if err := w.RunOnce(context.Background()); !errors.Is(err, passErr) {
		t.Fatalf("expected pass error, got %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected the surviving outcome to be reported, got %d", seen)
	}
}

func TestRunOnceRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	w := NewSyncWorker(Config{
		Reconciler: &stubReconciler{failAll: errors.New("pass failed")},
		Trips:      stubTrips{ids: []string{"t1", "t2"}},
		Metrics:    m,
		Logger:     zerolog.Nop(),
	})

	_ = w.RunOnce(context.Background())

	if got := testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected one ok run, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ReconcileDuration); got != 1 {
		t.Fatalf("expected cycle duration to be observed, got %d series", got)
	}
}

func TestStartReconcilesOnNotification(t *testing.T) {
	rec := &stubReconciler{nowDone: make(chan string, 4)}
	changes := make(chan string, 4)
	w := newTestWorker(rec, stubTrips{ids: []string{"t1"}}, stubSubscriber{ch: changes}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	changes <- "unknown"
	changes <- "t1"

	select {
	case id := <-rec.nowDone:
		if id != "t1" {
			t.Fatalf("expected on-demand pass for t1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("notification did not trigger a pass")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	all, now := rec.calls()
	if len(all) != 1 {
		t.Fatalf("expected the initial full pass, got %#v", all)
	}
	if len(now) != 1 {
		t.Fatalf("expected unknown trips to be ignored, got %#v", now)
	}
}

func TestStartFallsBackToTimer(t *testing.T) {
	rec := &stubReconciler{}
	w := newTestWorker(rec, stubTrips{ids: []string{"t1"}}, stubSubscriber{err: errors.New("redis down")}, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	deadline := time.After(time.Second)
	for {
		if all, _ := rec.calls(); len(all) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timer did not trigger passes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

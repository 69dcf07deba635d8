package usecase

import (
	"context"

	"github.com/iho/tripledger/internal/domain"
)

// LedgerObserver exposes read-side streams over the local ledger. Each
// stream starts with Loading, re-reads after every store change touching
// the trip and keeps only the latest value for slow consumers. Streams
// close when ctx is cancelled.
type LedgerObserver struct {
	store LedgerStore
}

// NewLedgerObserver creates a new LedgerObserver.
func NewLedgerObserver(store LedgerStore) *LedgerObserver {
	return &LedgerObserver{store: store}
}

// ObserveMembers streams the members of a trip.
func (o *LedgerObserver) ObserveMembers(ctx context.Context, tripID string) <-chan domain.Result[[]*domain.TripMember] {
	return observe(ctx, o.store.Changes(ctx, tripID), func(ctx context.Context) ([]*domain.TripMember, error) {
		members, err := o.store.Members().ListByTrip(ctx, tripID)
		return members, domain.WrapDependency("members.list", err)
	})
}

// ObserveExpenses streams the expenses of a trip with their splits.
func (o *LedgerObserver) ObserveExpenses(ctx context.Context, tripID string) <-chan domain.Result[[]*domain.ExpenseWithSplits] {
	return observe(ctx, o.store.Changes(ctx, tripID), func(ctx context.Context) ([]*domain.ExpenseWithSplits, error) {
		expenses, err := o.store.Expenses().ListByTrip(ctx, tripID)
		return expenses, domain.WrapDependency("expenses.list", err)
	})
}

// ObserveSettlements streams the settlements of a trip.
func (o *LedgerObserver) ObserveSettlements(ctx context.Context, tripID string) <-chan domain.Result[[]*domain.Settlement] {
	return observe(ctx, o.store.Changes(ctx, tripID), func(ctx context.Context) ([]*domain.Settlement, error) {
		settlements, err := o.store.Settlements().ListByTrip(ctx, tripID)
		return settlements, domain.WrapDependency("settlements.list", err)
	})
}

// ObserveBalances streams the trip's balances, recomputed whenever either
// the member or the expense stream emits. It stays Loading until both have
// produced a value and fails when either fails.
func (o *LedgerObserver) ObserveBalances(ctx context.Context, tripID string) <-chan domain.Result[domain.TripBalance] {
	members := o.ObserveMembers(ctx, tripID)
	expenses := o.ObserveExpenses(ctx, tripID)
	out := make(chan domain.Result[domain.TripBalance], 1)

	go func() {
		defer close(out)

		memberResult := domain.Loading[[]*domain.TripMember]()
		expenseResult := domain.Loading[[]*domain.ExpenseWithSplits]()

		for {
			select {
			case r, ok := <-members:
				if !ok {
					return
				}
				memberResult = r
			case r, ok := <-expenses:
				if !ok {
					return
				}
				expenseResult = r
			}

			sendLatest(out, combineBalances(tripID, memberResult, expenseResult))
		}
	}()

	return out
}

func combineBalances(tripID string, mr domain.Result[[]*domain.TripMember], er domain.Result[[]*domain.ExpenseWithSplits]) domain.Result[domain.TripBalance] {
	if err := mr.Err(); mr.State() == domain.StateError {
		return domain.Failure[domain.TripBalance](err)
	}
	if err := er.Err(); er.State() == domain.StateError {
		return domain.Failure[domain.TripBalance](err)
	}

	members, ok := mr.Value()
	if !ok {
		return domain.Loading[domain.TripBalance]()
	}
	expenses, ok := er.Value()
	if !ok {
		return domain.Loading[domain.TripBalance]()
	}

	return domain.Success(CalculateBalances(tripID, members, expenses))
}

func observe[T any](ctx context.Context, changes <-chan struct{}, load func(context.Context) (T, error)) <-chan domain.Result[T] {
	out := make(chan domain.Result[T], 1)

	go func() {
		defer close(out)

		sendLatest(out, domain.Loading[T]())

		for {
			v, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				sendLatest(out, domain.Failure[T](err))
			} else {
				sendLatest(out, domain.Success(v))
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()

	return out
}

// sendLatest delivers v, replacing an unread older value. ch must have a
// buffer of one and a single sender.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	ch <- v
}

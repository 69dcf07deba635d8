package usecase

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

// SettlementUseCase governs the settlement lifecycle:
// PENDING -> CONFIRMED | DISPUTED, or removal by cancellation.
type SettlementUseCase struct {
	store LedgerStore
	locks *TripLocks
	idGen IDGenerator
	clock Clock
}

// NewSettlementUseCase creates a new SettlementUseCase.
func NewSettlementUseCase(store LedgerStore, locks *TripLocks, idGen IDGenerator, clock Clock) *SettlementUseCase {
	return &SettlementUseCase{
		store: store,
		locks: orNewLocks(locks),
		idGen: idGen,
		clock: orSystemClock(clock),
	}
}

// CreateSettlementInput represents input for proposing a settlement. An
// empty ActorMemberID records the payer as creator.
type CreateSettlementInput struct {
	Notes         *string
	TripID        string
	FromMemberID  string
	ToMemberID    string
	ActorMemberID string
	Amount        decimal.Decimal
}

// CreateSettlement proposes a payment from one member to another. At most
// one pending settlement may exist per ordered pair.
func (uc *SettlementUseCase) CreateSettlement(ctx context.Context, input CreateSettlementInput) (*domain.Settlement, error) {
	creator := input.ActorMemberID
	if creator == "" {
		creator = input.FromMemberID
	}
	if input.Notes != nil {
		notes := strings.TrimSpace(*input.Notes)
		input.Notes = &notes
		if notes == "" {
			input.Notes = nil
		}
	}

	now := uc.clock()
	settlement := &domain.Settlement{
		ID:                uc.idGen.Generate(),
		TripID:            input.TripID,
		FromMemberID:      input.FromMemberID,
		ToMemberID:        input.ToMemberID,
		Amount:            input.Amount,
		Status:            domain.SettlementPending,
		Notes:             input.Notes,
		CreatedByMemberID: creator,
		CreatedAt:         domain.Timestamp(now),
	}
	settlement.Touch(now)
	if err := settlement.Validate(); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(input.TripID)
	defer unlock()

	for _, id := range []string{input.FromMemberID, input.ToMemberID, creator} {
		if _, err := tripMember(ctx, uc.store, input.TripID, id); err != nil {
			return nil, err
		}
	}

	pending, err := uc.store.Settlements().FindPending(ctx, input.TripID, input.FromMemberID, input.ToMemberID)
	if err != nil {
		return nil, domain.WrapDependency("settlements.find_pending", err)
	}
	if pending != nil {
		return nil, domain.ErrDuplicatePending
	}

	if err := uc.store.Settlements().Create(ctx, settlement); err != nil {
		return nil, domain.WrapDependency("settlements.create", err)
	}

	return settlement, nil
}

// ConfirmSettlement marks a pending settlement as received. The recipient
// confirms for themself; an admin may confirm on behalf of a guest
// recipient only. An empty actingMemberID is a trusted confirmation.
func (uc *SettlementUseCase) ConfirmSettlement(ctx context.Context, settlementID, actingMemberID string) (*domain.Settlement, error) {
	return uc.transition(ctx, settlementID, func(s *domain.Settlement) error {
		if err := uc.authorizeConfirm(ctx, s, actingMemberID); err != nil {
			return err
		}
		return s.Confirm(uc.clock())
	})
}

// DisputeSettlement marks a pending settlement as disputed. It is triggered
// by external callers.
func (uc *SettlementUseCase) DisputeSettlement(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	return uc.transition(ctx, settlementID, func(s *domain.Settlement) error {
		return s.Dispute(uc.clock())
	})
}

// CancelSettlement removes a pending settlement. Only its creator or an
// admin may cancel.
func (uc *SettlementUseCase) CancelSettlement(ctx context.Context, settlementID, cancellingMemberID string) error {
	s, err := uc.getSettlement(ctx, settlementID)
	if err != nil {
		return err
	}

	unlock := uc.locks.Lock(s.TripID)
	defer unlock()

	s, err = uc.getSettlement(ctx, settlementID)
	if err != nil {
		return err
	}
	if !s.IsPending() {
		return domain.ErrSettlementNotPending
	}

	actor, err := tripMember(ctx, uc.store, s.TripID, cancellingMemberID)
	if err != nil {
		return err
	}
	creator := s.CreatedByMemberID
	if creator == "" {
		creator = s.FromMemberID
	}
	if actor.ID != creator && !actor.IsAdmin() {
		return domain.ErrNotSettlementCanceller
	}

	if err := uc.store.Settlements().Delete(ctx, settlementID, domain.Timestamp(uc.clock())); err != nil {
		return domain.WrapDependency("settlements.delete", err)
	}

	return nil
}

// GetSettlement retrieves a settlement by ID.
func (uc *SettlementUseCase) GetSettlement(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	return uc.getSettlement(ctx, settlementID)
}

// ListSettlements lists the settlements of a trip.
func (uc *SettlementUseCase) ListSettlements(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	settlements, err := uc.store.Settlements().ListByTrip(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("settlements.list", err)
	}
	return settlements, nil
}

func (uc *SettlementUseCase) transition(ctx context.Context, settlementID string, apply func(s *domain.Settlement) error) (*domain.Settlement, error) {
	s, err := uc.getSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(s.TripID)
	defer unlock()

	s, err = uc.getSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if !s.IsPending() {
		return nil, domain.ErrSettlementNotPending
	}

	if err := apply(s); err != nil {
		return nil, err
	}

	if err := uc.store.Settlements().Update(ctx, s); err != nil {
		return nil, domain.WrapDependency("settlements.update", err)
	}

	return s, nil
}

func (uc *SettlementUseCase) authorizeConfirm(ctx context.Context, s *domain.Settlement, actingMemberID string) error {
	if actingMemberID == "" || actingMemberID == s.ToMemberID {
		return nil
	}

	actor, err := tripMember(ctx, uc.store, s.TripID, actingMemberID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return domain.ErrNotSettlementRecipient
	}

	recipient, err := tripMember(ctx, uc.store, s.TripID, s.ToMemberID)
	if err != nil {
		return err
	}
	if !recipient.IsGuest() {
		return domain.ErrNotSettlementRecipient
	}

	return nil
}

func (uc *SettlementUseCase) getSettlement(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	s, err := uc.store.Settlements().GetByID(ctx, settlementID)
	if err != nil {
		return nil, domain.WrapDependency("settlements.get", err)
	}
	return s, nil
}

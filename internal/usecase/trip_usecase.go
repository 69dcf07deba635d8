package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

const inviteCodeLength = 8

// TripUseCase handles trip lifecycle.
type TripUseCase struct {
	store LedgerStore
	locks *TripLocks
	idGen IDGenerator
	clock Clock
}

// NewTripUseCase creates a new TripUseCase.
func NewTripUseCase(store LedgerStore, locks *TripLocks, idGen IDGenerator, clock Clock) *TripUseCase {
	return &TripUseCase{
		store: store,
		locks: orNewLocks(locks),
		idGen: idGen,
		clock: orSystemClock(clock),
	}
}

// CreateTripInput represents input for creating a trip.
type CreateTripInput struct {
	Description   *string
	EndDate       *time.Time
	StartDate     time.Time
	Name          string
	CreatorUserID string
	CreatorName   string
}

// UpdateTripInput represents a partial trip update. Nil fields are left as is.
type UpdateTripInput struct {
	Name        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	TripID      string
	ActorUserID string
}

// CreateTrip creates a trip whose creator becomes its single admin.
func (uc *TripUseCase) CreateTrip(ctx context.Context, input CreateTripInput) (*domain.Trip, *domain.TripMember, error) {
	if err := domain.ValidateID(input.CreatorUserID); err != nil {
		return nil, nil, err
	}

	now := uc.clock()
	id := uc.idGen.Generate()

	trip := &domain.Trip{
		ID:          id,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		InviteCode:  inviteCode(uc.idGen.Generate()),
		CreatedBy:   input.CreatorUserID,
		CreatedAt:   domain.Timestamp(now),
	}
	trip.Touch(now)
	if err := trip.Validate(); err != nil {
		return nil, nil, err
	}

	userID := input.CreatorUserID
	admin := &domain.TripMember{
		ID:          uc.idGen.Generate(),
		TripID:      id,
		UserID:      &userID,
		DisplayName: strings.TrimSpace(input.CreatorName),
		Role:        domain.RoleAdmin,
		JoinedAt:    domain.Timestamp(now),
	}
	admin.Touch(now)
	if err := admin.Validate(); err != nil {
		return nil, nil, err
	}

	if err := uc.store.Trips().Create(ctx, trip, admin); err != nil {
		return nil, nil, domain.WrapDependency("trips.create", err)
	}

	return trip, admin, nil
}

// UpdateTrip changes trip details. Only the owner may do this.
func (uc *TripUseCase) UpdateTrip(ctx context.Context, input UpdateTripInput) (*domain.Trip, error) {
	unlock := uc.locks.Lock(input.TripID)
	defer unlock()

	trip, err := uc.ownedTrip(ctx, input.TripID, input.ActorUserID)
	if err != nil {
		return nil, err
	}

	updated := *trip
	if input.Name != nil {
		updated.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		updated.Description = input.Description
	}
	if input.StartDate != nil {
		updated.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		updated.EndDate = input.EndDate
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	updated.Touch(uc.clock())
	if err := uc.store.Trips().Update(ctx, &updated); err != nil {
		return nil, domain.WrapDependency("trips.update", err)
	}

	return &updated, nil
}

// DeleteTrip removes the trip with all its members, expenses, splits and
// settlements. Only the owner may do this.
func (uc *TripUseCase) DeleteTrip(ctx context.Context, tripID, actorUserID string) error {
	unlock := uc.locks.Lock(tripID)
	defer unlock()

	if _, err := uc.ownedTrip(ctx, tripID, actorUserID); err != nil {
		return err
	}

	if err := uc.store.Trips().Delete(ctx, tripID, domain.Timestamp(uc.clock())); err != nil {
		return domain.WrapDependency("trips.delete", err)
	}

	return nil
}

// GetTrip retrieves a trip by ID.
func (uc *TripUseCase) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	trip, err := uc.store.Trips().GetByID(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("trips.get", err)
	}
	return trip, nil
}

// ListTrips lists every trip in the local ledger.
func (uc *TripUseCase) ListTrips(ctx context.Context) ([]*domain.Trip, error) {
	trips, err := uc.store.Trips().List(ctx)
	if err != nil {
		return nil, domain.WrapDependency("trips.list", err)
	}
	return trips, nil
}

func (uc *TripUseCase) ownedTrip(ctx context.Context, tripID, actorUserID string) (*domain.Trip, error) {
	trip, err := uc.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.IsOwner(actorUserID) {
		return nil, domain.ErrNotTripOwner
	}
	return trip, nil
}

func inviteCode(seed string) string {
	if len(seed) > inviteCodeLength {
		seed = seed[len(seed)-inviteCodeLength:]
	}
	return strings.ToUpper(seed)
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

package usecase

import (
	"context"
	"strings"

	"github.com/iho/tripledger/internal/domain"
)

// MemberUseCase handles trip membership. Every trip keeps at least one admin.
type MemberUseCase struct {
	store LedgerStore
	locks *TripLocks
	idGen IDGenerator
	clock Clock
}

// NewMemberUseCase creates a new MemberUseCase.
func NewMemberUseCase(store LedgerStore, locks *TripLocks, idGen IDGenerator, clock Clock) *MemberUseCase {
	return &MemberUseCase{
		store: store,
		locks: orNewLocks(locks),
		idGen: idGen,
		clock: orSystemClock(clock),
	}
}

// AddMemberInput represents input for adding a member. A nil UserID adds a guest.
type AddMemberInput struct {
	UserID        *string
	TripID        string
	ActorMemberID string
	DisplayName   string
	Role          domain.Role
}

// AddMember adds a member to a trip. The actor must be an admin.
func (uc *MemberUseCase) AddMember(ctx context.Context, input AddMemberInput) (*domain.TripMember, error) {
	role := input.Role
	if role == "" {
		role = domain.RoleMember
	}

	now := uc.clock()
	member := &domain.TripMember{
		ID:          uc.idGen.Generate(),
		TripID:      input.TripID,
		UserID:      input.UserID,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        role,
		JoinedAt:    domain.Timestamp(now),
	}
	if member.UserID != nil && strings.TrimSpace(*member.UserID) == "" {
		member.UserID = nil
	}
	member.Touch(now)
	if err := member.Validate(); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(input.TripID)
	defer unlock()

	if _, err := uc.store.Trips().GetByID(ctx, input.TripID); err != nil {
		return nil, domain.WrapDependency("trips.get", err)
	}
	if _, err := requireAdmin(ctx, uc.store, input.TripID, input.ActorMemberID); err != nil {
		return nil, err
	}

	if err := uc.store.Members().Create(ctx, member); err != nil {
		return nil, domain.WrapDependency("members.create", err)
	}

	return member, nil
}

// RemoveMember removes a member with no ledger activity. The actor must be
// an admin and the last admin can never be removed.
func (uc *MemberUseCase) RemoveMember(ctx context.Context, memberID, actorMemberID string) error {
	target, err := uc.getMember(ctx, memberID)
	if err != nil {
		return err
	}

	unlock := uc.locks.Lock(target.TripID)
	defer unlock()

	if _, err := requireAdmin(ctx, uc.store, target.TripID, actorMemberID); err != nil {
		return err
	}

	members, err := uc.store.Members().ListByTrip(ctx, target.TripID)
	if err != nil {
		return domain.WrapDependency("members.list", err)
	}
	if target.IsAdmin() && domain.CountAdmins(members) <= 1 {
		return domain.ErrLastAdmin
	}

	active, err := uc.store.Members().HasActivity(ctx, memberID)
	if err != nil {
		return domain.WrapDependency("members.activity", err)
	}
	if active {
		return domain.ErrMemberHasActivity
	}

	if err := uc.store.Members().Delete(ctx, memberID, domain.Timestamp(uc.clock())); err != nil {
		return domain.WrapDependency("members.delete", err)
	}

	return nil
}

// ChangeRole promotes or demotes a member. The actor must be an admin.
func (uc *MemberUseCase) ChangeRole(ctx context.Context, memberID string, role domain.Role, actorMemberID string) (*domain.TripMember, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}

	target, err := uc.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(target.TripID)
	defer unlock()

	if _, err := requireAdmin(ctx, uc.store, target.TripID, actorMemberID); err != nil {
		return nil, err
	}

	members, err := uc.store.Members().ListByTrip(ctx, target.TripID)
	if err != nil {
		return nil, domain.WrapDependency("members.list", err)
	}
	current := domain.FindMember(members, memberID)
	if current == nil {
		return nil, domain.ErrMemberNotFound
	}
	if current.Role == role {
		return current, nil
	}
	if current.IsAdmin() && role != domain.RoleAdmin && domain.CountAdmins(members) <= 1 {
		return nil, domain.ErrLastAdmin
	}

	current.Role = role
	current.Touch(uc.clock())
	if err := uc.store.Members().Update(ctx, current); err != nil {
		return nil, domain.WrapDependency("members.update", err)
	}

	return current, nil
}

// RenameMember changes a display name. The member itself or an admin may
// do this; denormalized copies on expenses and splits follow.
func (uc *MemberUseCase) RenameMember(ctx context.Context, memberID, displayName, actorMemberID string) (*domain.TripMember, error) {
	displayName = strings.TrimSpace(displayName)
	if err := domain.ValidateName(displayName, domain.ErrInvalidDisplayName); err != nil {
		return nil, err
	}

	target, err := uc.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(target.TripID)
	defer unlock()

	if actorMemberID != memberID {
		if _, err := requireAdmin(ctx, uc.store, target.TripID, actorMemberID); err != nil {
			return nil, err
		}
	}

	current, err := uc.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	current.DisplayName = displayName
	current.Touch(uc.clock())
	if err := uc.store.Members().Update(ctx, current); err != nil {
		return nil, domain.WrapDependency("members.update", err)
	}

	return current, nil
}

// ListMembers lists the members of a trip ordered by id.
func (uc *MemberUseCase) ListMembers(ctx context.Context, tripID string) ([]*domain.TripMember, error) {
	members, err := uc.store.Members().ListByTrip(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("members.list", err)
	}
	return members, nil
}

func (uc *MemberUseCase) getMember(ctx context.Context, memberID string) (*domain.TripMember, error) {
	m, err := uc.store.Members().GetByID(ctx, memberID)
	if err != nil {
		return nil, domain.WrapDependency("members.get", err)
	}
	return m, nil
}

// tripMember loads memberID and checks it belongs to tripID.
func tripMember(ctx context.Context, store LedgerStore, tripID, memberID string) (*domain.TripMember, error) {
	if err := domain.ValidateID(memberID); err != nil {
		return nil, err
	}
	m, err := store.Members().GetByID(ctx, memberID)
	if err != nil {
		return nil, domain.WrapDependency("members.get", err)
	}
	if m.TripID != tripID {
		return nil, domain.ErrMemberNotInTrip
	}
	return m, nil
}

func requireAdmin(ctx context.Context, store LedgerStore, tripID, actorMemberID string) (*domain.TripMember, error) {
	actor, err := tripMember(ctx, store, tripID, actorMemberID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}
	return actor, nil
}

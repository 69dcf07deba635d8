package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

func TestSettlementUseCase_CreateSettlement(t *testing.T) {
	f := newTripFixture(t, "bo", "cy")
	bo, cy := f.members[0], f.members[1]

	tests := []struct {
		name      string
		input     usecase.CreateSettlementInput
		errorType error
	}{
		{
			name:  "valid settlement",
			input: usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: cy.ID, Amount: dec("25.50")},
		},
		{
			name:      "zero amount",
			input:     usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: f.admin.ID, Amount: dec("0")},
			errorType: domain.ErrInvalidAmount,
		},
		{
			name:      "self settlement",
			input:     usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: bo.ID, Amount: dec("10")},
			errorType: domain.ErrSelfSettlement,
		},
		{
			name:      "sub-cent amount",
			input:     usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: cy.ID, ToMemberID: bo.ID, Amount: dec("1.005")},
			errorType: domain.ErrAmountTooPrecise,
		},
		{
			name:      "member of another trip",
			input:     usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: "stranger", ToMemberID: bo.ID, Amount: dec("10")},
			errorType: domain.ErrMemberNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := f.settlements.CreateSettlement(context.Background(), tt.input)

			if tt.errorType != nil {
				if !errors.Is(err, tt.errorType) {
					t.Fatalf("expected %v, got %v", tt.errorType, err)
				}
				if domain.KindOf(err) != domain.KindOf(tt.errorType) {
					t.Errorf("expected kind %s, got %s", domain.KindOf(tt.errorType), domain.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Status != domain.SettlementPending {
				t.Errorf("expected PENDING, got %s", s.Status)
			}
			if s.CreatedByMemberID != tt.input.FromMemberID {
				t.Errorf("expected creator %s, got %s", tt.input.FromMemberID, s.CreatedByMemberID)
			}
			if s.IsSynced || !s.IsLocal {
				t.Error("new settlement should be a pending local change")
			}
		})
	}
}

func TestSettlementUseCase_DuplicatePending(t *testing.T) {
	ctx := context.Background()
	f := newTripFixture(t, "bo")
	bo := f.members[0]
	input := usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: f.admin.ID, Amount: dec("40")}

	first, err := f.settlements.CreateSettlement(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.settlements.CreateSettlement(ctx, input)
	if !errors.Is(err, domain.ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("expected conflict kind, got %s", domain.KindOf(err))
	}

	reverse := input
	reverse.FromMemberID, reverse.ToMemberID = input.ToMemberID, input.FromMemberID
	if _, err := f.settlements.CreateSettlement(ctx, reverse); err != nil {
		t.Fatalf("reverse pair should be allowed: %v", err)
	}

	if _, err := f.settlements.ConfirmSettlement(ctx, first.ID, f.admin.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	second, err := f.settlements.CreateSettlement(ctx, input)
	if err != nil {
		t.Fatalf("pair should be free after confirmation: %v", err)
	}

	if err := f.settlements.CancelSettlement(ctx, second.ID, bo.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.settlements.CreateSettlement(ctx, input); err != nil {
		t.Fatalf("pair should be free after cancellation: %v", err)
	}
}

func TestSettlementUseCase_ConcurrentCreateKeepsOnePending(t *testing.T) {
	ctx := context.Background()
	f := newTripFixture(t, "bo")
	input := usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.admin.ID, Amount: dec("5")}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.settlements.CreateSettlement(ctx, input); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one pending settlement, got %d", created)
	}
}

func TestSettlementUseCase_ConfirmSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("recipient confirms", func(t *testing.T) {
		f := newTripFixture(t, "bo", "cy")
		s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.members[1].ID, Amount: dec("12")})

		confirmed, err := f.settlements.ConfirmSettlement(ctx, s.ID, f.members[1].ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if confirmed.Status != domain.SettlementConfirmed {
			t.Errorf("expected CONFIRMED, got %s", confirmed.Status)
		}
		if confirmed.SettledAt == nil {
			t.Error("settled_at should be set")
		}
		if !confirmed.LastModified.After(s.LastModified) {
			t.Error("confirmation should advance last_modified")
		}

		_, err = f.settlements.ConfirmSettlement(ctx, s.ID, f.members[1].ID)
		if !errors.Is(err, domain.ErrSettlementNotPending) {
			t.Fatalf("expected ErrSettlementNotPending, got %v", err)
		}
	})

	t.Run("payer cannot confirm", func(t *testing.T) {
		f := newTripFixture(t, "bo", "cy")
		s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.members[1].ID, Amount: dec("12")})

		_, err := f.settlements.ConfirmSettlement(ctx, s.ID, f.members[0].ID)
		if !errors.Is(err, domain.ErrNotSettlementRecipient) {
			t.Fatalf("expected ErrNotSettlementRecipient, got %v", err)
		}
	})

	t.Run("admin confirms for a guest recipient", func(t *testing.T) {
		f := newTripFixture(t, "bo")
		guest, err := f.roster.AddMember(ctx, usecase.AddMemberInput{TripID: f.trip.ID, ActorMemberID: f.admin.ID, DisplayName: "Guest"})
		if err != nil {
			t.Fatalf("add guest: %v", err)
		}
		s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: guest.ID, Amount: dec("12")})

		if _, err := f.settlements.ConfirmSettlement(ctx, s.ID, f.admin.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("admin cannot confirm for a registered recipient", func(t *testing.T) {
		f := newTripFixture(t, "bo", "cy")
		s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.members[1].ID, Amount: dec("12")})

		_, err := f.settlements.ConfirmSettlement(ctx, s.ID, f.admin.ID)
		if !errors.Is(err, domain.ErrNotSettlementRecipient) {
			t.Fatalf("expected ErrNotSettlementRecipient, got %v", err)
		}
	})
}

func TestSettlementUseCase_DisputeSettlement(t *testing.T) {
	ctx := context.Background()
	f := newTripFixture(t, "bo")
	s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.admin.ID, Amount: dec("3")})

	disputed, err := f.settlements.DisputeSettlement(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disputed.Status != domain.SettlementDisputed {
		t.Errorf("expected DISPUTED, got %s", disputed.Status)
	}

	if _, err := f.settlements.ConfirmSettlement(ctx, s.ID, ""); !errors.Is(err, domain.ErrSettlementNotPending) {
		t.Fatalf("disputed settlement should be terminal, got %v", err)
	}
	if err := f.settlements.CancelSettlement(ctx, s.ID, f.admin.ID); !errors.Is(err, domain.ErrSettlementNotPending) {
		t.Fatalf("disputed settlement cannot be cancelled, got %v", err)
	}
}

func TestSettlementUseCase_CancelSettlement(t *testing.T) {
	ctx := context.Background()
	f := newTripFixture(t, "bo", "cy")
	bo, cy := f.members[0], f.members[1]
	s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: cy.ID, Amount: dec("9")})

	if err := f.settlements.CancelSettlement(ctx, s.ID, cy.ID); !errors.Is(err, domain.ErrNotSettlementCanceller) {
		t.Fatalf("expected ErrNotSettlementCanceller, got %v", err)
	}

	if err := f.settlements.CancelSettlement(ctx, s.ID, f.admin.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if _, err := f.settlements.GetSettlement(ctx, s.ID); !errors.Is(err, domain.ErrSettlementNotFound) {
		t.Fatalf("expected ErrSettlementNotFound, got %v", err)
	}

	markers, err := f.store.Sync().ListDeleteMarkers(ctx, f.trip.ID)
	if err != nil {
		t.Fatalf("list markers: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != s.ID || markers[0].Kind != domain.KindSettlement {
		t.Fatalf("expected a settlement delete marker, got %+v", markers)
	}
}

func TestSettlementUseCase_SettlementsDoNotMoveBalances(t *testing.T) {
	ctx := context.Background()
	f := newTripFixture(t, "bo")
	bo := f.members[0]
	f.addExpense(t, f.admin, "100")

	s, _ := f.settlements.CreateSettlement(ctx, usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: bo.ID, ToMemberID: f.admin.ID, Amount: dec("50")})
	if _, err := f.settlements.ConfirmSettlement(ctx, s.ID, f.admin.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	members, _ := f.roster.ListMembers(ctx, f.trip.ID)
	expenses, _ := f.expenses.ListExpenses(ctx, f.trip.ID)
	tb := usecase.CalculateBalances(f.trip.ID, members, expenses)

	if got := balanceOf(t, tb, bo.ID).NetBalance; !got.Equal(dec("-50")) {
		t.Errorf("expected -50, got %s", got)
	}
}

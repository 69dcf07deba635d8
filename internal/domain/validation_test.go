package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateName("Lisbon 2026", ErrInvalidTripName); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("blank name rejected", func(t *testing.T) {
		err := ValidateName("   ", ErrInvalidTripName)
		if !errors.Is(err, ErrInvalidTripName) {
			t.Fatalf("expected ErrInvalidTripName, got %v", err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation category, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		err := ValidateName(strings.Repeat("a", MaxNameLength+1), ErrInvalidDisplayName)
		if !errors.Is(err, ErrInvalidDisplayName) {
			t.Fatalf("expected ErrInvalidDisplayName, got %v", err)
		}
	})
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount string
		want   error
	}{
		{name: "positive", amount: "12.50", want: nil},
		{name: "one cent", amount: "0.01", want: nil},
		{name: "zero", amount: "0", want: ErrInvalidAmount},
		{name: "negative", amount: "-3", want: ErrInvalidAmount},
		{name: "sub-cent precision", amount: "1.005", want: ErrAmountTooPrecise},
		{name: "too large", amount: "1000000000.01", want: ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount))
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	if got := ValidatePagination(0); got != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", got)
	}
	if got := ValidatePagination(MaxPageSize + 1); got != MaxPageSize {
		t.Fatalf("expected max page size, got %d", got)
	}
	if got := ValidatePagination(25); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: ErrSelfSettlement, want: KindValidation},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", ErrTripNotFound), want: KindNotFound},
		{name: "unauthorized", err: ErrNotSettlementRecipient, want: KindUnauthorized},
		{name: "conflict", err: ErrDuplicatePending, want: KindConflict},
		{name: "dependency", err: WrapDependency("store.save", cause), want: KindDependency},
		{name: "internal", err: cause, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWrapDependencyKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := WrapDependency("remote.push", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("expected dependency category")
	}

	var depErr *DependencyError
	if !errors.As(err, &depErr) || depErr.Op != "remote.push" {
		t.Fatalf("expected DependencyError with op, got %v", err)
	}

	if got := WrapDependency("store.get", ErrTripNotFound); got != ErrTripNotFound {
		t.Fatalf("expected domain error to pass through, got %v", got)
	}
}

package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of them so callers
// can branch with errors.Is on the category alone.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrConflict     = errors.New("conflict")
	ErrDependency   = errors.New("dependency failure")
)

var (
	// Trip errors
	ErrTripNotFound    = fmt.Errorf("%w: trip", ErrNotFound)
	ErrInvalidTripName = fmt.Errorf("%w: trip name cannot be blank", ErrValidation)
	ErrInvalidTripDate = fmt.Errorf("%w: end date is before start date", ErrValidation)
	ErrNotTripOwner    = fmt.Errorf("%w: only the trip owner may do this", ErrUnauthorized)

	// Member errors
	ErrMemberNotFound       = fmt.Errorf("%w: member", ErrNotFound)
	ErrInvalidDisplayName   = fmt.Errorf("%w: display name cannot be blank", ErrValidation)
	ErrInvalidRole          = fmt.Errorf("%w: unknown member role", ErrValidation)
	ErrLastAdmin            = fmt.Errorf("%w: a trip must keep at least one admin", ErrValidation)
	ErrMemberHasActivity    = fmt.Errorf("%w: member is referenced by expenses or pending settlements", ErrConflict)
	ErrMemberNotInTrip      = fmt.Errorf("%w: member does not belong to this trip", ErrValidation)
	ErrAdminRequired        = fmt.Errorf("%w: admin role required", ErrUnauthorized)
	ErrDuplicateParticipant = fmt.Errorf("%w: member listed twice", ErrValidation)

	// Expense errors
	ErrExpenseNotFound     = fmt.Errorf("%w: expense", ErrNotFound)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidDescription  = fmt.Errorf("%w: description cannot be blank", ErrValidation)
	ErrInvalidCategory     = fmt.Errorf("%w: unknown expense category", ErrValidation)
	ErrSplitSumMismatch    = fmt.Errorf("%w: split amounts do not add up to the expense amount", ErrValidation)
	ErrNoParticipants      = fmt.Errorf("%w: a group expense needs at least one participant", ErrValidation)
	ErrNotExpenseEditor    = fmt.Errorf("%w: only the expense creator or an admin may change it", ErrUnauthorized)
	ErrInvalidSplitAmount  = fmt.Errorf("%w: split amount cannot be negative", ErrValidation)
	ErrNonGroupSplitPayer  = fmt.Errorf("%w: a non-group expense is owed entirely by its payer", ErrValidation)
	ErrAmountTooLarge      = fmt.Errorf("%w: amount exceeds maximum allowed", ErrValidation)
	ErrAmountTooPrecise    = fmt.Errorf("%w: amount has more than two decimal places", ErrValidation)
	ErrInvalidIDFormat     = fmt.Errorf("%w: invalid ID format", ErrValidation)
	ErrInvalidTextTooLarge = fmt.Errorf("%w: text exceeds maximum length", ErrValidation)

	// Settlement errors
	ErrSettlementNotFound     = fmt.Errorf("%w: settlement", ErrNotFound)
	ErrSelfSettlement         = fmt.Errorf("%w: cannot settle with yourself", ErrValidation)
	ErrDuplicatePending       = fmt.Errorf("%w: a pending settlement already exists for this pair", ErrConflict)
	ErrSettlementNotPending   = fmt.Errorf("%w: settlement is no longer pending", ErrConflict)
	ErrNotSettlementRecipient = fmt.Errorf("%w: only the recipient may confirm this settlement", ErrUnauthorized)
	ErrNotSettlementCanceller = fmt.Errorf("%w: only the creator or an admin may cancel this settlement", ErrUnauthorized)

	// Sync errors
	ErrInvalidRecordKind = fmt.Errorf("%w: unknown record kind", ErrValidation)
	ErrInvalidRecord     = fmt.Errorf("%w: malformed sync record", ErrValidation)
	ErrInvalidCursor     = fmt.Errorf("%w: malformed sync cursor", ErrValidation)
	ErrRecordNotFound    = fmt.Errorf("%w: sync record", ErrNotFound)
)

// Kind is the coarse classification of an error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindDependency   Kind = "dependency"
	KindInternal     Kind = "internal"
)

// KindOf classifies err. Errors outside the domain taxonomy are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrDependency):
		return KindDependency
	default:
		return KindInternal
	}
}

// DependencyError marks a failure of the ledger store or the remote ledger
// while keeping the underlying cause reachable through errors.Is/As.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependency, e.Err}
}

// WrapDependency wraps err as a dependency failure of op. Domain errors are
// returned untouched so their category survives.
func WrapDependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the lifecycle state of a settlement.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "PENDING"
	SettlementConfirmed SettlementStatus = "CONFIRMED"
	SettlementDisputed  SettlementStatus = "DISPUTED"
)

// Settlement is a recorded real-world payment between two members. It does
// not feed back into expense data.
type Settlement struct {
	ID                string
	TripID            string
	FromMemberID      string
	ToMemberID        string
	Amount            decimal.Decimal
	Status            SettlementStatus
	Notes             *string
	CreatedByMemberID string
	CreatedAt         time.Time
	SettledAt         *time.Time
	SyncMeta
}

// Validate checks the creation guards that do not need store access.
func (s *Settlement) Validate() error {
	if s.FromMemberID == s.ToMemberID {
		return ErrSelfSettlement
	}
	if err := ValidateAmount(s.Amount); err != nil {
		return err
	}
	if s.Notes != nil && len(*s.Notes) > MaxNotesLength {
		return ErrInvalidTextTooLarge
	}
	return nil
}

// IsPending reports whether the settlement can still transition.
func (s *Settlement) IsPending() bool {
	return s.Status == SettlementPending
}

// Confirm moves a pending settlement to CONFIRMED.
func (s *Settlement) Confirm(at time.Time) error {
	if !s.IsPending() {
		return ErrSettlementNotPending
	}
	settledAt := Timestamp(at)
	s.Status = SettlementConfirmed
	s.SettledAt = &settledAt
	s.Touch(at)
	return nil
}

// Dispute moves a pending settlement to DISPUTED.
func (s *Settlement) Dispute(at time.Time) error {
	if !s.IsPending() {
		return ErrSettlementNotPending
	}
	s.Status = SettlementDisputed
	s.Touch(at)
	return nil
}

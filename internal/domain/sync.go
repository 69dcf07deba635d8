package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind names the entity type carried by a sync record.
type RecordKind string

const (
	KindTrip       RecordKind = "trip"
	KindMember     RecordKind = "member"
	KindExpense    RecordKind = "expense"
	KindSettlement RecordKind = "settlement"
)

var kindRank = map[RecordKind]int{
	KindTrip:       0,
	KindMember:     1,
	KindExpense:    2,
	KindSettlement: 3,
}

// ParseRecordKind validates a record kind.
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(s)
	if _, ok := kindRank[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecordKind, s)
	}
	return k, nil
}

// Rank orders kinds so parents apply before children.
func (k RecordKind) Rank() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank)
}

// Timestamp normalizes t for storage and comparison. Every store keeps
// microsecond precision, so last-write-wins compares equal values everywhere.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// SyncRecord is the transport envelope of one entity version.
type SyncRecord struct {
	Kind         RecordKind      `json:"kind"`
	ID           string          `json:"id"`
	TripID       string          `json:"trip_id"`
	LastModified time.Time       `json:"last_modified"`
	Deleted      bool            `json:"deleted,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the envelope.
func (r *SyncRecord) Validate() error {
	if _, err := ParseRecordKind(string(r.Kind)); err != nil {
		return err
	}
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	if err := ValidateID(r.TripID); err != nil {
		return err
	}
	if r.Kind == KindTrip && r.ID != r.TripID {
		return fmt.Errorf("%w: trip record id must equal its trip id", ErrInvalidRecord)
	}
	if r.LastModified.IsZero() {
		return fmt.Errorf("%w: missing last_modified", ErrInvalidRecord)
	}
	if !r.Deleted && len(r.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidRecord)
	}
	return nil
}

// DeleteMarker is an explicit deletion, pushed for local deletes and pulled
// for remote ones.
type DeleteMarker struct {
	Kind      RecordKind `json:"kind"`
	ID        string     `json:"id"`
	TripID    string     `json:"trip_id"`
	DeletedAt time.Time  `json:"deleted_at"`
}

// Record converts the marker into a deletion envelope.
func (m DeleteMarker) Record() SyncRecord {
	return SyncRecord{
		Kind:         m.Kind,
		ID:           m.ID,
		TripID:       m.TripID,
		LastModified: m.DeletedAt,
		Deleted:      true,
	}
}

// Marker converts a deletion envelope back into a marker.
func (r *SyncRecord) Marker() DeleteMarker {
	return DeleteMarker{Kind: r.Kind, ID: r.ID, TripID: r.TripID, DeletedAt: r.LastModified}
}

// RecordVersion is what the local store knows about one record's freshness.
type RecordVersion struct {
	LastModified time.Time
	IsSynced     bool
}

// PullResult is one page of remote changes after a cursor.
type PullResult struct {
	Records       []SyncRecord   `json:"records"`
	DeleteMarkers []DeleteMarker `json:"delete_markers"`
	Cursor        string         `json:"cursor"`
	HasMore       bool           `json:"has_more"`
}

// PushStatus is the remote verdict on a pushed record.
type PushStatus string

const (
	PushApplied PushStatus = "APPLIED"
	PushStale   PushStatus = "STALE"
	PushDeleted PushStatus = "DELETED"
)

// PushOutcome is the remote answer to a push. Current carries the remote's
// version when the push was stale.
type PushOutcome struct {
	Status  PushStatus  `json:"status"`
	Current *SyncRecord `json:"current,omitempty"`
}

// Resolution names which side lost a last-write-wins conflict.
type Resolution string

const (
	RemoteWins Resolution = "REMOTE_WINS"
	LocalWins  Resolution = "LOCAL_WINS"
	DeleteWins Resolution = "DELETE_WINS"
)

// Conflict records a divergence resolved during reconciliation.
type Conflict struct {
	Kind           RecordKind
	ID             string
	Resolution     Resolution
	LocalModified  time.Time
	RemoteModified time.Time
}

// RecordFailure is one record that could not be reconciled.
type RecordFailure struct {
	Kind  RecordKind
	ID    string
	Phase string
	Err   error
}

// ReconcileOutcome aggregates one reconciliation pass over a trip.
type ReconcileOutcome struct {
	TripID    string
	Pushed    int
	Pulled    int
	Deleted   int
	Failed    []RecordFailure
	Conflicts []Conflict
	Cursor    string
}

// Succeeded counts the records that changed state on either side.
func (o *ReconcileOutcome) Succeeded() int {
	return o.Pushed + o.Pulled + o.Deleted
}

// HasConflicts reports whether any value was discarded.
func (o *ReconcileOutcome) HasConflicts() bool {
	return len(o.Conflicts) > 0
}

// Err joins every per-record failure, or returns nil.
func (o *ReconcileOutcome) Err() error {
	if len(o.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(o.Failed))
	for _, f := range o.Failed {
		errs = append(errs, fmt.Errorf("%s %s %s: %w", f.Phase, f.Kind, f.ID, f.Err))
	}
	return errors.Join(errs...)
}

type tripPayload struct {
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	InviteCode  string     `json:"invite_code"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

type memberPayload struct {
	UserID      *string   `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

type splitPayload struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"member_id"`
	MemberName string          `json:"member_name"`
	AmountOwed decimal.Decimal `json:"amount_owed"`
	CreatedAt  time.Time       `json:"created_at"`
}

type expensePayload struct {
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Category       Category        `json:"category"`
	Date           time.Time       `json:"date"`
	PaidBy         string          `json:"paid_by"`
	PaidByName     string          `json:"paid_by_name"`
	CreatedBy      string          `json:"created_by"`
	IsGroupExpense bool            `json:"is_group_expense"`
	CreatedAt      time.Time       `json:"created_at"`
	Splits         []splitPayload  `json:"splits"`
}

type settlementPayload struct {
	FromMemberID      string           `json:"from_member_id"`
	ToMemberID        string           `json:"to_member_id"`
	Amount            decimal.Decimal  `json:"amount"`
	Status            SettlementStatus `json:"status"`
	Notes             *string          `json:"notes,omitempty"`
	CreatedByMemberID string           `json:"created_by_member_id"`
	CreatedAt         time.Time        `json:"created_at"`
	SettledAt         *time.Time       `json:"settled_at,omitempty"`
}

func newRecord(kind RecordKind, id, tripID string, lastModified time.Time, payload any) (SyncRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SyncRecord{}, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return SyncRecord{Kind: kind, ID: id, TripID: tripID, LastModified: lastModified, Payload: raw}, nil
}

// TripRecord encodes a trip.
func TripRecord(t *Trip) (SyncRecord, error) {
	return newRecord(KindTrip, t.ID, t.ID, t.LastModified, tripPayload{
		Name:        t.Name,
		Description: t.Description,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		InviteCode:  t.InviteCode,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	})
}

// MemberRecord encodes a trip member.
func MemberRecord(m *TripMember) (SyncRecord, error) {
	return newRecord(KindMember, m.ID, m.TripID, m.LastModified, memberPayload{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		JoinedAt:    m.JoinedAt,
	})
}

// ExpenseRecord encodes an expense together with its splits.
func ExpenseRecord(e *ExpenseWithSplits) (SyncRecord, error) {
	splits := make([]splitPayload, 0, len(e.Splits))
	for _, s := range e.Splits {
		splits = append(splits, splitPayload{
			ID:         s.ID,
			MemberID:   s.MemberID,
			MemberName: s.MemberName,
			AmountOwed: s.AmountOwed,
			CreatedAt:  s.CreatedAt,
		})
	}
	return newRecord(KindExpense, e.ID, e.TripID, e.LastModified, expensePayload{
		Description:    e.Description,
		Amount:         e.Amount,
		Category:       e.Category,
		Date:           e.Date,
		PaidBy:         e.PaidBy,
		PaidByName:     e.PaidByName,
		CreatedBy:      e.CreatedBy,
		IsGroupExpense: e.IsGroupExpense,
		CreatedAt:      e.CreatedAt,
		Splits:         splits,
	})
}

// SettlementRecord encodes a settlement.
func SettlementRecord(s *Settlement) (SyncRecord, error) {
	return newRecord(KindSettlement, s.ID, s.TripID, s.LastModified, settlementPayload{
		FromMemberID:      s.FromMemberID,
		ToMemberID:        s.ToMemberID,
		Amount:            s.Amount,
		Status:            s.Status,
		Notes:             s.Notes,
		CreatedByMemberID: s.CreatedByMemberID,
		CreatedAt:         s.CreatedAt,
		SettledAt:         s.SettledAt,
	})
}

func (r *SyncRecord) decode(kind RecordKind, dst any) error {
	if r.Kind != kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidRecordKind, kind, r.Kind)
	}
	if err := json.Unmarshal(r.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidRecord, r.Kind, r.ID, err)
	}
	return nil
}

// Trip decodes a trip record as an accepted remote version.
func (r *SyncRecord) Trip() (*Trip, error) {
	var p tripPayload
	if err := r.decode(KindTrip, &p); err != nil {
		return nil, err
	}
	t := &Trip{
		ID:          r.ID,
		Name:        p.Name,
		Description: p.Description,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		InviteCode:  p.InviteCode,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
	}
	t.MarkRemote(r.LastModified)
	return t, nil
}

// Member decodes a member record as an accepted remote version.
func (r *SyncRecord) Member() (*TripMember, error) {
	var p memberPayload
	if err := r.decode(KindMember, &p); err != nil {
		return nil, err
	}
	m := &TripMember{
		ID:          r.ID,
		TripID:      r.TripID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		JoinedAt:    p.JoinedAt,
	}
	m.MarkRemote(r.LastModified)
	return m, nil
}

// Expense decodes an expense record as an accepted remote version.
func (r *SyncRecord) Expense() (*ExpenseWithSplits, error) {
	var p expensePayload
	if err := r.decode(KindExpense, &p); err != nil {
		return nil, err
	}
	e := &ExpenseWithSplits{
		Expense: Expense{
			ID:             r.ID,
			TripID:         r.TripID,
			Description:    p.Description,
			Amount:         p.Amount,
			Category:       p.Category,
			Date:           p.Date,
			PaidBy:         p.PaidBy,
			PaidByName:     p.PaidByName,
			CreatedBy:      p.CreatedBy,
			IsGroupExpense: p.IsGroupExpense,
			CreatedAt:      p.CreatedAt,
		},
		Splits: make([]ExpenseSplit, 0, len(p.Splits)),
	}
	for _, s := range p.Splits {
		e.Splits = append(e.Splits, ExpenseSplit{
			ID:         s.ID,
			ExpenseID:  r.ID,
			MemberID:   s.MemberID,
			MemberName: s.MemberName,
			AmountOwed: s.AmountOwed,
			CreatedAt:  s.CreatedAt,
		})
	}
	e.MarkRemote(r.LastModified)
	return e, nil
}

// Settlement decodes a settlement record as an accepted remote version.
func (r *SyncRecord) Settlement() (*Settlement, error) {
	var p settlementPayload
	if err := r.decode(KindSettlement, &p); err != nil {
		return nil, err
	}
	s := &Settlement{
		ID:                r.ID,
		TripID:            r.TripID,
		FromMemberID:      p.FromMemberID,
		ToMemberID:        p.ToMemberID,
		Amount:            p.Amount,
		Status:            p.Status,
		Notes:             p.Notes,
		CreatedByMemberID: p.CreatedByMemberID,
		CreatedAt:         p.CreatedAt,
		SettledAt:         p.SettledAt,
	}
	s.MarkRemote(r.LastModified)
	return s, nil
}

package domain

import "time"

// SyncMeta is the per-record bookkeeping used by reconciliation.
// LastModified is the content timestamp and is never moved by a push.
type SyncMeta struct {
	IsLocal      bool
	IsSynced     bool
	LastModified time.Time
}

// Touch tags the record as a pending local mutation made at now.
func (m *SyncMeta) Touch(now time.Time) {
	m.IsLocal = true
	m.IsSynced = false
	m.LastModified = Timestamp(now)
}

// MarkRemote tags the record as an accepted copy of the remote version.
func (m *SyncMeta) MarkRemote(lastModified time.Time) {
	m.IsLocal = false
	m.IsSynced = true
	m.LastModified = Timestamp(lastModified)
}

// Trip is a bounded expense-sharing context.
type Trip struct {
	ID          string
	Name        string
	Description *string
	StartDate   time.Time
	EndDate     *time.Time
	InviteCode  string
	CreatedBy   string
	CreatedAt   time.Time
	SyncMeta
}

// Validate checks the trip's own fields.
func (t *Trip) Validate() error {
	if err := ValidateName(t.Name, ErrInvalidTripName); err != nil {
		return err
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return ErrInvalidTripDate
	}
	if t.Description != nil && len(*t.Description) > MaxNotesLength {
		return ErrInvalidTextTooLarge
	}
	return nil
}

// IsOwner reports whether userID created the trip.
func (t *Trip) IsOwner(userID string) bool {
	return userID != "" && t.CreatedBy == userID
}

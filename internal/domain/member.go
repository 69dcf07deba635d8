package domain

import "time"

// Role represents a member's access level within a trip.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// TripMember is a participant of a trip. A nil UserID marks a guest that is
// not tied to any account.
type TripMember struct {
	ID          string
	TripID      string
	UserID      *string
	DisplayName string
	Role        Role
	JoinedAt    time.Time
	SyncMeta
}

// IsAdmin reports whether the member holds the admin role.
func (m *TripMember) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// IsGuest reports whether the member has no account.
func (m *TripMember) IsGuest() bool {
	return m.UserID == nil || *m.UserID == ""
}

// Validate checks the member's own fields.
func (m *TripMember) Validate() error {
	if err := ValidateName(m.DisplayName, ErrInvalidDisplayName); err != nil {
		return err
	}
	if _, err := ParseRole(string(m.Role)); err != nil {
		return err
	}
	return nil
}

// CountAdmins returns how many of members are admins.
func CountAdmins(members []*TripMember) int {
	n := 0
	for _, m := range members {
		if m.IsAdmin() {
			n++
		}
	}
	return n
}

// FindMember returns the member with id, or nil.
func FindMember(members []*TripMember, id string) *TripMember {
	for _, m := range members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

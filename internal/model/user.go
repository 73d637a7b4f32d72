package model

import (
	"fmt"
	"slices"
	"time"
)

// User represents an authentication principal (separate from personnel).
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Roles        []string   `json:"roles"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin  = "admin"
	RoleLeader = "leader"
	RoleUser   = "user"
)

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleLeader || role == RoleUser
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:  3,
		RoleLeader: 2,
		RoleUser:   1,
	}
	return levels[role] >= levels[minimum]
}

// HighestRole returns the most privileged known role in roles, or "" if none.
func HighestRole(roles []string) string {
	best := ""
	for _, r := range roles {
		if !ValidRole(r) {
			continue
		}
		if best == "" || RoleAtLeast(r, best) {
			best = r
		}
	}
	return best
}

// EffectiveRole computes the role a request acts with. The override lets a
// privileged user act with less privilege (e.g. an admin viewing as a user);
// it never raises privilege. An unknown override is ignored.
func EffectiveRole(actual []string, override string) string {
	highest := HighestRole(actual)
	if override == "" || !ValidRole(override) || highest == "" {
		return highest
	}
	if RoleAtLeast(highest, override) {
		return override
	}
	return highest
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Principal is the authenticated caller of an operation, with its effective
// role already resolved for the request.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the principal acts as admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// IsLeader reports whether the principal acts as leader.
func (p *Principal) IsLeader() bool {
	return p != nil && p.Role == RoleLeader
}

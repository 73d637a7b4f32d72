package model

import "time"

// ScopeGrant lets a leader manage a unit and, transitively, its descendants.
type ScopeGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UnitID    string    `json:"unit_id"`
	UnitType  UnitType  `json:"unit_type"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

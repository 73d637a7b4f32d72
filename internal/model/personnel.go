package model

import "time"

// Personnel is a person tracked by the organization. UserID links the record
// to a login; unlinked personnel cannot hold roles.
type Personnel struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	UnitID        string    `json:"unit_id,omitempty"`
	BattalionID   string    `json:"battalion_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Rank          string    `json:"rank,omitempty"`
	ServiceNumber string    `json:"service_number,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName returns the name used in transfer snapshots.
func (p *Personnel) DisplayName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if p.Rank != "" {
		name = p.Rank + " " + name
	}
	return name
}

// Personnel statuses.
const (
	PersonnelStatusActive   = "active"
	PersonnelStatusInactive = "inactive"
)

package model

import "time"

// UnitType is the tier of a unit in the fixed three-level organization tree.
type UnitType string

// Unit types, top tier first.
const (
	UnitTypeBattalion UnitType = "battalion"
	UnitTypeCompany   UnitType = "company"
	UnitTypePlatoon   UnitType = "platoon"
)

// MaxTiers is the height of the organization tree.
const MaxTiers = 3

// Tier returns 1 for the top tier and MaxTiers for the leaf tier.
// Unknown types return 0.
func (t UnitType) Tier() int {
	switch t {
	case UnitTypeBattalion:
		return 1
	case UnitTypeCompany:
		return 2
	case UnitTypePlatoon:
		return 3
	}
	return 0
}

// Valid reports whether t is one of the known unit types.
func (t UnitType) Valid() bool {
	return t.Tier() > 0
}

// ParentType returns the unit type a unit of type t must hang under.
// The top tier has no parent type.
func (t UnitType) ParentType() (UnitType, bool) {
	switch t {
	case UnitTypeCompany:
		return UnitTypeBattalion, true
	case UnitTypePlatoon:
		return UnitTypeCompany, true
	}
	return "", false
}

// Unit is a node of the organization tree.
type Unit struct {
	ID          string    `json:"id"`
	UnitType    UnitType  `json:"unit_type"`
	ParentID    string    `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Designation string    `json:"designation,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unit statuses.
const (
	UnitStatusActive   = "active"
	UnitStatusInactive = "inactive"
)

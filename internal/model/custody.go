package model

import (
	"fmt"
	"time"
)

// HolderKind tags which kind of entity holds equipment or receives a transfer.
type HolderKind string

// Holder kinds.
const (
	HolderUnit      HolderKind = "unit"
	HolderPersonnel HolderKind = "personnel"
)

// Holder identifies exactly one unit or one person. It is used both for the
// current holder of a custody record and for a transfer destination.
type Holder struct {
	Kind HolderKind `json:"kind"`
	ID   string     `json:"id"`
}

// UnitHolder returns a holder for a unit.
func UnitHolder(id string) Holder { return Holder{Kind: HolderUnit, ID: id} }

// PersonnelHolder returns a holder for a person.
func PersonnelHolder(id string) Holder { return Holder{Kind: HolderPersonnel, ID: id} }

// HolderFromIDs builds a holder from the unit/personnel id pair used at the API
// boundary. Exactly one of the two must be set.
func HolderFromIDs(unitID, personnelID string) (Holder, error) {
	switch {
	case unitID != "" && personnelID != "":
		return Holder{}, fmt.Errorf("only one of unit and personnel may be given")
	case unitID != "":
		return UnitHolder(unitID), nil
	case personnelID != "":
		return PersonnelHolder(personnelID), nil
	}
	return Holder{}, fmt.Errorf("a unit or personnel destination is required")
}

// Valid reports whether the holder is well formed.
func (h Holder) Valid() bool {
	return (h.Kind == HolderUnit || h.Kind == HolderPersonnel) && h.ID != ""
}

// UnitID returns the id if the holder is a unit.
func (h Holder) UnitID() string {
	if h.Kind == HolderUnit {
		return h.ID
	}
	return ""
}

// PersonnelID returns the id if the holder is a person.
func (h Holder) PersonnelID() string {
	if h.Kind == HolderPersonnel {
		return h.ID
	}
	return ""
}

func (h Holder) String() string {
	return string(h.Kind) + ":" + h.ID
}

// CustodyRecord asserts that equipment was held by a holder from AssignedAt
// until ReturnedAt. A record with no ReturnedAt is active.
type CustodyRecord struct {
	ID          string     `json:"id"`
	EquipmentID string     `json:"equipment_id"`
	Holder      Holder     `json:"holder"`
	Quantity    int        `json:"quantity"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`

	// Joined field (not always populated).
	HolderName string `json:"holder_name,omitempty"`
}

// Active reports whether the record is the current custody of its equipment.
func (c *CustodyRecord) Active() bool {
	return c.ReturnedAt == nil
}

package model

import "time"

// Equipment is a single tracked piece of equipment.
type Equipment struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Category     string    `json:"category,omitempty"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	HasPhoto     bool      `json:"has_photo,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Equipment statuses. StatusPendingTransfer is the lock held while a transfer
// request is outstanding; StatusAssigned is set when a transfer is approved.
const (
	StatusServiceable     = "serviceable"
	StatusUnserviceable   = "unserviceable"
	StatusInMaintenance   = "in-maintenance"
	StatusMissing         = "missing"
	StatusPendingTransfer = "pending-transfer"
	StatusAssigned        = "assigned"
)

// ValidEquipmentStatus reports whether s is a known equipment status.
func ValidEquipmentStatus(s string) bool {
	switch s {
	case StatusServiceable, StatusUnserviceable, StatusInMaintenance,
		StatusMissing, StatusPendingTransfer, StatusAssigned:
		return true
	}
	return false
}

// EditableEquipmentStatus reports whether s may be set directly by an edit.
// The transfer lock and the assigned state are owned by the transfer workflow.
func EditableEquipmentStatus(s string) bool {
	return ValidEquipmentStatus(s) && s != StatusPendingTransfer && s != StatusAssigned
}

// RestoreStatus returns the status equipment goes back to when a transfer is
// rejected. Anything that is not a valid pre-lock status falls back to
// StatusServiceable.
func RestoreStatus(prior string) string {
	if !ValidEquipmentStatus(prior) || prior == StatusPendingTransfer {
		return StatusServiceable
	}
	return prior
}

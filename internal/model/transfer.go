package model

import "time"

// TransferRequest is a proposal to move custody of equipment to a new holder.
// Once Status leaves pending it never changes again.
type TransferRequest struct {
	ID            string    `json:"id"`
	EquipmentID   string    `json:"equipment_id"`
	EquipmentName string    `json:"equipment_name,omitempty"`
	Status        string    `json:"status"`
	RequestedBy   string    `json:"requested_by"`
	RequestedAt   time.Time `json:"requested_at"`
	Notes         string    `json:"notes,omitempty"`

	From     *Holder `json:"from,omitempty"`
	FromName string  `json:"from_name,omitempty"`
	To       Holder  `json:"to"`
	ToName   string  `json:"to_name,omitempty"`

	// PriorStatus is the equipment status observed when the lock was taken.
	PriorStatus string `json:"prior_status"`

	RecipientApprovalRequired bool       `json:"recipient_approval_required,omitempty"`
	RecipientUserID           string     `json:"recipient_user_id,omitempty"`
	RecipientApproved         bool       `json:"recipient_approved,omitempty"`
	RecipientApprovedAt       *time.Time `json:"recipient_approved_at,omitempty"`

	ProcessedBy string     `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Transfer request statuses.
const (
	TransferPending  = "pending"
	TransferApproved = "approved"
	TransferRejected = "rejected"
)

// Terminal reports whether the request has been resolved.
func (t *TransferRequest) Terminal() bool {
	return t.Status != TransferPending
}

// TransferAction is the resolution applied to a pending request.
type TransferAction string

// Transfer actions.
const (
	ActionApprove TransferAction = "approve"
	ActionReject  TransferAction = "reject"
)

// Valid reports whether a is a known action.
func (a TransferAction) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

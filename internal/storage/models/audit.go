package models

import (
	"time"
)

// AuditField names a tracked attribute. The set is closed.
type AuditField string

const (
	FieldStatus          AuditField = "status"
	FieldConfirmedAt     AuditField = "confirmed_at"
	FieldCancelled       AuditField = "cancelled"
	FieldCancelledReason AuditField = "cancelled_reason"
	FieldCancelledAt     AuditField = "cancelled_at"
	FieldSubject         AuditField = "subject"
	FieldStartTime       AuditField = "start_time"
	FieldEndTime         AuditField = "end_time"
	FieldLocation        AuditField = "location"
	FieldBodyPreview     AuditField = "body_preview"
	FieldAmount          AuditField = "amount"
	FieldPaymentMethod   AuditField = "payment_method"
	FieldCustomerID      AuditField = "customer_id"
	FieldTreatmentTypeID AuditField = "treatment_type_id"
	FieldNotes           AuditField = "notes"
)

var auditFields = map[AuditField]bool{
	FieldStatus: true, FieldConfirmedAt: true, FieldCancelled: true,
	FieldCancelledReason: true, FieldCancelledAt: true, FieldSubject: true,
	FieldStartTime: true, FieldEndTime: true, FieldLocation: true,
	FieldBodyPreview: true, FieldAmount: true, FieldPaymentMethod: true,
	FieldCustomerID: true, FieldTreatmentTypeID: true, FieldNotes: true,
}

// Valid reports whether f belongs to the tracked set.
func (f AuditField) Valid() bool {
	return auditFields[f]
}

// FieldChange is one entry of an audit diff. Values are rendered as strings;
// nil means "unset".
type FieldChange struct {
	Field AuditField `json:"field"`
	From  *string    `json:"from"`
	To    *string    `json:"to"`
}

// AuditEntry records a single state change of an appointment.
type AuditEntry struct {
	ID            string        `json:"id"`
	AppointmentID string        `json:"appointmentId"`
	Action        string        `json:"action"`
	Changes       []FieldChange `json:"changes"`
	CreatedAt     time.Time     `json:"createdAt"`
}

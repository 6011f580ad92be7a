// Package models contains the domain models for the application.
package models

import (
	"time"
)

// AppointmentStatus is the triage state of an appointment.
type AppointmentStatus string

// Appointment status constants
const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusDismissed AppointmentStatus = "dismissed"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDismissed:
		return true
	}
	return false
}

// Appointment mirrors one external calendar event plus the local triage state.
// Descriptive fields are owned by the calendar while Status is pending.
type Appointment struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"externalId"`
	ChangeKey   string    `json:"changeKey"`
	Subject     string    `json:"subject"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Location    *string   `json:"location,omitempty"`
	BodyPreview *string   `json:"bodyPreview,omitempty"`

	Status          AppointmentStatus `json:"status"`
	ConfirmedAt     *time.Time        `json:"confirmedAt,omitempty"`
	Cancelled       bool              `json:"cancelled"`
	CancelledReason *string           `json:"cancelledReason,omitempty"`
	CancelledAt     *time.Time        `json:"cancelledAt,omitempty"`

	ImportedAt time.Time `json:"importedAt"`
	LastSyncAt time.Time `json:"lastSyncAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsPending reports whether the sync engine may still overwrite the row.
func (a *Appointment) IsPending() bool {
	return a.Status == StatusPending
}

// AppointmentFilter narrows appointment listings. Zero values mean "any".
type AppointmentFilter struct {
	Status    AppointmentStatus
	Cancelled *bool
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

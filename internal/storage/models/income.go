package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment method constants
const (
	PaymentMethodCash = "cash"
	PaymentMethodCard = "card"
)

// IncomeEntry is one recorded payment. Entries are soft-deleted only.
type IncomeEntry struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"paymentMethod"`
	IncomeDate      time.Time       `json:"incomeDate"`
	CustomerID      *string         `json:"customerId,omitempty"`
	TreatmentTypeID *string         `json:"treatmentTypeId,omitempty"`
	AppointmentID   *string         `json:"appointmentId,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// AmountString formats the amount with two decimal places.
func (e *IncomeEntry) AmountString() string {
	return e.Amount.StringFixed(2)
}

// MarshalJSON renders the amount as a fixed two-place string such as "69.00".
func (e IncomeEntry) MarshalJSON() ([]byte, error) {
	type plain IncomeEntry
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain: plain(e), Amount: e.AmountString()})
}

// Customer is the minimal customer record referenced by income entries.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TreatmentType is a bookable service such as "Lash Lift".
type TreatmentType struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	DefaultPrice decimal.NullDecimal `json:"defaultPrice"`
	Active       bool                `json:"active"`
}

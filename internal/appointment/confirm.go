package appointment

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

// ConfirmInput books an appointment as income.
type ConfirmInput struct {
	AppointmentID   string     `json:"appointmentId" validate:"required"`
	Amount          string     `json:"amount" validate:"required,money"`
	PaymentMethod   string     `json:"paymentMethod" validate:"required,oneof=cash card"`
	CustomerID      *string    `json:"customerId,omitempty"`
	TreatmentTypeID *string    `json:"treatmentTypeId,omitempty"`
	Notes           *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
	IncomeDate      *time.Time `json:"incomeDate,omitempty"`
}

// Confirm marks an appointment as confirmed and records its income entry.
//
// An existing live entry for the appointment is updated in place, so
// confirming twice never books the payment twice. The status change and the
// entry are committed together or not at all. The id of the entry is returned.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (string, error) {
	const op = "appointment.Confirm"

	in.Amount = strings.TrimSpace(in.Amount)
	in.CustomerID = blankToNil(in.CustomerID)
	in.TreatmentTypeID = blankToNil(in.TreatmentTypeID)
	in.Notes = blankToNil(in.Notes)
	if err := s.validate.Struct(in); err != nil {
		return "", apperror.Validation(op, validationMessage(err))
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return "", apperror.Validation(op, "Betrag ist ungültig")
	}

	var (
		entryID     string
		created     bool
		action      Action
		appointment *models.Appointment
	)

	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		appointments := s.appointments.WithTx(tx)
		income := s.income.WithTx(tx)

		a, err := appointments.GetByID(ctx, in.AppointmentID)
		if err != nil {
			return apperror.Database(op, err)
		}
		if a == nil {
			return apperror.NotFound(op, "Termin")
		}
		if a.Status == models.StatusDismissed {
			return apperror.Validation(op, transitionMessage(a.Status, ActionConfirm))
		}

		existing, err := income.GetByAppointmentID(ctx, a.ID)
		if err != nil {
			return apperror.Database(op, err)
		}

		var changes []models.FieldChange
		action = ActionConfirm
		if a.Status == models.StatusPending {
			ok, err := appointments.UpdateStatus(ctx, a.ID, []models.AppointmentStatus{models.StatusPending}, models.StatusConfirmed)
			if err != nil {
				return apperror.Database(op, err)
			}
			if !ok {
				return apperror.Validation(op, "Termin wurde zwischenzeitlich geändert")
			}
			changes = append(changes, fieldChange(models.FieldStatus, string(models.StatusPending), string(models.StatusConfirmed)))
		} else if existing != nil {
			action = ActionConfirmUpdate
		}

		if existing != nil {
			before := *existing
			existing.Amount = amount
			existing.PaymentMethod = in.PaymentMethod
			existing.CustomerID = in.CustomerID
			existing.TreatmentTypeID = in.TreatmentTypeID
			existing.Notes = in.Notes
			if in.IncomeDate != nil {
				existing.IncomeDate = in.IncomeDate.UTC()
			}
			if err := income.Update(ctx, existing); err != nil {
				return incomeError(op, err)
			}
			entryID = existing.ID
			changes = append(changes, incomeDiff(&before, existing)...)
		} else {
			entry := &models.IncomeEntry{
				Amount:          amount,
				PaymentMethod:   in.PaymentMethod,
				IncomeDate:      a.StartTime.UTC(),
				CustomerID:      in.CustomerID,
				TreatmentTypeID: in.TreatmentTypeID,
				AppointmentID:   &a.ID,
				Notes:           in.Notes,
			}
			if in.IncomeDate != nil {
				entry.IncomeDate = in.IncomeDate.UTC()
			}
			if err := income.Create(ctx, entry); err != nil {
				return incomeError(op, err)
			}
			entryID = entry.ID
			created = true
			changes = append(changes, incomeDiff(nil, entry)...)
		}

		if err := s.audit.WithTx(tx).Record(ctx, a.ID, string(action), changes); err != nil {
			return apperror.Database(op, err)
		}

		appointment, err = appointments.GetByID(ctx, a.ID)
		if err != nil {
			return apperror.Database(op, err)
		}
		return nil
	})
	if err != nil {
		return "", s.fail(op, in.AppointmentID, err)
	}

	logging.Log.Info("appointment confirmed",
		zap.String("appointmentID", in.AppointmentID),
		zap.String("incomeEntryID", entryID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("created", created),
	)

	incomeAction := "update"
	if created {
		incomeAction = "create"
	}
	s.broadcaster.AppointmentChanged(appointment, string(action))
	s.broadcaster.IncomeChanged(entryID, &appointment.ID, incomeAction)
	return entryID, nil
}

func incomeError(op string, err error) error {
	if storage.IsForeignKeyViolation(err) {
		return apperror.Validation(op, "Kundin oder Behandlung existiert nicht").Wrap(err)
	}
	return apperror.Database(op, err)
}

// incomeDiff lists the changed income fields. before is nil for new entries.
func incomeDiff(before, after *models.IncomeEntry) []models.FieldChange {
	if before == nil {
		before = &models.IncomeEntry{}
	}

	var changes []models.FieldChange
	add := func(field models.AuditField, from, to string) {
		if from != to {
			changes = append(changes, fieldChange(field, from, to))
		}
	}

	var fromAmount string
	if before.ID != "" {
		fromAmount = before.AmountString()
	}
	add(models.FieldAmount, fromAmount, after.AmountString())
	add(models.FieldPaymentMethod, before.PaymentMethod, after.PaymentMethod)
	add(models.FieldCustomerID, deref(before.CustomerID), deref(after.CustomerID))
	add(models.FieldTreatmentTypeID, deref(before.TreatmentTypeID), deref(after.TreatmentTypeID))
	add(models.FieldNotes, deref(before.Notes), deref(after.Notes))
	return changes
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

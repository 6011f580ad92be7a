package appointment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
	"github.com/lash-studio/backoffice/internal/websocket"
)

// MaxBulkDelete caps the number of ids accepted by BulkDelete.
const MaxBulkDelete = 500

// Service applies user actions to appointments and their income entries.
// Every mutation runs in one transaction together with its audit record.
type Service struct {
	db           *storage.DB
	appointments *storage.AppointmentRepository
	income       *storage.IncomeRepository
	catalog      *storage.CatalogRepository
	audit        *storage.AuditRepository
	broadcaster  *websocket.EventBroadcaster
	validate     *validator.Validate
}

// NewService creates an appointment service on db.
func NewService(db *storage.DB) *Service {
	return &Service{
		db:           db,
		appointments: storage.NewAppointmentRepository(db),
		income:       storage.NewIncomeRepository(db),
		catalog:      storage.NewCatalogRepository(db),
		audit:        storage.NewAuditRepository(db),
		validate:     newValidator(),
	}
}

// SetBroadcaster enables live change notifications.
func (s *Service) SetBroadcaster(b *websocket.EventBroadcaster) {
	s.broadcaster = b
}

// SetClock overrides the time source of all repositories. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.appointments.SetClock(now)
	s.income.SetClock(now)
	s.catalog.SetClock(now)
	s.audit.SetClock(now)
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, id string) (*models.Appointment, error) {
	const op = "appointment.Get"

	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Database(op, err)
	}
	if a == nil {
		return nil, apperror.NotFound(op, "Termin")
	}
	return a, nil
}

// List returns appointments matching filter.
func (s *Service) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	const op = "appointment.List"

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation(op, "Unbekannter Status")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperror.Validation(op, "Ungültige Seitenangabe")
	}

	appointments, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, apperror.Database(op, err)
	}
	if appointments == nil {
		appointments = []models.Appointment{}
	}
	return appointments, nil
}

// History returns the audit trail of an appointment, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]models.AuditEntry, error) {
	const op = "appointment.History"

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByAppointment(ctx, id)
	if err != nil {
		return nil, apperror.Database(op, err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

// Dismiss marks a pending appointment as not relevant for bookkeeping.
func (s *Service) Dismiss(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, "appointment.Dismiss", id, ActionDismiss)
}

// Revert returns a confirmed or dismissed appointment to pending. A linked
// income entry is left as it is and reused by the next Confirm.
func (s *Service) Revert(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, "appointment.Revert", id, ActionRevert)
}

// transition applies a status-changing action as one conditional update.
func (s *Service) transition(ctx context.Context, op, id string, action Action) (*models.Appointment, error) {
	var updated *models.Appointment

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		appointments := s.appointments.WithTx(tx)

		a, err := appointments.GetByID(ctx, id)
		if err != nil {
			return apperror.Database(op, err)
		}
		if a == nil {
			return apperror.NotFound(op, "Termin")
		}

		to, ok := Next(a.Status, action)
		if !ok {
			return apperror.Validation(op, transitionMessage(a.Status, action))
		}

		changed, err := appointments.UpdateStatus(ctx, id, []models.AppointmentStatus{a.Status}, to)
		if err != nil {
			return apperror.Database(op, err)
		}
		if !changed {
			return apperror.Validation(op, "Termin wurde zwischenzeitlich geändert")
		}

		changes := []models.FieldChange{fieldChange(models.FieldStatus, string(a.Status), string(to))}
		if a.ConfirmedAt != nil && to != models.StatusConfirmed {
			changes = append(changes, models.FieldChange{
				Field: models.FieldConfirmedAt,
				From:  ptr(a.ConfirmedAt.UTC().Format(time.RFC3339)),
			})
		}
		if err := s.audit.WithTx(tx).Record(ctx, id, string(action), changes); err != nil {
			return apperror.Database(op, err)
		}

		updated, err = appointments.GetByID(ctx, id)
		if err != nil {
			return apperror.Database(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, id, err)
	}

	logging.Log.Info("appointment status changed",
		zap.String("appointmentID", id),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
	)
	s.broadcaster.AppointmentChanged(updated, string(action))
	return updated, nil
}

// CancelInput is the payload of Cancel.
type CancelInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel flags an appointment as cancelled by the customer. The status is
// kept; cancelling again replaces the reason.
func (s *Service) Cancel(ctx context.Context, id string, in CancelInput) (*models.Appointment, error) {
	const op = "appointment.Cancel"

	in.Reason = strings.TrimSpace(in.Reason)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperror.Validation(op, validationMessage(err))
	}
	var reason *string
	if in.Reason != "" {
		reason = &in.Reason
	}

	return s.setCancelled(ctx, op, id, ActionCancel, reason)
}

// Uncancel clears the cancellation of an appointment.
func (s *Service) Uncancel(ctx context.Context, id string) (*models.Appointment, error) {
	return s.setCancelled(ctx, "appointment.Uncancel", id, ActionUncancel, nil)
}

func (s *Service) setCancelled(ctx context.Context, op, id string, action Action, reason *string) (*models.Appointment, error) {
	cancel := action == ActionCancel
	var updated *models.Appointment

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		appointments := s.appointments.WithTx(tx)

		a, err := appointments.GetByID(ctx, id)
		if err != nil {
			return apperror.Database(op, err)
		}
		if a == nil {
			return apperror.NotFound(op, "Termin")
		}
		if !cancel && !a.Cancelled {
			return apperror.Validation(op, "Termin ist nicht abgesagt")
		}

		if _, err := appointments.SetCancelled(ctx, id, cancel, reason); err != nil {
			return apperror.Database(op, err)
		}

		updated, err = appointments.GetByID(ctx, id)
		if err != nil {
			return apperror.Database(op, err)
		}

		changes := cancellationDiff(a, updated)
		if err := s.audit.WithTx(tx).Record(ctx, id, string(action), changes); err != nil {
			return apperror.Database(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, id, err)
	}

	logging.Log.Info("appointment cancellation changed",
		zap.String("appointmentID", id),
		zap.Bool("cancelled", updated.Cancelled),
	)
	s.broadcaster.AppointmentChanged(updated, string(action))
	return updated, nil
}

// BulkDeleteInput is the payload of BulkDelete.
type BulkDeleteInput struct {
	IDs []string `json:"ids" validate:"min=1,max=500,dive,required"`
}

// BulkDelete permanently removes appointments. Linked income entries survive
// without their appointment link. Unknown ids are ignored.
func (s *Service) BulkDelete(ctx context.Context, in BulkDeleteInput) (int, error) {
	const op = "appointment.BulkDelete"

	if err := s.validate.Struct(in); err != nil {
		return 0, apperror.Validation(op, validationMessage(err))
	}

	deleted, err := s.appointments.DeleteByIDs(ctx, in.IDs)
	if err != nil {
		return 0, s.fail(op, "", apperror.Database(op, err))
	}

	logging.Log.Info("appointments deleted", zap.Int("requested", len(in.IDs)), zap.Int("deleted", len(deleted)))
	for _, id := range deleted {
		s.broadcaster.AppointmentChanged(&models.Appointment{ID: id}, "delete")
	}
	return len(deleted), nil
}

// ListIncome returns live income entries with income date in [from, to).
func (s *Service) ListIncome(ctx context.Context, from, to *time.Time) ([]models.IncomeEntry, error) {
	const op = "appointment.ListIncome"

	if from != nil && to != nil && !from.Before(*to) {
		return nil, apperror.Validation(op, "Zeitraum ist ungültig")
	}
	entries, err := s.income.List(ctx, from, to)
	if err != nil {
		return nil, apperror.Database(op, err)
	}
	if entries == nil {
		entries = []models.IncomeEntry{}
	}
	return entries, nil
}

// DeleteIncome soft-deletes an income entry. The linked appointment keeps its
// status; confirming it again creates a fresh entry.
func (s *Service) DeleteIncome(ctx context.Context, id string) error {
	const op = "appointment.DeleteIncome"

	entry, err := s.income.GetByID(ctx, id)
	if err != nil {
		return apperror.Database(op, err)
	}
	if entry == nil || entry.DeletedAt != nil {
		return apperror.NotFound(op, "Einnahme")
	}

	if err := s.income.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperror.NotFound(op, "Einnahme")
		}
		return apperror.Database(op, err)
	}

	logging.Log.Info("income entry deleted", zap.String("incomeEntryID", id))
	s.broadcaster.IncomeChanged(id, entry.AppointmentID, "delete")
	return nil
}

// ListCustomers returns all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	customers, err := s.catalog.ListCustomers(ctx)
	if err != nil {
		return nil, apperror.Database("appointment.ListCustomers", err)
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, nil
}

// ListTreatmentTypes returns the active treatment types.
func (s *Service) ListTreatmentTypes(ctx context.Context) ([]models.TreatmentType, error) {
	types, err := s.catalog.ListTreatmentTypes(ctx)
	if err != nil {
		return nil, apperror.Database("appointment.ListTreatmentTypes", err)
	}
	if types == nil {
		types = []models.TreatmentType{}
	}
	return types, nil
}

// fail logs unexpected errors and makes sure the caller gets a categorized one.
func (s *Service) fail(op, id string, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(op, err)
	}

	switch appErr.Code {
	case apperror.CodeDatabase, apperror.CodeInternal:
		logging.Log.Error("appointment operation failed",
			zap.String("op", op), zap.String("appointmentID", id), zap.Error(err))
	default:
		logging.Log.Debug("appointment operation rejected",
			zap.String("op", op), zap.String("appointmentID", id), zap.String("reason", appErr.Message))
	}
	return appErr
}

func cancellationDiff(before, after *models.Appointment) []models.FieldChange {
	var changes []models.FieldChange
	add := func(field models.AuditField, from, to string) {
		if from != to {
			changes = append(changes, fieldChange(field, from, to))
		}
	}

	add(models.FieldCancelled, boolString(before.Cancelled), boolString(after.Cancelled))
	add(models.FieldCancelledReason, deref(before.CancelledReason), deref(after.CancelledReason))
	add(models.FieldCancelledAt, timeString(before.CancelledAt), timeString(after.CancelledAt))
	return changes
}

func fieldChange(field models.AuditField, from, to string) models.FieldChange {
	c := models.FieldChange{Field: field}
	if from != "" {
		c.From = ptr(from)
	}
	if to != "" {
		c.To = ptr(to)
	}
	return c
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

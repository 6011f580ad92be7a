package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lash-studio/backoffice/internal/api/middleware"
	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/appointment"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

const maxListLimit = 1000

// ListAppointments returns appointments filtered by status, cancellation and start time.
func ListAppointments(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := appointmentFilter(r, loc)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}

		appointments, err := svc.List(r.Context(), filter)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, appointments)
	}
}

func appointmentFilter(r *http.Request, loc *time.Location) (models.AppointmentFilter, error) {
	var (
		filter models.AppointmentFilter
		err    error
	)
	q := r.URL.Query()

	filter.Status = models.AppointmentStatus(strings.TrimSpace(q.Get("status")))
	if v := strings.TrimSpace(q.Get("cancelled")); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return filter, apperror.Validation("http", "Ungültiger Wert für cancelled")
		}
		filter.Cancelled = &b
	}
	if filter.From, err = parseTimeParam(r, "from", loc); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeParam(r, "to", loc); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseIntParam(r, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = parseIntParam(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// GetAppointment returns a single appointment.
func GetAppointment(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Get(r.Context(), pathID(r))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, a)
	}
}

// GetAppointmentHistory returns the audit trail of an appointment.
func GetAppointmentHistory(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.History(r.Context(), pathID(r))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, entries)
	}
}

type transitionFunc func(ctx context.Context, id string) (*models.Appointment, error)

func transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := fn(r.Context(), pathID(r))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, a)
	}
}

// DismissAppointment marks a pending appointment as dismissed.
func DismissAppointment(svc AppointmentService) http.HandlerFunc {
	return transition(svc.Dismiss)
}

// RevertAppointment moves a confirmed or dismissed appointment back to pending.
func RevertAppointment(svc AppointmentService) http.HandlerFunc {
	return transition(svc.Revert)
}

// UncancelAppointment clears a cancellation.
func UncancelAppointment(svc AppointmentService) http.HandlerFunc {
	return transition(svc.Uncancel)
}

// CancelAppointment flags an appointment as cancelled with an optional reason.
func CancelAppointment(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.CancelInput
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, err)
			return
		}

		a, err := svc.Cancel(r.Context(), pathID(r), req)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, a)
	}
}

type confirmRequest struct {
	Amount          flexAmount `json:"amount"`
	PaymentMethod   string     `json:"paymentMethod"`
	CustomerID      *string    `json:"customerId"`
	TreatmentTypeID *string    `json:"treatmentTypeId"`
	Notes           *string    `json:"notes"`
	IncomeDate      string     `json:"incomeDate"`
}

// ConfirmResponse is returned by a successful confirmation.
type ConfirmResponse struct {
	IncomeEntryID string `json:"incomeEntryId"`
}

// ConfirmAppointment books an appointment as income.
func ConfirmAppointment(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, err)
			return
		}

		in := appointment.ConfirmInput{
			AppointmentID:   pathID(r),
			Amount:          string(req.Amount),
			PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
			CustomerID:      req.CustomerID,
			TreatmentTypeID: req.TreatmentTypeID,
			Notes:           req.Notes,
		}
		if v := strings.TrimSpace(req.IncomeDate); v != "" {
			t, err := parseDate(v, loc)
			if err != nil {
				middleware.WriteError(w, apperror.Validation("http", "Ungültiges Datum für incomeDate"))
				return
			}
			in.IncomeDate = &t
		}

		id, err := svc.Confirm(r.Context(), in)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, ConfirmResponse{IncomeEntryID: id})
	}
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, v, loc)
}

// BulkDeleteResponse reports how many appointments were removed.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// BulkDeleteAppointments permanently removes the given appointments.
func BulkDeleteAppointments(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.BulkDeleteInput
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, err)
			return
		}

		n, err := svc.BulkDelete(r.Context(), req)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, BulkDeleteResponse{Deleted: n})
	}
}

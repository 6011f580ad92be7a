package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/appointment"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

// AppointmentService is the appointment and income API used by the handlers.
type AppointmentService interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error)
	History(ctx context.Context, id string) ([]models.AuditEntry, error)
	Dismiss(ctx context.Context, id string) (*models.Appointment, error)
	Revert(ctx context.Context, id string) (*models.Appointment, error)
	Cancel(ctx context.Context, id string, in appointment.CancelInput) (*models.Appointment, error)
	Uncancel(ctx context.Context, id string) (*models.Appointment, error)
	Confirm(ctx context.Context, in appointment.ConfirmInput) (string, error)
	BulkDelete(ctx context.Context, in appointment.BulkDeleteInput) (int, error)

	ListIncome(ctx context.Context, from, to *time.Time) ([]models.IncomeEntry, error)
	DeleteIncome(ctx context.Context, id string) error
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListTreatmentTypes(ctx context.Context) ([]models.TreatmentType, error)
}

// SyncService runs and reports calendar syncs.
type SyncService interface {
	IsConfigured() bool
	SyncFromOutlook(ctx context.Context) (*models.SyncResult, error)
	LatestStatus(ctx context.Context) (*models.SyncLog, error)
	ListLogs(ctx context.Context, limit int) ([]models.SyncLog, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

const (
	maxBodySize = 1 << 16
	dateLayout  = "2006-01-02"
)

var errBadRequest = apperror.Validation("http", "Ungültige Anfrage")

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest.Wrap(err)
	}
	return nil
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// parseTimeParam reads an RFC 3339 timestamp or a plain date. Dates are
// midnight in loc.
func parseTimeParam(r *http.Request, name string, loc *time.Location) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return nil, apperror.Newf(apperror.CodeValidation, "http", "Ungültiges Datum für %s", name)
	}
	return &t, nil
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperror.Newf(apperror.CodeValidation, "http", "Ungültige Zahl für %s", name)
	}
	return n, nil
}

// flexAmount accepts amounts sent as JSON string or number.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = flexAmount(n.String())
	return nil
}

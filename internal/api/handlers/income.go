package handlers

import (
	"net/http"
	"time"

	"github.com/lash-studio/backoffice/internal/api/middleware"
)

// ListIncome returns live income entries, optionally limited to [from, to).
func ListIncome(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := parseTimeParam(r, "from", loc)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		to, err := parseTimeParam(r, "to", loc)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}

		entries, err := svc.ListIncome(r.Context(), from, to)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, entries)
	}
}

// DeleteIncome soft-deletes an income entry.
func DeleteIncome(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteIncome(r.Context(), pathID(r)); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, nil)
	}
}

// ListCustomers returns all customers.
func ListCustomers(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := svc.ListCustomers(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, customers)
	}
}

// ListTreatmentTypes returns the active treatment types.
func ListTreatmentTypes(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListTreatmentTypes(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, types)
	}
}

// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lash-studio/backoffice/internal/api/handlers"
	"github.com/lash-studio/backoffice/internal/api/middleware"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/websocket"
)

// Services bundles what the router needs. Scheduler may be nil.
type Services struct {
	DB           *storage.DB
	Hub          *websocket.Hub
	Appointments handlers.AppointmentService
	Sync         handlers.SyncService
	NextSyncRun  func() *time.Time
	Location     *time.Location
	Version      string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(s.DB, s.Hub, s.Sync, s.Version)).Methods("GET")
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Calendar sync
	api.HandleFunc("/sync", handlers.SyncNow(s.Sync)).Methods("POST")
	api.HandleFunc("/sync/status", handlers.SyncStatus(s.Sync, s.NextSyncRun)).Methods("GET")
	api.HandleFunc("/sync/logs", handlers.ListSyncLogs(s.Sync)).Methods("GET")

	// Appointments
	svc := s.Appointments
	api.HandleFunc("/appointments", handlers.ListAppointments(svc, loc)).Methods("GET")
	api.HandleFunc("/appointments/bulk-delete", handlers.BulkDeleteAppointments(svc)).Methods("POST")
	api.HandleFunc("/appointments/{id}", handlers.GetAppointment(svc)).Methods("GET")
	api.HandleFunc("/appointments/{id}/history", handlers.GetAppointmentHistory(svc)).Methods("GET")
	api.HandleFunc("/appointments/{id}/dismiss", handlers.DismissAppointment(svc)).Methods("POST")
	api.HandleFunc("/appointments/{id}/cancel", handlers.CancelAppointment(svc)).Methods("POST")
	api.HandleFunc("/appointments/{id}/revert", handlers.RevertAppointment(svc)).Methods("POST")
	api.HandleFunc("/appointments/{id}/uncancel", handlers.UncancelAppointment(svc)).Methods("POST")
	api.HandleFunc("/appointments/{id}/confirm", handlers.ConfirmAppointment(svc, loc)).Methods("POST")

	// Income and catalog
	api.HandleFunc("/income", handlers.ListIncome(svc, loc)).Methods("GET")
	api.HandleFunc("/income/{id}", handlers.DeleteIncome(svc)).Methods("DELETE")
	api.HandleFunc("/customers", handlers.ListCustomers(svc)).Methods("GET")
	api.HandleFunc("/treatment-types", handlers.ListTreatmentTypes(svc)).Methods("GET")

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteFailure(w, http.StatusNotFound, "Endpunkt nicht gefunden")
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteFailure(w, http.StatusMethodNotAllowed, "Methode nicht erlaubt")
	})

	return r
}

// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	"github.com/lash-studio/backoffice/internal/api/middleware"
	"github.com/lash-studio/backoffice/internal/storage"
	ws "github.com/lash-studio/backoffice/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	DBConnected        bool   `json:"dbConnected"`
	CalendarConfigured bool   `json:"calendarConfigured"`
	WebSocketClients   int    `json:"websocketClients"`
	// Appointments counts rows per status.
	Appointments map[string]int `json:"appointments,omitempty"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB, hub *ws.Hub, sync SyncService, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		resp := HealthResponse{
			Status:      status,
			Version:     version,
			DBConnected: dbConnected,
		}
		if dbConnected {
			if counts, err := storage.NewAppointmentRepository(db).CountByStatus(r.Context()); err == nil {
				resp.Appointments = make(map[string]int, len(counts))
				for status, n := range counts {
					resp.Appointments[string(status)] = n
				}
			}
		}
		if sync != nil {
			resp.CalendarConfigured = sync.IsConfigured()
		}
		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}

		middleware.WriteJSON(w, code, resp)
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/lash-studio/backoffice/internal/api/middleware"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

// SyncNow runs a calendar sync and returns its counts.
func SyncNow(sync SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := sync.SyncFromOutlook(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// SyncStatusResponse describes the last sync run and the schedule.
type SyncStatusResponse struct {
	Configured bool            `json:"configured"`
	LastSync   *models.SyncLog `json:"lastSync"`
	NextRunAt  *time.Time      `json:"nextRunAt,omitempty"`
}

// SyncStatus reports the latest sync log. nextRun may be nil.
func SyncStatus(sync SyncService, nextRun func() *time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := sync.LatestStatus(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}

		resp := SyncStatusResponse{
			Configured: sync.IsConfigured(),
			LastSync:   latest,
		}
		if nextRun != nil {
			resp.NextRunAt = nextRun()
		}
		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}

// ListSyncLogs returns the most recent sync runs, newest first.
func ListSyncLogs(sync SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseIntParam(r, "limit", 20)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		if limit == 0 || limit > 200 {
			limit = 200
		}

		logs, err := sync.ListLogs(r.Context(), limit)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		if logs == nil {
			logs = []models.SyncLog{}
		}
		middleware.WriteJSON(w, http.StatusOK, logs)
	}
}

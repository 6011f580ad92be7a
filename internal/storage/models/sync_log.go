package models

import (
	"time"
)

// Sync log status constants
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusError      = "error"
	SyncStatusCancelled  = "cancelled"
)

// SyncLog records the outcome of one sync run.
type SyncLog struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"startedAt"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
	Status       string            `json:"status"`
	Imported     int               `json:"imported"`
	Updated      int               `json:"updated"`
	Deleted      int               `json:"deleted"`
	Failed       int               `json:"failed"`
	Skipped      int               `json:"skipped"`
	Total        int               `json:"total"`
	Message      *string           `json:"message,omitempty"`
	ErrorDetails *SyncErrorDetails `json:"errorDetails,omitempty"`
}

// SyncErrorDetails is stored as JSON alongside a failed run.
type SyncErrorDetails struct {
	Stage   string `json:"stage"`
	EventID string `json:"eventId,omitempty"`
	Cause   string `json:"cause"`
}

// Sync stages reported in SyncErrorDetails.
const (
	SyncStageFetch     = "fetch"
	SyncStageUpsert    = "upsert"
	SyncStageReconcile = "reconcile"
)

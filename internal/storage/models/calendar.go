package models

import (
	"time"
)

// CalendarEvent is one event as returned by a calendar source.
type CalendarEvent struct {
	ID          string    `json:"id"`
	ChangeKey   string    `json:"changeKey"`
	Subject     string    `json:"subject"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	BodyPreview string    `json:"bodyPreview,omitempty"`
}

// SyncResult contains the counts of one sync run.
type SyncResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
	// Skipped counts fetched events that needed no write.
	Skipped int `json:"skipped"`
}

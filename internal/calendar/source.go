// Package calendar fetches appointments from the studio calendar and keeps the
// appointment store in step with it.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lash-studio/backoffice/internal/config"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

// Source is a remote calendar the sync engine reads from.
type Source interface {
	// FetchEvents returns all events overlapping [start, end).
	FetchEvents(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error)
	// IsConfigured reports whether credentials or a feed URL are present.
	IsConfigured() bool
}

// NewSource builds the source selected by cfg.Calendar.Provider.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Calendar.Provider {
	case config.ProviderOutlook:
		o := cfg.Calendar.Outlook
		return NewOutlookSource(o, newHTTPClient(o.TimeoutSec)), nil
	case config.ProviderICS:
		ics := cfg.Calendar.ICS
		return NewICSSource(ics.URL, cfg.Location(), newHTTPClient(ics.TimeoutSec)), nil
	default:
		return nil, fmt.Errorf("unknown calendar provider %q", cfg.Calendar.Provider)
	}
}

func newHTTPClient(timeoutSec int) *http.Client {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	return &http.Client{
		Timeout: time.Duration(timeoutSec) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lash-studio/backoffice/internal/config"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

const (
	graphScope      = "https://graph.microsoft.com/.default"
	graphPageSize   = 100
	graphMaxPages   = 200
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
)

// OutlookSource reads a mailbox calendar through Microsoft Graph using the
// client-credentials flow.
type OutlookSource struct {
	cfg config.OutlookConfig
	// client attaches a cached bearer token to every Graph request.
	client *http.Client
}

// NewOutlookSource creates a Graph calendar source. httpClient carries both
// the token and the Graph requests.
func NewOutlookSource(cfg config.OutlookConfig, httpClient *http.Client) *OutlookSource {
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.TimeoutSec)
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", cfg.AuthBaseURL, url.PathEscape(cfg.TenantID)),
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	client := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	client.Timeout = httpClient.Timeout

	return &OutlookSource{cfg: cfg, client: client}
}

// IsConfigured reports whether all Graph credentials are present.
func (o *OutlookSource) IsConfigured() bool {
	return o.cfg.TenantID != "" && o.cfg.ClientID != "" &&
		o.cfg.ClientSecret != "" && o.cfg.UserID != ""
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID          string        `json:"id"`
	ChangeKey   string        `json:"changeKey"`
	Subject     string        `json:"subject"`
	BodyPreview string        `json:"bodyPreview"`
	IsCancelled bool          `json:"isCancelled"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
}

type graphPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// FetchEvents expands the calendar view for [start, end), following paging
// links. Events cancelled by the organizer are left out.
func (o *OutlookSource) FetchEvents(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$select", "id,changeKey,subject,start,end,location,bodyPreview,isCancelled")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprint(graphPageSize))
	next := fmt.Sprintf("%s/users/%s/calendarView?%s",
		o.cfg.GraphBaseURL, url.PathEscape(o.cfg.UserID), q.Encode())

	var events []models.CalendarEvent
	for page := 0; next != ""; page++ {
		if page >= graphMaxPages {
			return nil, fmt.Errorf("calendar view exceeded %d pages", graphMaxPages)
		}

		p, err := o.getPage(ctx, next)
		if err != nil {
			return nil, err
		}

		for _, ge := range p.Value {
			if ge.IsCancelled {
				continue
			}
			ev, err := ge.toModel()
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", ge.ID, err)
			}
			events = append(events, ev)
		}
		next = p.NextLink
	}

	logging.Log.Debug("outlook calendar fetched", zap.Int("events", len(events)))
	return events, nil
}

func (o *OutlookSource) getPage(ctx context.Context, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("graph", resp)
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding calendar view: %w", err)
	}
	return &page, nil
}

func (ge graphEvent) toModel() (models.CalendarEvent, error) {
	start, err := ge.Start.parse()
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("parsing start: %w", err)
	}
	end, err := ge.End.parse()
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("parsing end: %w", err)
	}

	return models.CalendarEvent{
		ID:          ge.ID,
		ChangeKey:   ge.ChangeKey,
		Subject:     ge.Subject,
		Start:       start,
		End:         end,
		Location:    strings.TrimSpace(ge.Location.DisplayName),
		BodyPreview: strings.TrimSpace(ge.BodyPreview),
	}, nil
}

// parse reads Graph's zone-less timestamp in the zone it names. Prefer
// asks for UTC, but Graph may still answer in the mailbox zone.
func (d graphDateTime) parse() (time.Time, error) {
	loc := time.UTC
	if d.TimeZone != "" && !strings.EqualFold(d.TimeZone, "UTC") {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphTimeLayout, d.DateTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func apiError(kind string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s API error (status %d): %s", kind, resp.StatusCode, strings.TrimSpace(string(body)))
}

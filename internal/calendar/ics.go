package calendar

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

const (
	maxOccurrencesPerSeries = 5000
	maxFeedSize             = 16 << 20
)

// ICSSource reads appointments from an ICS feed. Recurring series are
// expanded into one event per occurrence with id "<UID>/<RFC3339 start>".
type ICSSource struct {
	url        string
	loc        *time.Location
	httpClient *http.Client
	maxBytes   int64
}

// NewICSSource creates a feed source. Floating times are read in loc.
func NewICSSource(feedURL string, loc *time.Location, httpClient *http.Client) *ICSSource {
	if loc == nil {
		loc = time.UTC
	}
	if httpClient == nil {
		httpClient = newHTTPClient(30)
	}
	return &ICSSource{url: feedURL, loc: loc, httpClient: httpClient, maxBytes: maxFeedSize}
}

// IsConfigured reports whether a feed URL is set.
func (s *ICSSource) IsConfigured() bool {
	return strings.TrimSpace(s.url) != ""
}

// FetchEvents downloads the feed and returns events overlapping [start, end).
func (s *ICSSource) FetchEvents(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("ics", resp)
	}

	// A truncated feed would make reconcile dismiss the missing tail.
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("calendar feed exceeds %d bytes", s.maxBytes)
	}

	events, err := ParseICS(body, s.loc, start, end)
	if err != nil {
		return nil, err
	}

	logging.Log.Debug("ics calendar fetched",
		zap.String("url", redactURL(s.url)), zap.Int("events", len(events)))
	return events, nil
}

type vevent struct {
	uid        string
	summary    string
	location   string
	desc       string
	start      time.Time
	end        time.Time
	rrule      string
	exdates    []time.Time
	recurrence *time.Time
	version    string
	cancelled  bool
}

// ParseICS parses an ICS payload and expands it into events overlapping
// [rangeStart, rangeEnd). Cancelled and malformed VEVENTs are skipped.
func ParseICS(body []byte, loc *time.Location, rangeStart, rangeEnd time.Time) ([]models.CalendarEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing ICS: %w", err)
	}

	var (
		bases     []vevent
		overrides = make(map[string]map[int64]vevent)
	)
	for _, ve := range cal.Events() {
		ev, err := readVEvent(ve, loc)
		if err != nil {
			logging.Log.Warn("skipping invalid VEVENT", zap.Error(err))
			continue
		}
		if ev.recurrence != nil {
			if overrides[ev.uid] == nil {
				overrides[ev.uid] = make(map[int64]vevent)
			}
			overrides[ev.uid][ev.recurrence.Unix()] = ev
			continue
		}
		if !ev.cancelled {
			bases = append(bases, ev)
		}
	}

	var out []models.CalendarEvent
	for _, ev := range bases {
		if ev.rrule == "" {
			if overlaps(ev.start, ev.end, rangeStart, rangeEnd) {
				out = append(out, ev.toModel(ev.uid))
			}
			continue
		}
		out = append(out, expandSeries(ev, overrides[ev.uid], rangeStart, rangeEnd)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func readVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = uid.Value
	ev.cancelled = strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED")

	ev.summary = propValue(ve, ical.ComponentPropertySummary)
	ev.location = propValue(ve, ical.ComponentPropertyLocation)
	ev.desc = propValue(ve, ical.ComponentPropertyDescription)

	start, err := eventTime(ve, ical.ComponentPropertyDtStart, loc)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.uid, err)
	}
	ev.start = start

	ev.end, err = eventTime(ve, ical.ComponentPropertyDtEnd, loc)
	if err != nil || ev.end.Before(ev.start) {
		ev.end = ev.start
	}

	ev.rrule = propValue(ve, ical.ComponentPropertyRrule)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), paramValue(p.ICalParameters, "TZID"), loc); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, paramValue(p.ICalParameters, "TZID"), loc); err == nil {
			ev.recurrence = &t
		}
	}

	ev.version = strings.Join([]string{
		propValue(ve, ical.ComponentPropertySequence),
		propValue(ve, ical.ComponentPropertyLastModified),
	}, "|")

	return ev, nil
}

// expandSeries produces the occurrences of a recurring event inside the range,
// replacing instances that have a RECURRENCE-ID override.
func expandSeries(ev vevent, overrides map[int64]vevent, rangeStart, rangeEnd time.Time) []models.CalendarEvent {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		logging.Log.Warn("invalid RRULE", zap.String("uid", ev.uid), zap.String("rrule", ev.rrule), zap.Error(err))
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	duration := ev.end.Sub(ev.start)
	// Include occurrences that started before the range but still run into it.
	starts := set.Between(rangeStart.Add(-duration).In(ev.start.Location()), rangeEnd.In(ev.start.Location()), true)
	if len(starts) > maxOccurrencesPerSeries {
		logging.Log.Warn("truncating recurring series", zap.String("uid", ev.uid), zap.Int("cap", maxOccurrencesPerSeries))
		starts = starts[:maxOccurrencesPerSeries]
	}

	var out []models.CalendarEvent
	for _, occStart := range starts {
		id := ev.uid + "/" + occStart.UTC().Format(time.RFC3339)
		occ := ev
		occ.start = occStart
		occ.end = occStart.Add(duration)
		if o, ok := overrides[occStart.Unix()]; ok {
			if o.cancelled {
				continue
			}
			occ = o
		}
		if !overlaps(occ.start, occ.end, rangeStart, rangeEnd) {
			continue
		}
		out = append(out, occ.toModel(id))
	}
	return out
}

func (ev vevent) toModel(id string) models.CalendarEvent {
	return models.CalendarEvent{
		ID:          id,
		ChangeKey:   ev.changeKey(),
		Subject:     ev.summary,
		Start:       ev.start.UTC(),
		End:         ev.end.UTC(),
		Location:    ev.location,
		BodyPreview: preview(ev.desc),
	}
}

// changeKey fingerprints the fields a studio owner can edit. DTSTAMP is left
// out because many servers set it to the export time.
func (ev vevent) changeKey() string {
	h := sha256.New()
	for _, part := range []string{
		ev.version, ev.summary, ev.location, ev.desc,
		ev.start.UTC().Format(time.RFC3339), ev.end.UTC().Format(time.RFC3339),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func eventTime(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, errors.New("missing")
	}
	return parseICSTime(p.Value, paramValue(p.ICalParameters, "TZID"), loc)
}

// parseICSTime handles UTC, zoned, floating and date-only values.
func parseICSTime(v, tzid string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	loc := fallback
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func paramValue(params map[string][]string, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// preview mirrors Graph's bodyPreview: the first 255 characters.
func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 255 {
		return string(r[:255])
	}
	return s
}

func redactURL(raw string) string {
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i] + "?..."
	}
	if n := len(raw); n > 48 {
		return raw[:24] + "..." + raw[n-12:]
	}
	return raw
}

package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
	"github.com/lash-studio/backoffice/internal/storage/storagetest"
)

type fakeSource struct {
	events     []models.CalendarEvent
	err        error
	configured bool
	calls      int

	// When gate is set, FetchEvents signals entered and waits for gate to
	// close or ctx to end.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSource) block() {
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
}

func (f *fakeSource) IsConfigured() bool { return f.configured }

func (f *fakeSource) FetchEvents(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	f.calls++
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.CalendarEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
)

type syncFixture struct {
	source       *fakeSource
	service      *SyncService
	appointments *storage.AppointmentRepository
	logs         *storage.SyncLogRepository
	audit        *storage.AuditRepository
}

func newSyncFixture(t *testing.T, events ...models.CalendarEvent) *syncFixture {
	t.Helper()

	prev := logging.Log
	logging.Set(zaptest.NewLogger(t))
	t.Cleanup(func() { logging.Set(prev) })

	db := storagetest.NewDB(t)
	f := &syncFixture{
		source:       &fakeSource{events: events, configured: true},
		appointments: storage.NewAppointmentRepository(db),
		logs:         storage.NewSyncLogRepository(db),
		audit:        storage.NewAuditRepository(db),
	}
	f.service = NewSyncService(f.source, f.appointments, f.logs, f.audit, windowStart, windowEnd)
	return f
}

func event(id, key, subject string, day int) models.CalendarEvent {
	start := time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC)
	return models.CalendarEvent{
		ID:        id,
		ChangeKey: key,
		Subject:   subject,
		Start:     start,
		End:       start.Add(time.Hour),
	}
}

func wantResult(t *testing.T, got *models.SyncResult, imported, updated, deleted, total int) {
	t.Helper()
	if got.Imported != imported || got.Updated != updated || got.Deleted != deleted || got.Total != total {
		t.Errorf("result = %+v, want {imported:%d updated:%d deleted:%d total:%d}",
			*got, imported, updated, deleted, total)
	}
}

func TestSyncImportsNewEvents(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1))

	result, err := f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatalf("SyncFromOutlook() error = %v", err)
	}
	wantResult(t, result, 1, 0, 0, 1)

	a, err := f.appointments.GetByExternalID(ctx, "evt-1")
	if err != nil || a == nil {
		t.Fatalf("appointment not imported: %v", err)
	}
	if a.Status != models.StatusPending || a.Subject != "Lash Lift" {
		t.Errorf("imported row = %+v", a)
	}

	latest, _ := f.service.LatestStatus(ctx)
	if latest == nil || latest.Status != models.SyncStatusSuccess || latest.Imported != 1 {
		t.Fatalf("sync log = %+v", latest)
	}
	if latest.Message == nil || *latest.Message != "1 neu, 0 aktualisiert, 0 entfernt (1 Termine abgerufen)" {
		t.Errorf("sync log message = %v", latest.Message)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1), event("evt-2", "k1", "Brow Lift", 2))

	if _, err := f.service.SyncFromOutlook(ctx); err != nil {
		t.Fatal(err)
	}
	result, err := f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 0, 0, 0, 2)
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}

	all, _ := f.appointments.List(ctx, models.AppointmentFilter{})
	if len(all) != 2 {
		t.Errorf("got %d appointments, want 2", len(all))
	}
}

func TestSyncUpdatesPendingOnChangeKey(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1))

	if _, err := f.service.SyncFromOutlook(ctx); err != nil {
		t.Fatal(err)
	}
	f.source.events = []models.CalendarEvent{event("evt-1", "k2", "Lash Lift + Tint", 1)}

	result, err := f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 0, 1, 0, 1)

	a, _ := f.appointments.GetByExternalID(ctx, "evt-1")
	if a.Subject != "Lash Lift + Tint" || a.ChangeKey != "k2" {
		t.Errorf("row not updated: %+v", a)
	}

	history, _ := f.audit.ListByAppointment(ctx, a.ID)
	if len(history) != 2 || history[1].Action != ActionSyncUpdate {
		t.Fatalf("history = %+v", history)
	}
	c := history[1].Changes
	if len(c) != 1 || c[0].Field != models.FieldSubject || *c[0].To != "Lash Lift + Tint" {
		t.Errorf("update diff = %+v", c)
	}
}

func TestSyncNeverTouchesConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1))

	if _, err := f.service.SyncFromOutlook(ctx); err != nil {
		t.Fatal(err)
	}
	a, _ := f.appointments.GetByExternalID(ctx, "evt-1")
	if ok, err := f.appointments.UpdateStatus(ctx, a.ID, []models.AppointmentStatus{models.StatusPending}, models.StatusConfirmed); err != nil || !ok {
		t.Fatalf("confirm = %v, %v", ok, err)
	}

	f.source.events = []models.CalendarEvent{event("evt-1", "k2", "Renamed", 4)}
	result, err := f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 0, 0, 0, 1)

	got, _ := f.appointments.GetByID(ctx, a.ID)
	if got.Subject != "Lash Lift" || got.ChangeKey != "k1" || got.Status != models.StatusConfirmed {
		t.Errorf("confirmed appointment changed by sync: %+v", got)
	}
}

func TestSyncDismissesVanishedPending(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("E1", "k1", "Lash Lift", 1), event("E2", "k1", "Brow Lift", 2))

	if _, err := f.service.SyncFromOutlook(ctx); err != nil {
		t.Fatal(err)
	}
	e2, _ := f.appointments.GetByExternalID(ctx, "E2")
	if _, err := f.appointments.UpdateStatus(ctx, e2.ID, []models.AppointmentStatus{models.StatusPending}, models.StatusConfirmed); err != nil {
		t.Fatal(err)
	}

	f.source.events = nil
	result, err := f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 0, 0, 1, 0)

	e1, _ := f.appointments.GetByExternalID(ctx, "E1")
	if e1.Status != models.StatusDismissed {
		t.Errorf("E1 status = %s, want dismissed", e1.Status)
	}
	e2, _ = f.appointments.GetByExternalID(ctx, "E2")
	if e2.Status != models.StatusConfirmed {
		t.Errorf("E2 status = %s, want confirmed", e2.Status)
	}

	// A dismissed row whose event reappears stays dismissed.
	f.source.events = []models.CalendarEvent{event("E1", "k2", "Lash Lift", 1)}
	result, err = f.service.SyncFromOutlook(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 0, 0, 0, 1)
}

func TestSyncSkipsDuplicateAndEmptyIDs(t *testing.T) {
	f := newSyncFixture(t,
		event("evt-1", "k1", "Lash Lift", 1),
		event("evt-1", "k1", "Lash Lift", 1),
		event("", "k1", "No id", 2),
	)

	result, err := f.service.SyncFromOutlook(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	wantResult(t, result, 1, 0, 0, 3)
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}
}

func TestSyncNotConfigured(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.source.configured = false

	_, err := f.service.SyncFromOutlook(ctx)
	if apperror.CodeOf(err) != apperror.CodeValidation {
		t.Fatalf("error = %v, want validation error", err)
	}
	if f.source.calls != 0 {
		t.Error("unconfigured source was called")
	}
	if latest, _ := f.service.LatestStatus(ctx); latest != nil {
		t.Errorf("sync log written for unconfigured source: %+v", latest)
	}
}

func TestSyncFetchErrorIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.source.err = errors.New("graph API error (status 503)")

	_, err := f.service.SyncFromOutlook(ctx)
	if apperror.CodeOf(err) != apperror.CodeInternal {
		t.Fatalf("error = %v, want internal error", err)
	}
	if apperror.MessageOf(err) != "Kalender konnte nicht abgerufen werden" {
		t.Errorf("message = %q", apperror.MessageOf(err))
	}

	latest, _ := f.service.LatestStatus(ctx)
	if latest == nil || latest.Status != models.SyncStatusError || latest.FinishedAt == nil {
		t.Fatalf("sync log = %+v", latest)
	}
	if latest.ErrorDetails == nil || latest.ErrorDetails.Stage != models.SyncStageFetch {
		t.Errorf("error details = %+v", latest.ErrorDetails)
	}
}

func TestSyncCancelledFetchIsLoggedAsCancelled(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1))
	f.source.err = context.Canceled

	if _, err := f.service.SyncFromOutlook(ctx); err == nil {
		t.Fatal("expected error for cancelled fetch")
	}

	logs, _ := f.service.ListLogs(ctx, 5)
	if len(logs) != 1 || logs[0].Status != models.SyncStatusCancelled {
		t.Errorf("sync logs = %+v, want one cancelled entry", logs)
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	f := newSyncFixture(t, event("evt-1", "k1", "Lash Lift", 1))
	f.source.block()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.service.SyncFromOutlook(ctx)
		done <- err
	}()
	<-f.source.entered

	_, err := f.service.SyncFromOutlook(ctx)
	if apperror.CodeOf(err) != apperror.CodeValidation || apperror.MessageOf(err) != "Synchronisierung läuft bereits" {
		t.Errorf("second sync error = %v, want running validation error", err)
	}

	close(f.source.gate)
	if err := <-done; err != nil {
		t.Fatalf("first sync error = %v", err)
	}

	logs, _ := f.service.ListLogs(ctx, 5)
	if len(logs) != 1 || logs[0].Status != models.SyncStatusSuccess {
		t.Errorf("sync logs = %+v, want one successful entry", logs)
	}
}

func TestSummary(t *testing.T) {
	got := Summary(models.SyncResult{Imported: 2, Updated: 1, Deleted: 0, Total: 7})
	want := "2 neu, 1 aktualisiert, 0 entfernt (7 Termine abgerufen)"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

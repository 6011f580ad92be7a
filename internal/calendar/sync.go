package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/storage/models"
	"github.com/lash-studio/backoffice/internal/websocket"
)

// Audit actions written by the sync engine.
const (
	ActionSyncImport  = "sync_import"
	ActionSyncUpdate  = "sync_update"
	ActionSyncDismiss = "sync_dismiss"
)

// SyncService reconciles the appointment store with the remote calendar.
//
// A run is not transactional. Each row write is a single conditional
// statement, so a failed run can simply be repeated.
type SyncService struct {
	source       Source
	appointments *storage.AppointmentRepository
	logs         *storage.SyncLogRepository
	audit        *storage.AuditRepository
	broadcaster  *websocket.EventBroadcaster

	windowStart time.Time
	windowEnd   time.Time

	running atomic.Bool
}

// NewSyncService creates a sync service for the fixed window [windowStart, windowEnd).
func NewSyncService(
	source Source,
	appointments *storage.AppointmentRepository,
	logs *storage.SyncLogRepository,
	audit *storage.AuditRepository,
	windowStart, windowEnd time.Time,
) *SyncService {
	return &SyncService{
		source:       source,
		appointments: appointments,
		logs:         logs,
		audit:        audit,
		windowStart:  windowStart,
		windowEnd:    windowEnd,
	}
}

// SetBroadcaster enables live sync notifications.
func (s *SyncService) SetBroadcaster(b *websocket.EventBroadcaster) {
	s.broadcaster = b
}

// IsConfigured reports whether the calendar source has credentials.
func (s *SyncService) IsConfigured() bool {
	return s.source.IsConfigured()
}

// syncError carries the stage a run failed in for the sync log.
type syncError struct {
	stage   string
	eventID string
	err     error
}

func (e *syncError) Error() string { return e.err.Error() }
func (e *syncError) Unwrap() error { return e.err }

// SyncFromOutlook pulls the calendar window and reconciles the appointment
// store with it. Unconfigured sources fail with a validation error before
// anything is written.
func (s *SyncService) SyncFromOutlook(ctx context.Context) (*models.SyncResult, error) {
	const op = "calendar.SyncFromOutlook"

	if !s.source.IsConfigured() {
		return nil, apperror.Validation(op, "Kalender-Integration ist nicht konfiguriert")
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperror.Validation(op, "Synchronisierung läuft bereits")
	}
	defer s.running.Store(false)

	entry, err := s.logs.Start(ctx)
	if err != nil {
		logging.Log.Error("sync log could not be started", zap.Error(err))
		return nil, apperror.Database(op, err)
	}
	s.broadcaster.SyncStarted()

	started := time.Now()
	result := &models.SyncResult{}
	runErr := s.run(ctx, result)

	// The log must be finalized even if the caller went away.
	s.finish(context.WithoutCancel(ctx), entry, result, runErr)

	if runErr != nil {
		appErr := classify(op, runErr)
		logging.Log.Error("calendar sync failed",
			zap.String("syncLogID", entry.ID),
			zap.Int("imported", result.Imported),
			zap.Int("updated", result.Updated),
			zap.Error(runErr),
		)
		s.broadcaster.SyncFailed(appErr)
		return nil, appErr
	}

	logging.Log.Info("calendar sync completed",
		zap.String("syncLogID", entry.ID),
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", result.Skipped),
		zap.Int("total", result.Total),
		zap.Duration("took", time.Since(started)),
	)
	s.broadcaster.SyncCompleted(*result)
	return result, nil
}

func (s *SyncService) run(ctx context.Context, result *models.SyncResult) error {
	events, err := s.source.FetchEvents(ctx, s.windowStart, s.windowEnd)
	if err != nil {
		return &syncError{stage: models.SyncStageFetch, err: err}
	}
	result.Total = len(events)

	seen := make(map[string]bool, len(events))
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return &syncError{stage: models.SyncStageUpsert, err: err}
		}
		if event.ID == "" || seen[event.ID] {
			result.Skipped++
			continue
		}
		seen[event.ID] = true

		if err := s.upsert(ctx, event, result); err != nil {
			return &syncError{stage: models.SyncStageUpsert, eventID: event.ID, err: err}
		}
	}

	if err := s.reconcile(ctx, seen, result); err != nil {
		return &syncError{stage: models.SyncStageReconcile, err: err}
	}
	return nil
}

// upsert applies one fetched event. Rows that are no longer pending belong to
// the studio and are never touched.
func (s *SyncService) upsert(ctx context.Context, event models.CalendarEvent, result *models.SyncResult) error {
	existing, err := s.appointments.GetByExternalID(ctx, event.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		a, created, err := s.appointments.InsertFromEvent(ctx, event)
		if err != nil {
			return err
		}
		if !created {
			// Inserted concurrently by another run.
			result.Skipped++
			return nil
		}
		result.Imported++
		s.record(ctx, a.ID, ActionSyncImport, nil)
		return nil
	}

	if !existing.IsPending() || existing.ChangeKey == event.ChangeKey {
		result.Skipped++
		return nil
	}

	updated, err := s.appointments.UpdateFromEvent(ctx, existing.ID, event)
	if err != nil {
		return err
	}
	if !updated {
		// Triaged between our read and write.
		result.Skipped++
		return nil
	}
	result.Updated++
	s.record(ctx, existing.ID, ActionSyncUpdate, eventDiff(existing, event))
	return nil
}

// reconcile dismisses pending appointments whose event vanished upstream.
func (s *SyncService) reconcile(ctx context.Context, seen map[string]bool, result *models.SyncResult) error {
	pending, err := s.appointments.ListPendingExternalIDs(ctx)
	if err != nil {
		return err
	}

	for externalID, id := range pending {
		if seen[externalID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		dismissed, err := s.appointments.DismissIfPending(ctx, id)
		if err != nil {
			return fmt.Errorf("dismissing %s: %w", id, err)
		}
		if dismissed {
			result.Deleted++
			s.record(ctx, id, ActionSyncDismiss, []models.FieldChange{
				statusChange(models.StatusPending, models.StatusDismissed),
			})
		}
	}
	return nil
}

func (s *SyncService) finish(ctx context.Context, entry *models.SyncLog, result *models.SyncResult, runErr error) {
	entry.Imported = result.Imported
	entry.Updated = result.Updated
	entry.Deleted = result.Deleted
	entry.Skipped = result.Skipped
	entry.Total = result.Total

	var msg string
	switch {
	case runErr == nil:
		entry.Status = models.SyncStatusSuccess
		msg = Summary(*result)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		entry.Status = models.SyncStatusCancelled
		msg = "Synchronisierung abgebrochen"
	default:
		entry.Status = models.SyncStatusError
		entry.Failed = 1
		msg = runErr.Error()
		details := &models.SyncErrorDetails{Cause: runErr.Error()}
		var se *syncError
		if errors.As(runErr, &se) {
			details.Stage = se.stage
			details.EventID = se.eventID
		}
		entry.ErrorDetails = details
	}
	entry.Message = &msg

	if err := s.logs.Finish(ctx, entry); err != nil {
		logging.Log.Error("sync log could not be finalized", zap.String("syncLogID", entry.ID), zap.Error(err))
	}
}

// record writes an audit entry. History is best effort and never fails a sync.
func (s *SyncService) record(ctx context.Context, appointmentID, action string, changes []models.FieldChange) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, appointmentID, action, changes); err != nil {
		logging.Log.Warn("audit entry not written",
			zap.String("appointmentID", appointmentID), zap.String("action", action), zap.Error(err))
	}
}

// LatestStatus returns the most recent sync log, nil if sync never ran.
func (s *SyncService) LatestStatus(ctx context.Context) (*models.SyncLog, error) {
	entry, err := s.logs.Latest(ctx)
	if err != nil {
		return nil, apperror.Database("calendar.LatestStatus", err)
	}
	return entry, nil
}

// ListLogs returns up to limit recent sync logs, newest first.
func (s *SyncService) ListLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	logs, err := s.logs.List(ctx, limit)
	if err != nil {
		return nil, apperror.Database("calendar.ListLogs", err)
	}
	return logs, nil
}

// Summary renders the human-readable counts stored in the sync log.
func Summary(r models.SyncResult) string {
	return fmt.Sprintf("%d neu, %d aktualisiert, %d entfernt (%d Termine abgerufen)",
		r.Imported, r.Updated, r.Deleted, r.Total)
}

func classify(op string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	var se *syncError
	if errors.As(err, &se) && se.stage == models.SyncStageFetch {
		e := apperror.Internal(op, err)
		e.Message = "Kalender konnte nicht abgerufen werden"
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e := apperror.Internal(op, err)
		e.Message = "Synchronisierung abgebrochen"
		return e
	}
	return apperror.Database(op, err)
}

func eventDiff(a *models.Appointment, e models.CalendarEvent) []models.FieldChange {
	var changes []models.FieldChange
	add := func(field models.AuditField, from, to string) {
		if from != to {
			changes = append(changes, models.FieldChange{Field: field, From: strPtr(from), To: strPtr(to)})
		}
	}

	add(models.FieldSubject, a.Subject, e.Subject)
	add(models.FieldStartTime, a.StartTime.UTC().Format(time.RFC3339), e.Start.UTC().Format(time.RFC3339))
	add(models.FieldEndTime, a.EndTime.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
	add(models.FieldLocation, deref(a.Location), e.Location)
	add(models.FieldBodyPreview, deref(a.BodyPreview), e.BodyPreview)
	return changes
}

func statusChange(from, to models.AppointmentStatus) models.FieldChange {
	return models.FieldChange{Field: models.FieldStatus, From: strPtr(string(from)), To: strPtr(string(to))}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

const appointmentColumns = `
	id, external_id, change_key, subject, start_time, end_time, location, body_preview,
	status, confirmed_at, cancelled, cancelled_reason, cancelled_at,
	imported_at, last_sync_at, created_at, updated_at`

// AppointmentRepository provides data access for appointments.
//
// Every state-changing method is a single conditional UPDATE so that the
// expected current state is checked and written atomically. The returned
// bool reports whether a row was changed.
type AppointmentRepository struct {
	BaseRepository
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *DB) *AppointmentRepository {
	return &AppointmentRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose queries run inside tx.
func (r *AppointmentRepository) WithTx(tx *sql.Tx) *AppointmentRepository {
	return &AppointmentRepository{BaseRepository: r.BaseRepository.withTx(tx)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s rowScanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	var status string
	err := s.Scan(
		&a.ID, &a.ExternalID, &a.ChangeKey, &a.Subject, &a.StartTime, &a.EndTime,
		&a.Location, &a.BodyPreview,
		&status, &a.ConfirmedAt, &a.Cancelled, &a.CancelledReason, &a.CancelledAt,
		&a.ImportedAt, &a.LastSyncAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = models.AppointmentStatus(status)
	return a, nil
}

// InsertFromEvent creates a pending appointment for a calendar event unless a
// row with the same external id already exists.
func (r *AppointmentRepository) InsertFromEvent(ctx context.Context, event models.CalendarEvent) (*models.Appointment, bool, error) {
	now := r.Now()
	a := &models.Appointment{
		ID:          GenerateID(),
		ExternalID:  event.ID,
		ChangeKey:   event.ChangeKey,
		Subject:     event.Subject,
		StartTime:   event.Start.UTC(),
		EndTime:     event.End.UTC(),
		Location:    optional(event.Location),
		BodyPreview: optional(event.BodyPreview),
		Status:      models.StatusPending,
		ImportedAt:  now,
		LastSyncAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO appointments (
			id, external_id, change_key, subject, start_time, end_time, location, body_preview,
			status, cancelled, imported_at, last_sync_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
	`,
		a.ID, a.ExternalID, a.ChangeKey, a.Subject, a.StartTime, a.EndTime,
		nullString(a.Location), nullString(a.BodyPreview),
		string(a.Status), a.ImportedAt, a.LastSyncAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting appointment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("inserting appointment: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return a, true, nil
}

// GetByID retrieves an appointment by its ID. It returns nil, nil if absent.
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := scanAppointment(r.Q().QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying appointment: %w", err)
	}
	return a, nil
}

// GetByExternalID retrieves an appointment by its calendar event id.
func (r *AppointmentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Appointment, error) {
	a, err := scanAppointment(r.Q().QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE external_id = ?`, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying appointment by external id: %w", err)
	}
	return a, nil
}

// List retrieves appointments matching filter, ordered by start time.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Cancelled != nil {
		where = append(where, "cancelled = ?")
		args = append(args, *filter.Cancelled)
	}
	if filter.From != nil {
		where = append(where, "start_time >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "start_time < ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.Q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying appointments: %w", err)
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		appointments = append(appointments, *a)
	}

	return appointments, rows.Err()
}

// ListPendingExternalIDs maps external id to internal id for every pending row.
func (r *AppointmentRepository) ListPendingExternalIDs(ctx context.Context) (map[string]string, error) {
	rows, err := r.Q().QueryContext(ctx,
		`SELECT id, external_id FROM appointments WHERE status = ?`, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("querying pending appointments: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string)
	for rows.Next() {
		var id, externalID string
		if err := rows.Scan(&id, &externalID); err != nil {
			return nil, fmt.Errorf("scanning pending appointment: %w", err)
		}
		ids[externalID] = id
	}

	return ids, rows.Err()
}

// UpdateFromEvent overwrites the calendar-owned fields of a pending row.
func (r *AppointmentRepository) UpdateFromEvent(ctx context.Context, id string, event models.CalendarEvent) (bool, error) {
	now := r.Now()
	result, err := r.Q().ExecContext(ctx, `
		UPDATE appointments SET
			change_key = ?, subject = ?, start_time = ?, end_time = ?,
			location = ?, body_preview = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		event.ChangeKey, event.Subject, event.Start.UTC(), event.End.UTC(),
		nullString(optional(event.Location)), nullString(optional(event.BodyPreview)),
		now, now, id, string(models.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("updating appointment from calendar: %w", err)
	}
	return affected(result)
}

// DismissIfPending dismisses a pending row during reconciliation.
func (r *AppointmentRepository) DismissIfPending(ctx context.Context, id string) (bool, error) {
	now := r.Now()
	result, err := r.Q().ExecContext(ctx, `
		UPDATE appointments SET status = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusDismissed), now, now, id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("dismissing appointment: %w", err)
	}
	return affected(result)
}

// UpdateStatus moves a row from one of the allowed statuses to "to".
// confirmed_at is set when moving to confirmed and cleared otherwise.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, from []models.AppointmentStatus, to models.AppointmentStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("updating appointment status: no source status given")
	}

	now := r.Now()
	var confirmedAt *time.Time
	if to == models.StatusConfirmed {
		confirmedAt = &now
	}

	args := []any{string(to), nullTime(confirmedAt), now, id}
	placeholders := make([]string, len(from))
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE appointments SET status = ?, confirmed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("updating appointment status: %w", err)
	}
	return affected(result)
}

// SetCancelled sets or clears the cancellation fields. Cancelling an already
// cancelled row replaces reason and timestamp.
func (r *AppointmentRepository) SetCancelled(ctx context.Context, id string, cancelled bool, reason *string) (bool, error) {
	now := r.Now()
	var cancelledAt *time.Time
	if cancelled {
		cancelledAt = &now
	} else {
		reason = nil
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE appointments SET cancelled = ?, cancelled_reason = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ?
	`, cancelled, nullString(reason), nullTime(cancelledAt), now, id)
	if err != nil {
		return false, fmt.Errorf("updating appointment cancellation: %w", err)
	}
	return affected(result)
}

// DeleteByIDs hard-deletes appointments and returns the ids that existed.
// Linked income entries keep their data with appointment_id set to NULL.
func (r *AppointmentRepository) DeleteByIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.Q().QueryContext(ctx,
		`DELETE FROM appointments WHERE id IN (`+strings.Join(placeholders, ", ")+`) RETURNING id`, args...)
	if err != nil {
		return nil, fmt.Errorf("deleting appointments: %w", err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// CountByStatus returns the number of appointments per status.
func (r *AppointmentRepository) CountByStatus(ctx context.Context) (map[models.AppointmentStatus]int, error) {
	rows, err := r.Q().QueryContext(ctx, `SELECT status, COUNT(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AppointmentStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning appointment count: %w", err)
		}
		counts[models.AppointmentStatus(status)] = n
	}
	return counts, rows.Err()
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

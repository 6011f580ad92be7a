package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

// AuditRepository stores the per-appointment change history.
type AuditRepository struct {
	BaseRepository
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose queries run inside tx.
func (r *AuditRepository) WithTx(tx *sql.Tx) *AuditRepository {
	return &AuditRepository{BaseRepository: r.BaseRepository.withTx(tx)}
}

// Record appends an audit entry. Unknown field names are rejected.
func (r *AuditRepository) Record(ctx context.Context, appointmentID, action string, changes []models.FieldChange) error {
	for _, c := range changes {
		if !c.Field.Valid() {
			return fmt.Errorf("recording audit entry: unknown field %q", c.Field)
		}
	}
	if changes == nil {
		changes = []models.FieldChange{}
	}

	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encoding audit changes: %w", err)
	}

	_, err = r.Q().ExecContext(ctx, `
		INSERT INTO appointment_audit (id, appointment_id, action, changes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, GenerateID(), appointmentID, action, string(raw), r.Now())
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListByAppointment returns the history of an appointment, oldest first.
func (r *AuditRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]models.AuditEntry, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, appointment_id, action, changes, created_at
		FROM appointment_audit WHERE appointment_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e   models.AuditEntry
			raw string
		)
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.Action, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Changes); err != nil {
			return nil, fmt.Errorf("decoding audit changes: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

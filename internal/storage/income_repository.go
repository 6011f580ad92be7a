package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

const incomeColumns = `
	id, amount, payment_method, income_date, customer_id, treatment_type_id,
	appointment_id, notes, deleted_at, created_at, updated_at`

// IncomeRepository provides data access for income entries.
// Reads skip soft-deleted rows unless stated otherwise.
type IncomeRepository struct {
	BaseRepository
}

// NewIncomeRepository creates a new income entry repository.
func NewIncomeRepository(db *DB) *IncomeRepository {
	return &IncomeRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose queries run inside tx.
func (r *IncomeRepository) WithTx(tx *sql.Tx) *IncomeRepository {
	return &IncomeRepository{BaseRepository: r.BaseRepository.withTx(tx)}
}

func scanIncome(s rowScanner) (*models.IncomeEntry, error) {
	e := &models.IncomeEntry{}
	err := s.Scan(
		&e.ID, &e.Amount, &e.PaymentMethod, &e.IncomeDate, &e.CustomerID, &e.TreatmentTypeID,
		&e.AppointmentID, &e.Notes, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new income entry and fills in its ID and timestamps.
func (r *IncomeRepository) Create(ctx context.Context, e *models.IncomeEntry) error {
	e.ID = GenerateID()
	e.CreatedAt = r.Now()
	e.UpdatedAt = e.CreatedAt

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO income_entries (
			id, amount, payment_method, income_date, customer_id, treatment_type_id,
			appointment_id, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.AmountString(), e.PaymentMethod, e.IncomeDate.UTC(),
		nullString(e.CustomerID), nullString(e.TreatmentTypeID), nullString(e.AppointmentID),
		nullString(e.Notes), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting income entry: %w", err)
	}

	return nil
}

// Update rewrites the editable fields of a live entry.
func (r *IncomeRepository) Update(ctx context.Context, e *models.IncomeEntry) error {
	e.UpdatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		UPDATE income_entries SET
			amount = ?, payment_method = ?, income_date = ?, customer_id = ?,
			treatment_type_id = ?, notes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		e.AmountString(), e.PaymentMethod, e.IncomeDate.UTC(), nullString(e.CustomerID),
		nullString(e.TreatmentTypeID), nullString(e.Notes), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating income entry: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("income entry %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

// GetByID retrieves an entry, including soft-deleted ones. It returns nil, nil if absent.
func (r *IncomeRepository) GetByID(ctx context.Context, id string) (*models.IncomeEntry, error) {
	e, err := scanIncome(r.Q().QueryRowContext(ctx,
		`SELECT `+incomeColumns+` FROM income_entries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying income entry: %w", err)
	}
	return e, nil
}

// GetByAppointmentID returns the live entry linked to an appointment.
// Should several exist, the oldest wins.
func (r *IncomeRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (*models.IncomeEntry, error) {
	e, err := scanIncome(r.Q().QueryRowContext(ctx, `
		SELECT `+incomeColumns+` FROM income_entries
		WHERE appointment_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC LIMIT 1
	`, appointmentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying income entry by appointment: %w", err)
	}
	return e, nil
}

// List returns live entries with income_date in [from, to). Nil bounds are open.
func (r *IncomeRepository) List(ctx context.Context, from, to *time.Time) ([]models.IncomeEntry, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if from != nil {
		where = append(where, "income_date >= ?")
		args = append(args, from.UTC())
	}
	if to != nil {
		where = append(where, "income_date < ?")
		args = append(args, to.UTC())
	}

	rows, err := r.Q().QueryContext(ctx, `
		SELECT `+incomeColumns+` FROM income_entries
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY income_date DESC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying income entries: %w", err)
	}
	defer rows.Close()

	var entries []models.IncomeEntry
	for rows.Next() {
		e, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning income entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// SoftDelete marks an entry as deleted. Deleting twice is an ErrNotFound.
func (r *IncomeRepository) SoftDelete(ctx context.Context, id string) error {
	now := r.Now()
	result, err := r.Q().ExecContext(ctx, `
		UPDATE income_entries SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("deleting income entry: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("income entry %s: %w", id, ErrNotFound)
	}
	return nil
}

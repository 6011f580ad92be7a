package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

const syncLogColumns = `
	id, started_at, finished_at, status, imported, updated, deleted, failed,
	skipped, total, message, error_details`

// SyncLogRepository records sync runs.
type SyncLogRepository struct {
	BaseRepository
}

// NewSyncLogRepository creates a new sync log repository.
func NewSyncLogRepository(db *DB) *SyncLogRepository {
	return &SyncLogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Start inserts an in_progress log and returns it.
func (r *SyncLogRepository) Start(ctx context.Context) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		ID:        GenerateID(),
		StartedAt: r.Now(),
		Status:    models.SyncStatusInProgress,
	}

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO sync_logs (id, started_at, status) VALUES (?, ?, ?)
	`, entry.ID, entry.StartedAt, entry.Status)
	if err != nil {
		return nil, fmt.Errorf("inserting sync log: %w", err)
	}

	return entry, nil
}

// Finish stores the final status, counts and message of a run.
func (r *SyncLogRepository) Finish(ctx context.Context, entry *models.SyncLog) error {
	finished := r.Now()
	entry.FinishedAt = &finished

	var details any
	if entry.ErrorDetails != nil {
		raw, err := json.Marshal(entry.ErrorDetails)
		if err != nil {
			return fmt.Errorf("encoding sync error details: %w", err)
		}
		details = string(raw)
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE sync_logs SET
			finished_at = ?, status = ?, imported = ?, updated = ?, deleted = ?,
			failed = ?, skipped = ?, total = ?, message = ?, error_details = ?
		WHERE id = ?
	`,
		finished, entry.Status, entry.Imported, entry.Updated, entry.Deleted,
		entry.Failed, entry.Skipped, entry.Total, nullString(entry.Message), details,
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sync log: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sync log %s: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// Latest returns the most recently started run, or nil if none exists.
func (r *SyncLogRepository) Latest(ctx context.Context) (*models.SyncLog, error) {
	logs, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// List returns the newest runs first.
func (r *SyncLogRepository) List(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.Q().QueryContext(ctx, `
		SELECT `+syncLogColumns+` FROM sync_logs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SyncLog
	for rows.Next() {
		var (
			l       models.SyncLog
			details sql.NullString
		)
		if err := rows.Scan(
			&l.ID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Imported, &l.Updated,
			&l.Deleted, &l.Failed, &l.Skipped, &l.Total, &l.Message, &details,
		); err != nil {
			return nil, fmt.Errorf("scanning sync log: %w", err)
		}
		if details.Valid && details.String != "" {
			l.ErrorDetails = &models.SyncErrorDetails{}
			if err := json.Unmarshal([]byte(details.String), l.ErrorDetails); err != nil {
				return nil, fmt.Errorf("decoding sync error details: %w", err)
			}
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

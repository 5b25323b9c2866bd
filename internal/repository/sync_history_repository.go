package repository

import (
	"database/sql"
	"fmt"
	"time"
)

type SyncRecord struct {
	ID           int64     `json:"id"`
	ProjectID    string    `json:"project_id"`
	Operation    string    `json:"operation"`
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncHistoryRepository records the outcome of every remote mutation, so a
// failed sync can be traced after the resync has discarded local state.
type SyncHistoryRepository struct {
	db *sql.DB
}

func NewSyncHistoryRepository(db *sql.DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{db: db}
}

func (r *SyncHistoryRepository) Record(rec *SyncRecord) error {
	query := `
		INSERT INTO sync_history (project_id, operation, task_id, status, error_message)
        VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		rec.ProjectID,
		rec.Operation,
		rec.TaskID,
		rec.Status,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("record sync operation: %w", err)
	}

	rec.ID, _ = result.LastInsertId()
	return nil
}

func (r *SyncHistoryRepository) ListByProject(projectId string, limit int) ([]SyncRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT id, project_id, operation, COALESCE(task_id, ''), status, COALESCE(error_message, ''), created_at
		FROM sync_history WHERE project_id = ?
		ORDER BY id DESC LIMIT ?`,
		projectId, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync history: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var rec SyncRecord
		if err := rows.Scan(
			&rec.ID, &rec.ProjectID, &rec.Operation,
			&rec.TaskID, &rec.Status, &rec.ErrorMessage, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

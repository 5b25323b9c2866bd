package repository

import (
	"database/sql"
	"fmt"
)

// FoldStateRepository keeps the expanded/collapsed state of parent rows so a
// reload never visually collapses the user's view.
type FoldStateRepository struct {
	db *sql.DB
}

func NewFoldStateRepository(db *sql.DB) *FoldStateRepository {
	return &FoldStateRepository{db: db}
}

func (r *FoldStateRepository) Get(projectId string) (map[string]bool, error) {
	rows, err := r.db.Query(
		`SELECT task_id, open FROM fold_state WHERE project_id = ?`,
		projectId,
	)
	if err != nil {
		return nil, fmt.Errorf("get fold state: %w", err)
	}
	defer rows.Close()

	open := make(map[string]bool)
	for rows.Next() {
		var taskID string
		var isOpen bool
		if err := rows.Scan(&taskID, &isOpen); err != nil {
			return nil, fmt.Errorf("scan fold state: %w", err)
		}
		open[taskID] = isOpen
	}

	return open, rows.Err()
}

func (r *FoldStateRepository) Save(projectId string, open map[string]bool) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save fold state: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fold_state WHERE project_id = ?`, projectId); err != nil {
		return fmt.Errorf("clear fold state: %w", err)
	}

	for taskID, isOpen := range open {
		if _, err := tx.Exec(
			`INSERT INTO fold_state (project_id, task_id, open) VALUES (?, ?, ?)`,
			projectId, taskID, isOpen,
		); err != nil {
			return fmt.Errorf("insert fold state %s: %w", taskID, err)
		}
	}

	return tx.Commit()
}

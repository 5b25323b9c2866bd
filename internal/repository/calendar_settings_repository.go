package repository

import (
	"database/sql"
	"fmt"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
)

type DayKind string

const (
	DayKindHoliday DayKind = "holiday"
	DayKindWorkday DayKind = "workday"
)

// CalendarSettingsRepository is the calendar-settings source: holidays and
// extra workdays per project, loaded once per project context and changed
// only through an explicit save.
type CalendarSettingsRepository struct {
	db *sql.DB
}

func NewCalendarSettingsRepository(db *sql.DB) *CalendarSettingsRepository {
	return &CalendarSettingsRepository{db: db}
}

func (r *CalendarSettingsRepository) Get(projectId string) (models.CalendarSettings, error) {
	settings := models.CalendarSettings{ProjectID: projectId}

	rows, err := r.db.Query(
		`SELECT kind, day FROM calendar_days WHERE project_id = ? ORDER BY day`,
		projectId,
	)
	if err != nil {
		return settings, fmt.Errorf("get calendar days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, day string
		if err := rows.Scan(&kind, &day); err != nil {
			return settings, fmt.Errorf("scan calendar day: %w", err)
		}
		switch DayKind(kind) {
		case DayKindHoliday:
			settings.Holidays = append(settings.Holidays, day)
		case DayKindWorkday:
			settings.ExtraWorkdays = append(settings.ExtraWorkdays, day)
		}
	}

	return settings, rows.Err()
}

func (r *CalendarSettingsRepository) Save(settings models.CalendarSettings) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save calendar: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM calendar_days WHERE project_id = ?`, settings.ProjectID); err != nil {
		return fmt.Errorf("clear calendar days: %w", err)
	}

	insert := `INSERT INTO calendar_days (project_id, kind, day) VALUES (?, ?, ?)`
	for _, day := range settings.Holidays {
		if _, err := tx.Exec(insert, settings.ProjectID, DayKindHoliday, day); err != nil {
			return fmt.Errorf("insert holiday %s: %w", day, err)
		}
	}
	for _, day := range settings.ExtraWorkdays {
		if _, err := tx.Exec(insert, settings.ProjectID, DayKindWorkday, day); err != nil {
			return fmt.Errorf("insert extra workday %s: %w", day, err)
		}
	}

	return tx.Commit()
}

package models

// CalendarSettings holds the per-project workday configuration. Dates are
// stored as "2006-01-02" strings. ExtraWorkdays are weekend days manually
// marked as working.
type CalendarSettings struct {
	ProjectID     string   `json:"project_id"`
	Holidays      []string `json:"holidays"`
	ExtraWorkdays []string `json:"extra_workdays"`
}

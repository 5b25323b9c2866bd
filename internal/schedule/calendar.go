package schedule

import "time"

const dateLayout = "2006-01-02"

// Calendar answers workday queries against a per-project set of holidays and
// extra workdays. Queries are pure; settings never change after construction.
type Calendar struct {
	holidays map[string]struct{}
	extra    map[string]struct{}
}

func NewCalendar(holidays, extraWorkdays []string) *Calendar {
	c := &Calendar{
		holidays: make(map[string]struct{}, len(holidays)),
		extra:    make(map[string]struct{}, len(extraWorkdays)),
	}
	for _, d := range holidays {
		c.holidays[d] = struct{}{}
	}
	for _, d := range extraWorkdays {
		c.extra[d] = struct{}{}
	}
	return c
}

func dayKey(t time.Time) string {
	return t.Format(dateLayout)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWorkday reports whether d counts as working time: not a holiday, and
// either a weekday or a weekend day listed as an extra workday.
func (c *Calendar) IsWorkday(d time.Time) bool {
	key := dayKey(d)
	if _, ok := c.holidays[key]; ok {
		return false
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		_, ok := c.extra[key]
		return ok
	}
	return true
}

// WorkdaysBetween counts the workdays in [start, end] inclusive. A missing
// date or an end before start yields 0.
func (c *Calendar) WorkdaysBetween(start, end *time.Time) int {
	if start == nil || end == nil {
		return 0
	}
	from := dateOnly(*start)
	to := dateOnly(*end)
	if to.Before(from) {
		return 0
	}

	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkday(d) {
			count++
		}
	}
	return count
}

// AdvanceByWorkdays walks forward from start until count workdays have been
// consumed and returns the last consumed day. Start itself is consumed when
// it is a workday. count <= 0 returns start unchanged.
func (c *Calendar) AdvanceByWorkdays(start time.Time, count int) time.Time {
	d := dateOnly(start)
	if count <= 0 {
		return d
	}

	consumed := 0
	for {
		if c.IsWorkday(d) {
			consumed++
			if consumed == count {
				return d
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}

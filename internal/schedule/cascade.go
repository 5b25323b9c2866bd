package schedule

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
)

// Snapshot is a read-only copy of the task/link collection taken at the
// moment of the gesture. Planning never touches live state.
type Snapshot struct {
	Tasks []models.Task
	Links []models.Link
}

func (s Snapshot) task(id string) (models.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (s Snapshot) childrenOf(id string) []models.Task {
	var children []models.Task
	for _, t := range s.Tasks {
		if t.ParentID == id {
			children = append(children, t)
		}
	}
	return children
}

// DateChange is a proposed new span for one task.
type DateChange struct {
	TaskID string
	Start  time.Time
	End    time.Time
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// PlanCascade computes new spans for a parent shifted by offsetDays and for
// all of its transitive descendants. Each member keeps its own workday
// count. A descendant with an inbound dependency link from another cascade
// member chains off that member's new span instead of keeping its plain
// offset from the parent; processing runs earliest-first so link sources
// are always planned before their targets.
func PlanCascade(snap Snapshot, cal *Calendar, parentID string, offsetDays int) ([]DateChange, error) {
	parent, ok := snap.task(parentID)
	if !ok {
		return nil, fmt.Errorf("plan cascade: task %s not found", parentID)
	}
	if !parent.HasSpan() {
		return nil, fmt.Errorf("plan cascade: task %s has no date span", parentID)
	}

	origStart := dateOnly(*parent.Start)
	parentWorkdays := cal.WorkdaysBetween(parent.Start, parent.End)
	newStart := origStart.AddDate(0, 0, offsetDays)
	newEnd := cal.AdvanceByWorkdays(newStart, parentWorkdays)

	changes := []DateChange{{TaskID: parentID, Start: newStart, End: newEnd}}
	planned := map[string]DateChange{parentID: changes[0]}

	type member struct {
		task      models.Task
		relOffset int
		workdays  int
	}
	var members []member

	queue := []string{parentID}
	seen := map[string]bool{parentID: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range snap.childrenOf(id) {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			queue = append(queue, child.ID)
			if !child.HasSpan() {
				continue
			}
			members = append(members, member{
				task:      child,
				relOffset: daysBetween(origStart, dateOnly(*child.Start)),
				workdays:  cal.WorkdaysBetween(child.Start, child.End),
			})
		}
	}

	sort.SliceStable(members, func(i, j int) bool {
		return members[i].relOffset < members[j].relOffset
	})

	for _, m := range members {
		var start time.Time
		chained := false
		for _, l := range snap.Links {
			if l.Target != m.task.ID {
				continue
			}
			src, done := planned[l.Source]
			if !done {
				continue
			}
			switch l.Kind {
			case models.LinkEndToStart:
				// First workday after the source's new end.
				start = cal.AdvanceByWorkdays(src.End.AddDate(0, 0, 1), 1)
			default:
				start = src.Start
			}
			chained = true
			break
		}
		if !chained {
			start = newStart.AddDate(0, 0, m.relOffset)
		}

		change := DateChange{
			TaskID: m.task.ID,
			Start:  start,
			End:    cal.AdvanceByWorkdays(start, m.workdays),
		}
		changes = append(changes, change)
		planned[m.task.ID] = change
	}

	return changes, nil
}

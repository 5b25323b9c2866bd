package schedule

import "time"

type dragPhase int

const (
	phaseIdle dragPhase = iota
	phaseCaptured
	phaseCorrected
)

// DragUpdate is one date change the rendering widget wants applied to a
// task. Correction marks the re-issued update carrying a workday-corrected
// end date.
type DragUpdate struct {
	TaskID     string
	Start      *time.Time
	End        *time.Time
	Correction bool
}

type DragAction int

const (
	// DragForward: persist this update as-is.
	DragForward DragAction = iota
	// DragCorrect: do not persist; re-issue the update with CorrectedEnd,
	// tagged as a correction.
	DragCorrect
	// DragSuppress: drop this update silently.
	DragSuppress
)

type DragOutcome struct {
	Action       DragAction
	CorrectedEnd time.Time
}

// DragReconciler preserves a task's workday count across a drag gesture.
// The widget normalizes dates on its own after the drop, so the original
// span has to be captured before the change and re-imposed afterwards.
// One state machine per in-flight task: idle -> captured -> corrected.
type DragReconciler struct {
	cal    *Calendar
	states map[string]*dragState
}

type dragState struct {
	phase            dragPhase
	originalWorkdays int
}

func NewDragReconciler(cal *Calendar) *DragReconciler {
	return &DragReconciler{
		cal:    cal,
		states: make(map[string]*dragState),
	}
}

// Capture records the pre-drag workday count for a task about to be moved.
// Tasks missing a date, or spanning zero workdays, are not captured and
// their updates pass through untouched.
func (r *DragReconciler) Capture(taskID string, start, end *time.Time) {
	if start == nil || end == nil {
		return
	}
	workdays := r.cal.WorkdaysBetween(start, end)
	if workdays == 0 {
		return
	}
	r.states[taskID] = &dragState{phase: phaseCaptured, originalWorkdays: workdays}
}

// Observe decides what to do with an update the widget has applied.
// Exactly one update per gesture comes back with DragForward; the raw
// update superseded by a correction is answered with DragCorrect and any
// late duplicate of it with DragSuppress.
func (r *DragReconciler) Observe(u DragUpdate) DragOutcome {
	st, ok := r.states[u.TaskID]
	if !ok {
		return DragOutcome{Action: DragForward}
	}

	switch st.phase {
	case phaseCaptured:
		if u.Start == nil || u.End == nil {
			delete(r.states, u.TaskID)
			return DragOutcome{Action: DragForward}
		}
		adjusted := r.cal.AdvanceByWorkdays(*u.Start, st.originalWorkdays)
		if adjusted.Equal(dateOnly(*u.End)) {
			delete(r.states, u.TaskID)
			return DragOutcome{Action: DragForward}
		}
		st.phase = phaseCorrected
		return DragOutcome{Action: DragCorrect, CorrectedEnd: adjusted}

	case phaseCorrected:
		if !u.Correction {
			// Stale duplicate of the uncorrected update.
			return DragOutcome{Action: DragSuppress}
		}
		delete(r.states, u.TaskID)
		return DragOutcome{Action: DragForward}
	}

	delete(r.states, u.TaskID)
	return DragOutcome{Action: DragForward}
}

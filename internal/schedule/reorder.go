package schedule

import (
	"errors"
	"fmt"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
)

type Placement string

const (
	PlaceBefore Placement = "before"
	PlaceAfter  Placement = "after"
)

var (
	// ErrMilestoneMove rejects reorders of milestones; they have no stable
	// position semantics on the remote tracker.
	ErrMilestoneMove = errors.New("milestones cannot be reordered")
	// ErrNoCompatibleSibling rejects a reorder with no same-kind neighbor
	// in either direction of the target.
	ErrNoCompatibleSibling = errors.New("no compatible sibling for reorder")
)

// ReorderTarget is the resolved remote relative-position call.
type ReorderTarget struct {
	MovedID  string
	TargetID string
	Mode     Placement
}

// ResolveReorder turns a drop gesture into a valid relative-position pair.
// When the raw target is incompatible (a milestone, or a different kind),
// the target's sibling list is searched outward for the nearest same-kind
// sibling, attached so the drop direction is preserved: drop-after takes
// the forward neighbor with "before", falling back to the backward neighbor
// with "after"; drop-before is symmetric. The search runs over the target's
// sibling list: the drop carries a position next to the target, so a mover
// coming from another parent lands among the target's siblings.
func ResolveReorder(tasks []models.Task, movedID, targetID string, mode Placement) (ReorderTarget, error) {
	var moved, target *models.Task
	for i := range tasks {
		switch tasks[i].ID {
		case movedID:
			moved = &tasks[i]
		case targetID:
			target = &tasks[i]
		}
	}
	if moved == nil {
		return ReorderTarget{}, fmt.Errorf("resolve reorder: task %s not found", movedID)
	}
	if target == nil {
		return ReorderTarget{}, fmt.Errorf("resolve reorder: target %s not found", targetID)
	}
	if moved.Kind == models.KindMilestone {
		return ReorderTarget{}, ErrMilestoneMove
	}

	compatible := func(t models.Task) bool {
		return t.ID != movedID && t.Kind != models.KindMilestone && t.Kind == moved.Kind
	}

	if compatible(*target) {
		return ReorderTarget{MovedID: movedID, TargetID: targetID, Mode: mode}, nil
	}

	var siblings []models.Task
	targetIdx := -1
	for _, t := range tasks {
		if t.ParentID != target.ParentID {
			continue
		}
		if t.ID == targetID {
			targetIdx = len(siblings)
		}
		siblings = append(siblings, t)
	}

	var backward, forward *models.Task
	for i := targetIdx - 1; i >= 0; i-- {
		if compatible(siblings[i]) {
			backward = &siblings[i]
			break
		}
	}
	for i := targetIdx + 1; i < len(siblings); i++ {
		if compatible(siblings[i]) {
			forward = &siblings[i]
			break
		}
	}

	if mode == PlaceAfter {
		if forward != nil {
			return ReorderTarget{MovedID: movedID, TargetID: forward.ID, Mode: PlaceBefore}, nil
		}
		if backward != nil {
			return ReorderTarget{MovedID: movedID, TargetID: backward.ID, Mode: PlaceAfter}, nil
		}
	} else {
		if backward != nil {
			return ReorderTarget{MovedID: movedID, TargetID: backward.ID, Mode: PlaceAfter}, nil
		}
		if forward != nil {
			return ReorderTarget{MovedID: movedID, TargetID: forward.ID, Mode: PlaceBefore}, nil
		}
	}

	return ReorderTarget{}, ErrNoCompatibleSibling
}

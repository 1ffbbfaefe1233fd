package pipeline

import "github.com/khizarrm/outreach/internal/model"

// transitions lists the legal successors of each status. The empty status
// is a run that has not started. Any non-terminal status may also move to
// failed.
var transitions = map[model.RunStatus][]model.RunStatus{
	"":                                {model.RunStatusValidating},
	model.RunStatusValidating:         {model.RunStatusResearching},
	model.RunStatusResearching:        {model.RunStatusExtractingMetadata},
	model.RunStatusExtractingMetadata: {model.RunStatusFindingPeople},
	model.RunStatusFindingPeople:      {model.RunStatusExtractingPeople},
	model.RunStatusExtractingPeople:   {model.RunStatusGuarding},
	model.RunStatusGuarding:           {model.RunStatusRevalidating, model.RunStatusAssembling},
	model.RunStatusRevalidating:       {model.RunStatusReextracting},
	model.RunStatusReextracting:       {model.RunStatusGuarding},
	model.RunStatusAssembling:         {model.RunStatusEnriching},
	model.RunStatusEnriching:          {model.RunStatusPersisting},
	model.RunStatusPersisting:         {model.RunStatusDone},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to model.RunStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == model.RunStatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

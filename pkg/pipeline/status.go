package pipeline

import "github.com/ASHISH26940/storyspark-api/pkg/db"

// transitions lists every legal status edge. Statuses with no entry are
// terminal.
var transitions = map[db.ClipStatus][]db.ClipStatus{
	db.StatusPending:      {db.StatusGenerating},
	db.StatusGenerating:   {db.StatusSafetyReview, db.StatusFailed},
	db.StatusSafetyReview: {db.StatusSafetyFailed, db.StatusSynthesizing, db.StatusFailed},
	db.StatusSynthesizing: {db.StatusReady, db.StatusFailed},
	db.StatusReady:        {db.StatusApproved, db.StatusRejected},
}

// CanTransition reports whether a clip may move from one status to another.
func CanTransition(from, to db.ClipStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists from s.
func IsTerminal(s db.ClipStatus) bool {
	return len(transitions[s]) == 0
}

// InFlight are the statuses a running pipeline holds between stages.
var InFlight = []db.ClipStatus{db.StatusGenerating, db.StatusSafetyReview, db.StatusSynthesizing}

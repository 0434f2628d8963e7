package job

import "fmt"

// transitions is the authoritative state machine: which next statuses are
// legal from each current status. Any pair not present here is invalid. No
// component may move a job between statuses without consulting this table.
//
// cancellation_requested carries a restore path back to scheduled or
// confirmed for when the request is denied.
var transitions = map[Status][]Status{
	StatusPending: {
		StatusAccepted, StatusQuoted, StatusScheduling,
		StatusScheduled, StatusCancelled,
	},
	StatusAccepted: {
		StatusConfirmed, StatusQuoted, StatusScheduling, StatusScheduled,
		StatusCancellationRequested, StatusCancelled,
	},
	StatusConfirmed: {
		StatusQuoted, StatusScheduling, StatusScheduled,
		StatusCancellationRequested, StatusCancelled,
	},
	StatusQuoted: {
		StatusScheduling, StatusCancelled,
	},
	StatusScheduling: {
		StatusScheduled, StatusQuoted,
		StatusCancellationRequested, StatusCancelled,
	},
	StatusScheduled: {
		StatusInProgress, StatusPendingCompletion, StatusCompleted,
		StatusCancellationRequested, StatusCancelled,
	},
	StatusInProgress: {
		StatusPendingCompletion, StatusCompleted,
		StatusCancellationRequested, StatusCancelled,
	},
	StatusPendingCompletion: {
		StatusCompleted, StatusRevisionRequested,
	},
	StatusRevisionRequested: {
		StatusPendingCompletion, StatusCompleted,
	},
	StatusCancellationRequested: {
		StatusCancelled, StatusScheduled, StatusConfirmed,
	},
	StatusCancelled: {},
	StatusCompleted: {},
}

// TransitionCheck is the result of validating a status transition
type TransitionCheck struct {
	Valid  bool
	Reason string
}

// ValidateStatusTransition checks whether moving a job from current to next
// is legal under the transition table.
func ValidateStatusTransition(current, next Status) TransitionCheck {
	if !IsValidStatus(string(current)) {
		return TransitionCheck{Valid: false, Reason: fmt.Sprintf("unknown status %q", current)}
	}
	if !IsValidStatus(string(next)) {
		return TransitionCheck{Valid: false, Reason: fmt.Sprintf("unknown status %q", next)}
	}
	if current == next {
		// Staying put is always allowed; actions that re-enter the same
		// status (another proposal while scheduling) are no-ops here.
		return TransitionCheck{Valid: true}
	}
	if current.Terminal() {
		return TransitionCheck{Valid: false, Reason: fmt.Sprintf("%s is terminal; no transitions are allowed", current)}
	}
	for _, allowed := range transitions[current] {
		if allowed == next {
			return TransitionCheck{Valid: true}
		}
	}
	return TransitionCheck{Valid: false, Reason: fmt.Sprintf("cannot move from %s to %s", current, next)}
}

// AllowedTransitions returns the legal next statuses from the given status.
// The returned slice is a copy.
func AllowedTransitions(current Status) []Status {
	allowed := transitions[current]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

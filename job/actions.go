package job

import "fmt"

// Action is a named operation a caller wants to perform on a job. Action
// permission is checked against the job's current status, independent of
// the transition table: an action can be blocked even when the resulting
// status change would be legal. start_work is blocked while a cancellation
// request is pending even though no status change is involved in the check.
type Action string

const (
	ActionSchedule       Action = "schedule"
	ActionAssignTech     Action = "assign_tech"
	ActionStartWork      Action = "start_work"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
	ActionMessage        Action = "message"
	ActionInvoice        Action = "invoice"
	ActionCollectPayment Action = "collect_payment"
)

// actionDenied maps each action to the statuses in which it is blocked.
// message, invoice and collect_payment only forbid cancelled, intentionally
// allowing post-completion contact and billing.
var actionDenied = map[Action][]Status{
	ActionSchedule: {
		StatusInProgress, StatusPendingCompletion, StatusRevisionRequested,
		StatusCancellationRequested, StatusCompleted, StatusCancelled,
	},
	ActionAssignTech: {
		StatusCancellationRequested, StatusCompleted, StatusCancelled,
	},
	ActionStartWork: {
		StatusPending, StatusQuoted, StatusScheduling,
		StatusInProgress, StatusPendingCompletion, StatusRevisionRequested,
		StatusCancellationRequested, StatusCompleted, StatusCancelled,
	},
	ActionComplete: {
		StatusPending, StatusAccepted, StatusConfirmed, StatusQuoted,
		StatusScheduling, StatusCancellationRequested,
		StatusCompleted, StatusCancelled,
	},
	ActionCancel: {
		StatusCompleted, StatusCancelled,
	},
	ActionMessage:        {StatusCancelled},
	ActionInvoice:        {StatusCancelled},
	ActionCollectPayment: {StatusCancelled},
}

// CanPerformAction answers whether the named action is allowed given the
// job's current status. The reason is empty when allowed.
func CanPerformAction(j *Job, action Action) (bool, string) {
	denied, known := actionDenied[action]
	if !known {
		return false, fmt.Sprintf("unknown action %q", action)
	}
	for _, s := range denied {
		if j.Status == s {
			return false, fmt.Sprintf("action %q is not allowed while the job is %s", action, s)
		}
	}
	return true, ""
}

package limbo

import (
	"fmt"

	"github.com/fieldops/dispatch/job"
)

// Alert is a remediation prompt for one job stuck in limbo. Each flagged
// job produces exactly one alert, keyed by its first (highest-priority)
// issue even when several rules triggered.
type Alert struct {
	ID       string    `json:"id"`
	JobID    string    `json:"job_id"`
	Severity Severity  `json:"severity"`
	Type     IssueType `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Age      string    `json:"age"`
	Actions  []string  `json:"actions"`
	Job      AlertJob  `json:"job"`
}

// AlertJob is the job summary embedded in an alert.
type AlertJob struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	CustomerName string     `json:"customer_name"`
	Status       job.Status `json:"status"`
}

type alertTemplate struct {
	title   func(j *job.Job) string
	actions []string
}

var alertTemplates = map[IssueType]alertTemplate{
	CancellationPending: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("Cancellation request for %q needs a decision", jobTitle(j))
		},
		actions: []string{"Review Request", "Contact Customer"},
	},
	PastDue: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("%q is past its scheduled date", jobTitle(j))
		},
		actions: []string{"Reschedule", "Mark Complete"},
	},
	CompletionPending: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("%s hasn't reviewed %q yet", customerName(j), jobTitle(j))
		},
		actions: []string{"Send Reminder", "View Submission"},
	},
	RevisionPending: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("Revision on %q is still unresolved", jobTitle(j))
		},
		actions: []string{"View Revision Notes", "Resubmit Work"},
	},
	Unscheduled: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("%q still has no scheduled date", jobTitle(j))
		},
		actions: []string{"Propose Time", "Contact Customer"},
	},
	HomeownerUnlinked: {
		title: func(j *job.Job) string {
			return fmt.Sprintf("%q isn't linked to a customer account", jobTitle(j))
		},
		actions: []string{"Invite Customer", "Link Account"},
	},
}

// GenerateAlerts maps each flagged job to one alert built from its first
// issue. Rules are evaluated in priority order, so the first issue is the
// most urgent one.
func GenerateAlerts(flagged []Flagged) []Alert {
	alerts := make([]Alert, 0, len(flagged))
	for _, f := range flagged {
		if len(f.Issues) == 0 {
			continue
		}
		lead := f.Issues[0]
		tmpl := alertTemplates[lead.Type]

		alerts = append(alerts, Alert{
			ID:       fmt.Sprintf("limbo-%s-%s", lead.Type, f.Job.ID),
			JobID:    f.Job.ID,
			Severity: lead.Severity,
			Type:     lead.Type,
			Title:    tmpl.title(f.Job),
			Message:  lead.Message,
			Age:      lead.AgeFormatted,
			Actions:  tmpl.actions,
			Job: AlertJob{
				ID:           f.Job.ID,
				Title:        jobTitle(f.Job),
				CustomerName: f.Job.CustomerName,
				Status:       f.Job.Status,
			},
		})
	}
	return alerts
}

func jobTitle(j *job.Job) string {
	if j.Title == "" {
		return "Untitled job"
	}
	return j.Title
}

func customerName(j *job.Job) string {
	if j.CustomerName == "" {
		return "The customer"
	}
	return j.CustomerName
}

// Package limbo detects jobs stuck in an intermediate status beyond an
// expected maximum dwell time and classifies them by severity.
//
// The rule set is a declarative table evaluated by one generic interpreter:
// adding a limbo condition is a data change, not a new code path. Detection
// is a pure function of (job snapshot, now): it never mutates the job and
// never reads the clock itself, so identical inputs always produce
// identical output.
package limbo

import (
	"fmt"
	"time"

	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

// Severity classifies how urgently a limbo issue needs action
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities: high > medium > low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// IssueType identifies which limbo rule triggered
type IssueType string

const (
	CancellationPending IssueType = "CANCELLATION_PENDING"
	PastDue             IssueType = "PAST_DUE"
	CompletionPending   IssueType = "COMPLETION_PENDING"
	RevisionPending     IssueType = "REVISION_PENDING"
	Unscheduled         IssueType = "UNSCHEDULED"
	HomeownerUnlinked   IssueType = "HOMEOWNER_UNLINKED"
)

// AutoApproveAfter is the external deadline after which submitted work is
// approved automatically. COMPLETION_PENDING issues count down to it.
const AutoApproveAfter = 7 * 24 * time.Hour

// Issue is a single triggered limbo condition. Issues are derived, never
// stored: every detector pass computes them fresh.
type Issue struct {
	Type         IssueType     `json:"type"`
	Severity     Severity      `json:"severity"`
	Age          time.Duration `json:"age"`
	AgeFormatted string        `json:"age_formatted"`
	Message      string        `json:"message"`

	// AutoApproveIn counts down to the auto-approval deadline.
	// Only set for COMPLETION_PENDING.
	AutoApproveIn string `json:"auto_approve_in,omitempty"`

	// ScheduledDate is the missed date. Only set for PAST_DUE.
	ScheduledDate tzdate.Timestamp `json:"scheduled_date,omitempty"`
}

// Thresholds holds the maximum dwell time per rule. The zero value is not
// usable; start from DefaultThresholds.
type Thresholds struct {
	CancellationPending time.Duration
	CompletionPending   time.Duration
	RevisionPending     time.Duration
	HomeownerUnlinked   time.Duration
	Unscheduled         time.Duration
	PastDueGrace        time.Duration
}

// DefaultThresholds returns the product dwell-time limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CancellationPending: 48 * time.Hour,
		CompletionPending:   5 * 24 * time.Hour,
		RevisionPending:     7 * 24 * time.Hour,
		HomeownerUnlinked:   30 * 24 * time.Hour,
		Unscheduled:         14 * 24 * time.Hour,
		PastDueGrace:        24 * time.Hour,
	}
}

// rule is one declarative limbo condition. applies gates the rule on job
// state; timestamp selects the relevant instant (a zero timestamp skips the
// rule, which is how malformed external timestamps are isolated); maxAge
// selects the dwell limit from the thresholds.
type rule struct {
	issueType IssueType
	severity  Severity
	maxAge    func(Thresholds) time.Duration
	applies   func(*job.Job) bool
	timestamp func(*job.Job) tzdate.Timestamp
	message   func(*job.Job, string) string
	decorate  func(*Issue, *job.Job, time.Time)
}

// rules is evaluated in priority order: the first triggered issue is the
// one an alert is keyed by, so high-severity rules come first.
var rules = []rule{
	{
		issueType: CancellationPending,
		severity:  SeverityHigh,
		maxAge:    func(t Thresholds) time.Duration { return t.CancellationPending },
		applies: func(j *job.Job) bool {
			return j.Status == job.StatusCancellationRequested
		},
		timestamp: func(j *job.Job) tzdate.Timestamp {
			if j.CancellationRequest == nil {
				return tzdate.Timestamp{}
			}
			return j.CancellationRequest.RequestedAt
		},
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("Cancellation request has been waiting %s for a decision", age)
		},
	},
	{
		issueType: PastDue,
		severity:  SeverityHigh,
		maxAge:    func(t Thresholds) time.Duration { return t.PastDueGrace },
		applies: func(j *job.Job) bool {
			if !j.ScheduledDate.IsSet() {
				return false
			}
			switch j.Status {
			case job.StatusCompleted, job.StatusCancelled, job.StatusPendingCompletion:
				return false
			}
			return true
		},
		timestamp: func(j *job.Job) tzdate.Timestamp { return j.ScheduledDate },
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("Scheduled date passed %s ago without completion", age)
		},
		decorate: func(issue *Issue, j *job.Job, now time.Time) {
			issue.ScheduledDate = j.ScheduledDate
		},
	},
	{
		issueType: CompletionPending,
		severity:  SeverityMedium,
		maxAge:    func(t Thresholds) time.Duration { return t.CompletionPending },
		applies: func(j *job.Job) bool {
			return j.Status == job.StatusPendingCompletion
		},
		timestamp: func(j *job.Job) tzdate.Timestamp {
			if j.Completion == nil {
				return tzdate.Timestamp{}
			}
			return j.Completion.SubmittedAt
		},
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("Submitted work has been awaiting review for %s", age)
		},
		decorate: func(issue *Issue, j *job.Job, now time.Time) {
			remaining := j.Completion.SubmittedAt.Add(AutoApproveAfter).Sub(now)
			if remaining <= 0 {
				issue.AutoApproveIn = "imminent"
				return
			}
			issue.AutoApproveIn = FormatAge(remaining)
		},
	},
	{
		issueType: RevisionPending,
		severity:  SeverityMedium,
		maxAge:    func(t Thresholds) time.Duration { return t.RevisionPending },
		applies: func(j *job.Job) bool {
			return j.Status == job.StatusRevisionRequested
		},
		timestamp: func(j *job.Job) tzdate.Timestamp {
			if j.Completion == nil || j.Completion.RevisionRequest == nil {
				return tzdate.Timestamp{}
			}
			return j.Completion.RevisionRequest.RequestedAt
		},
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("Revision request has been open for %s", age)
		},
	},
	{
		issueType: Unscheduled,
		severity:  SeverityMedium,
		maxAge:    func(t Thresholds) time.Duration { return t.Unscheduled },
		applies: func(j *job.Job) bool {
			if j.ScheduledDate.IsSet() || j.ScheduledTime.IsSet() {
				return false
			}
			return j.Status == job.StatusAccepted || j.Status == job.StatusConfirmed
		},
		timestamp: func(j *job.Job) tzdate.Timestamp {
			if j.AcceptedAt.IsSet() {
				return j.AcceptedAt
			}
			return j.LastActivity
		},
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("Accepted %s ago but still has no scheduled date", age)
		},
	},
	{
		issueType: HomeownerUnlinked,
		severity:  SeverityLow,
		maxAge:    func(t Thresholds) time.Duration { return t.HomeownerUnlinked },
		applies: func(j *job.Job) bool {
			return j.HomeownerLookupPending
		},
		timestamp: func(j *job.Job) tzdate.Timestamp {
			if j.LastActivity.IsSet() {
				return j.LastActivity
			}
			return j.CreatedAt
		},
		message: func(j *job.Job, age string) string {
			return fmt.Sprintf("No linked customer account after %s", age)
		},
	},
}

// Detect evaluates every applicable rule against the job snapshot and
// returns the triggered issues in priority order. Defaults thresholds.
func Detect(j *job.Job, now time.Time) []Issue {
	return DetectWithThresholds(j, now, DefaultThresholds())
}

// DetectWithThresholds is Detect with explicit dwell-time limits.
func DetectWithThresholds(j *job.Job, now time.Time, thresholds Thresholds) []Issue {
	var issues []Issue
	for _, r := range rules {
		if !r.applies(j) {
			continue
		}
		ts := r.timestamp(j)
		if !ts.IsSet() {
			// Missing or unparseable timestamp: skip this rule for this
			// job, never abort the scan.
			continue
		}
		age := now.Sub(ts.Time)
		if age <= r.maxAge(thresholds) {
			continue
		}

		formatted := FormatAge(age)
		issue := Issue{
			Type:         r.issueType,
			Severity:     r.severity,
			Age:          age,
			AgeFormatted: formatted,
			Message:      r.message(j, formatted),
		}
		if r.decorate != nil {
			r.decorate(&issue, j, now)
		}
		issues = append(issues, issue)
	}
	return issues
}

// FormatAge renders a duration at day granularity above 24h, hour
// granularity above 60m, and minutes otherwise: "3 days", "5 hours",
// "12 minutes".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
}

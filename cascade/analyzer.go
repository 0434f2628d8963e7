// Package cascade analyzes the downstream schedule disruption caused by
// cancelling or rescheduling one job.
//
// The analysis is advisory only: it never blocks the destructive action, it
// produces the impact summary a confirmation surface shows before the
// caller proceeds. It is a pure function of the job snapshots passed in and
// is safe to run concurrently.
package cascade

import (
	"fmt"
	"time"

	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

// DefaultTravelBuffer is how close two same-day visits must be before one
// is assumed to depend on the other as an adjacent stop.
const DefaultTravelBuffer = 2 * time.Hour

// Options tunes the affected-job selection heuristic.
type Options struct {
	// TravelBuffer overrides DefaultTravelBuffer when positive.
	TravelBuffer time.Duration

	// Timezone is the zone used for calendar-day comparison. Falls back
	// to the subject job's provider zone, then UTC.
	Timezone string
}

// Affected is one job whose feasibility assumptions are invalidated by
// removing the subject, with a human-readable reason.
type Affected struct {
	Job    *job.Job `json:"job"`
	Reason string   `json:"reason"`
}

// Impact is the structured result consumed by a pre-confirmation warning.
type Impact struct {
	Subject       *job.Job   `json:"subject"`
	AffectedJobs  []Affected `json:"affected_jobs"`
	TotalAffected int        `json:"total_affected"`
	Summary       string     `json:"summary,omitempty"`
}

// HasImpact reports whether any other job is put at risk.
func (i *Impact) HasImpact() bool {
	return i != nil && len(i.AffectedJobs) > 0
}

// AnalyzeCancellationImpact determines which of the provider's other
// scheduled jobs are put at risk by cancelling the subject.
//
// Heuristic: a job is affected when it is scheduled on the same calendar
// day (in the provider's zone) within the travel buffer of a cancelled
// visit (its travel window assumed the subject as an adjacent stop), or
// when a multi-day schedule on either side spans the other's day.
func AnalyzeCancellationImpact(subject *job.Job, all []*job.Job, opts Options) *Impact {
	impact := &Impact{Subject: subject, AffectedJobs: []Affected{}}
	if subject == nil {
		return impact
	}

	buffer := opts.TravelBuffer
	if buffer <= 0 {
		buffer = DefaultTravelBuffer
	}
	tz := opts.Timezone
	if tz == "" {
		tz = subject.Timezone
	}
	if tz == "" {
		tz = "UTC"
	}

	visits := subjectVisits(subject)

	for _, other := range all {
		if other == nil || other.ID == subject.ID {
			continue
		}
		if other.Status.Terminal() {
			continue
		}
		if subject.ContractorID != "" && other.ContractorID != "" &&
			other.ContractorID != subject.ContractorID {
			continue
		}

		if reason := affectedReason(visits, other, buffer, tz); reason != "" {
			impact.AffectedJobs = append(impact.AffectedJobs, Affected{Job: other, Reason: reason})
		}
	}

	impact.TotalAffected = len(impact.AffectedJobs)
	if impact.TotalAffected > 0 {
		noun := "jobs"
		if impact.TotalAffected == 1 {
			noun = "job"
		}
		impact.Summary = fmt.Sprintf("Cancelling %q affects %d other scheduled %s on this provider's calendar",
			subject.Title, impact.TotalAffected, noun)
	}
	return impact
}

// subjectVisits collects every instant the subject occupies on the
// provider's calendar: the confirmed time plus each multi-day segment.
func subjectVisits(subject *job.Job) []time.Time {
	var visits []time.Time
	if subject.ScheduledTime.IsSet() {
		visits = append(visits, subject.ScheduledTime.Time)
	} else if subject.ScheduledDate.IsSet() {
		visits = append(visits, subject.ScheduledDate.Time)
	}
	if subject.MultiDay != nil {
		for _, seg := range subject.MultiDay.Segments {
			if seg.Date.IsSet() {
				visits = append(visits, seg.Date.Time)
			}
		}
	}
	return visits
}

func affectedReason(visits []time.Time, other *job.Job, buffer time.Duration, tz string) string {
	otherTime := other.ScheduledTime
	if !otherTime.IsSet() {
		otherTime = other.ScheduledDate
	}

	for _, visit := range visits {
		if otherTime.IsSet() {
			sameDay, err := tzdate.SameDay(visit, otherTime.Time, tz)
			if err != nil {
				continue
			}
			if sameDay && absDiff(visit, otherTime.Time) <= buffer {
				return fmt.Sprintf("scheduled within %s of the cancelled visit on %s; its travel window assumed this stop",
					bufferLabel(buffer), tzdate.FormatDate(visit, tz))
			}
		}

		if other.MultiDay != nil && spansDay(other.MultiDay, visit, tz) {
			return fmt.Sprintf("its multi-day schedule spans %s, the day freed by the cancellation",
				tzdate.FormatDate(visit, tz))
		}
	}
	return ""
}

// spansDay reports whether any segment of the schedule falls on the same
// calendar day as the instant.
func spansDay(m *job.MultiDaySchedule, day time.Time, tz string) bool {
	for _, seg := range m.Segments {
		if !seg.Date.IsSet() {
			continue
		}
		if same, err := tzdate.SameDay(seg.Date.Time, day, tz); err == nil && same {
			return true
		}
	}
	if m.StartDate.IsSet() && m.EndDate.IsSet() {
		return !day.Before(m.StartDate.Time) && !day.After(m.EndDate.Time.Add(24*time.Hour))
	}
	return false
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func bufferLabel(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

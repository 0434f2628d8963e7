// Package job defines the service-job record and its lifecycle rules.
//
// A Job tracks a single service engagement between a provider (contractor)
// and a customer from initial request through time negotiation, estimate
// approval, execution, and completion or cancellation. The transition table
// and action permission checks in this package are the single source of
// truth for what any component may do to a job.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/dispatch/tzdate"
)

// Status represents the current lifecycle state of a job
type Status string

const (
	StatusPending               Status = "pending"
	StatusAccepted              Status = "accepted"
	StatusConfirmed             Status = "confirmed"
	StatusQuoted                Status = "quoted"
	StatusScheduling            Status = "scheduling"
	StatusScheduled             Status = "scheduled"
	StatusInProgress            Status = "in_progress"
	StatusPendingCompletion     Status = "pending_completion"
	StatusRevisionRequested     Status = "revision_requested"
	StatusCancellationRequested Status = "cancellation_requested"
	StatusCompleted             Status = "completed"
	StatusCancelled             Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusConfirmed, StatusQuoted,
		StatusScheduling, StatusScheduled, StatusInProgress,
		StatusPendingCompletion, StatusRevisionRequested,
		StatusCancellationRequested, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is absorbing: no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Party identifies which side of the engagement performed an action
type Party string

const (
	PartyProvider Party = "provider"
	PartyCustomer Party = "customer"
)

// Proposal is an immutable candidate date/time submitted by one party for
// the other to accept. Proposals live in Job.ProposedTimes, which only ever
// appends: it is a negotiation history, never rewritten.
type Proposal struct {
	Date       tzdate.Timestamp `json:"date"`
	ProposedBy Party            `json:"proposed_by"`
	CreatedAt  tzdate.Timestamp `json:"created_at"`
}

// SlotStatus tracks whether an offered slot is still open
type SlotStatus string

const (
	SlotOffered SlotStatus = "offered"
	SlotTaken   SlotStatus = "taken"
)

// OfferedSlot is a discrete provider-published time window awaiting
// customer selection, as opposed to a free-form proposal.
type OfferedSlot struct {
	Start  tzdate.Timestamp `json:"start"`
	End    tzdate.Timestamp `json:"end"`
	Status SlotStatus       `json:"status"`
}

// EstimateStatus tracks customer approval of an estimate
type EstimateStatus string

const (
	EstimatePending  EstimateStatus = "pending"
	EstimateApproved EstimateStatus = "approved"
)

// Estimate is a provider-quoted price awaiting customer approval.
// Approval unlocks scheduling; it does not itself schedule.
type Estimate struct {
	Amount float64        `json:"amount"`
	Status EstimateStatus `json:"status"`
}

// DaySegment is one calendar day of a multi-day schedule with the
// recurring daily window rendered as wall-clock strings.
type DaySegment struct {
	Date      tzdate.Timestamp `json:"date"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
}

// MultiDaySchedule represents a job spanning multiple calendar days with a
// recurring daily window.
type MultiDaySchedule struct {
	StartDate tzdate.Timestamp `json:"start_date"`
	EndDate   tzdate.Timestamp `json:"end_date"`
	TotalDays int              `json:"total_days"`
	Segments  []DaySegment     `json:"segments"`
}

// Describe renders the schedule for display, e.g.
// "5 days • Jun 15 – Jun 19 • 9:00 AM – 5:00 PM daily".
func (m *MultiDaySchedule) Describe(tz string) string {
	if m == nil {
		return ""
	}
	dayWord := "days"
	if m.TotalDays == 1 {
		dayWord = "day"
	}
	daily := ""
	if len(m.Segments) > 0 {
		daily = fmt.Sprintf(" • %s – %s daily", m.Segments[0].StartTime, m.Segments[0].EndTime)
	}
	return fmt.Sprintf("%d %s • %s – %s%s",
		m.TotalDays, dayWord,
		m.StartDate.In(location(tz)).Format("Jan 2"),
		m.EndDate.In(location(tz)).Format("Jan 2"),
		daily)
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CancellationRequest records a party asking for the job to be cancelled,
// pending the other side's decision.
type CancellationRequest struct {
	RequestedAt tzdate.Timestamp `json:"requested_at"`
	RequestedBy Party            `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
}

// Cancellation records a confirmed cancellation.
type Cancellation struct {
	CancelledAt tzdate.Timestamp `json:"cancelled_at"`
	CancelledBy Party            `json:"cancelled_by"`
	Reason      string           `json:"reason,omitempty"`
}

// RevisionRequest records the customer sending completed work back.
type RevisionRequest struct {
	RequestedAt tzdate.Timestamp `json:"requested_at"`
	Notes       string           `json:"notes,omitempty"`
}

// Completion records the provider submitting work for customer review.
type Completion struct {
	SubmittedAt     tzdate.Timestamp `json:"submitted_at"`
	Notes           string           `json:"notes,omitempty"`
	RevisionRequest *RevisionRequest `json:"revision_request,omitempty"`
}

// Job is the central entity: a single service engagement tracked through
// its full lifecycle. Both parties read and write the same record; every
// write goes through the transition guard and an optimistic-concurrency
// check on Version.
type Job struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       Status `json:"status"`
	ContractorID string `json:"contractor_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`

	// Timezone is the provider-configured IANA zone for this job, used
	// when a negotiation action does not carry an explicit zone.
	Timezone string `json:"timezone,omitempty"`

	// ScheduledTime is non-zero if and only if the job is scheduled
	// (or carries a multi-day schedule).
	ScheduledTime tzdate.Timestamp  `json:"scheduled_time,omitempty"`
	ScheduledDate tzdate.Timestamp  `json:"scheduled_date,omitempty"`
	MultiDay      *MultiDaySchedule `json:"multi_day_schedule,omitempty"`

	ProposedTimes []Proposal    `json:"proposed_times,omitempty"`
	OfferedSlots  []OfferedSlot `json:"offered_slots,omitempty"`
	ConfirmedSlot *OfferedSlot  `json:"confirmed_slot,omitempty"`
	Estimate      *Estimate     `json:"estimate,omitempty"`

	CancellationRequest *CancellationRequest `json:"cancellation_request,omitempty"`
	Cancellation        *Cancellation        `json:"cancellation,omitempty"`
	Completion          *Completion          `json:"completion,omitempty"`

	// HomeownerLookupPending marks a job whose customer record has not
	// been linked to an account yet.
	HomeownerLookupPending bool `json:"homeowner_lookup_pending,omitempty"`

	AcceptedAt   tzdate.Timestamp `json:"accepted_at,omitempty"`
	LastActivity tzdate.Timestamp `json:"last_activity,omitempty"`
	CreatedAt    tzdate.Timestamp `json:"created_at"`
	UpdatedAt    tzdate.Timestamp `json:"updated_at"`

	// Version is the optimistic-concurrency token, checked and
	// incremented by the store on every write.
	Version int64 `json:"version"`
}

// NewJob creates a pending job for a customer request
func NewJob(title string, customerID string, customerName string, now time.Time) *Job {
	return &Job{
		ID:           "JOB_" + uuid.NewString(),
		Title:        title,
		Status:       StatusPending,
		CustomerID:   customerID,
		CustomerName: customerName,
		LastActivity: tzdate.At(now),
		CreatedAt:    tzdate.At(now),
		UpdatedAt:    tzdate.At(now),
		Version:      1,
	}
}

// HasOpenOfferedSlots reports whether any published slot is still awaiting
// customer selection. A job with open slots uses the offered-slot
// negotiation path; free-form proposals are excluded for it.
func (j *Job) HasOpenOfferedSlots() bool {
	for _, slot := range j.OfferedSlots {
		if slot.Status == SlotOffered {
			return true
		}
	}
	return false
}

// Touch records activity on the job
func (j *Job) Touch(now time.Time) {
	j.LastActivity = tzdate.At(now)
	j.UpdatedAt = tzdate.At(now)
}

// Clone returns a deep copy. Negotiation actions mutate a clone and persist
// it, so a failed write leaves the caller's job unchanged.
func (j *Job) Clone() *Job {
	c := *j

	if j.ProposedTimes != nil {
		c.ProposedTimes = make([]Proposal, len(j.ProposedTimes))
		copy(c.ProposedTimes, j.ProposedTimes)
	}
	if j.OfferedSlots != nil {
		c.OfferedSlots = make([]OfferedSlot, len(j.OfferedSlots))
		copy(c.OfferedSlots, j.OfferedSlots)
	}
	if j.ConfirmedSlot != nil {
		slot := *j.ConfirmedSlot
		c.ConfirmedSlot = &slot
	}
	if j.Estimate != nil {
		est := *j.Estimate
		c.Estimate = &est
	}
	if j.CancellationRequest != nil {
		req := *j.CancellationRequest
		c.CancellationRequest = &req
	}
	if j.Cancellation != nil {
		can := *j.Cancellation
		c.Cancellation = &can
	}
	if j.Completion != nil {
		comp := *j.Completion
		if j.Completion.RevisionRequest != nil {
			rev := *j.Completion.RevisionRequest
			comp.RevisionRequest = &rev
		}
		c.Completion = &comp
	}
	if j.MultiDay != nil {
		md := *j.MultiDay
		if j.MultiDay.Segments != nil {
			md.Segments = make([]DaySegment, len(j.MultiDay.Segments))
			copy(md.Segments, j.MultiDay.Segments)
		}
		c.MultiDay = &md
	}

	return &c
}

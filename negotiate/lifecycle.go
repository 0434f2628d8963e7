package negotiate

import (
	"context"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

// AcceptJob is the provider taking on a pending request. Binds the
// contractor and stamps AcceptedAt, which the staleness detector uses for
// the unscheduled dwell clock.
func (s *Service) AcceptJob(ctx context.Context, jobID string, providerID string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusAccepted); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusAccepted
	updated.AcceptedAt = tzdate.At(now)
	if updated.ContractorID == "" && providerID != "" {
		updated.ContractorID = providerID
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "accept job"); err != nil {
		return nil, err
	}
	s.log.Infow("job accepted", "job_id", updated.ID, "provider_id", updated.ContractorID)
	return updated, nil
}

// ConfirmJob moves an accepted job to confirmed.
func (s *Service) ConfirmJob(ctx context.Context, jobID string) (*job.Job, error) {
	return s.transitionOnly(ctx, jobID, job.StatusConfirmed, "confirm job")
}

// StartWork moves a scheduled job into execution. Blocked while a
// cancellation request is pending, independent of the transition table.
func (s *Service) StartWork(ctx context.Context, jobID string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardAction(current, job.ActionStartWork); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusInProgress); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusInProgress
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "start work"); err != nil {
		return nil, err
	}
	s.log.Infow("work started", "job_id", updated.ID)
	return updated, nil
}

// SubmitCompletion submits finished work for customer review. Submitting
// again after a revision request clears the open revision.
func (s *Service) SubmitCompletion(ctx context.Context, jobID string, notes string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardAction(current, job.ActionComplete); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusPendingCompletion); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusPendingCompletion
	updated.Completion = &job.Completion{
		SubmittedAt: tzdate.At(now),
		Notes:       notes,
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "submit completion"); err != nil {
		return nil, err
	}
	s.log.Infow("completion submitted", "job_id", updated.ID)
	return updated, nil
}

// RequestRevision is the customer sending submitted work back.
func (s *Service) RequestRevision(ctx context.Context, jobID string, notes string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Completion == nil {
		return nil, errors.NewValidationError("job %s has no submitted work to revise", jobID)
	}
	if err := guardTransition(current, job.StatusRevisionRequested); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusRevisionRequested
	updated.Completion.RevisionRequest = &job.RevisionRequest{
		RequestedAt: tzdate.At(now),
		Notes:       notes,
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "request revision"); err != nil {
		return nil, err
	}
	s.log.Infow("revision requested", "job_id", updated.ID)
	return updated, nil
}

// ApproveCompletion accepts submitted work and closes the job.
func (s *Service) ApproveCompletion(ctx context.Context, jobID string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardAction(current, job.ActionComplete); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusCompleted); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusCompleted
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "approve completion"); err != nil {
		return nil, err
	}
	s.log.Infow("job completed", "job_id", updated.ID)
	return updated, nil
}

// RequestCancellation records one party asking for the job to be
// cancelled, pending the other side's decision.
func (s *Service) RequestCancellation(ctx context.Context, jobID string, requestedBy job.Party, reason string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusCancellationRequested); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusCancellationRequested
	updated.CancellationRequest = &job.CancellationRequest{
		RequestedAt: tzdate.At(now),
		RequestedBy: requestedBy,
		Reason:      reason,
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "request cancellation"); err != nil {
		return nil, err
	}
	s.log.Infow("cancellation requested", "job_id", updated.ID, "requested_by", requestedBy)
	return updated, nil
}

// DenyCancellationRequest restores a job from cancellation_requested back
// to its prior footing: scheduled when a schedule exists, confirmed
// otherwise.
func (s *Service) DenyCancellationRequest(ctx context.Context, jobID string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Status != job.StatusCancellationRequested {
		return nil, errors.NewValidationError("job %s has no pending cancellation request", jobID)
	}

	restored := job.StatusConfirmed
	if current.ScheduledTime.IsSet() || current.MultiDay != nil {
		restored = job.StatusScheduled
	}
	if err := guardTransition(current, restored); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = restored
	updated.CancellationRequest = nil
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "deny cancellation request"); err != nil {
		return nil, err
	}
	s.log.Infow("cancellation request denied", "job_id", updated.ID, "restored_to", restored)
	return updated, nil
}

// CancelJob cancels the job and nulls out all scheduling fields.
//
// When the job already holds a confirmed schedule, the caller must have
// run the cancellation impact analysis and acknowledged it. The analysis
// is advisory: acknowledgement is required, agreement is not.
func (s *Service) CancelJob(ctx context.Context, jobID string, cancelledBy job.Party, reason string, impactAcknowledged bool) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardAction(current, job.ActionCancel); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusCancelled); err != nil {
		return nil, err
	}

	hasSchedule := current.ScheduledTime.IsSet() || current.MultiDay != nil
	if hasSchedule && !impactAcknowledged {
		return nil, errors.WithHint(
			errors.NewValidationError("job %s is scheduled; cancellation requires an acknowledged impact analysis", jobID),
			"run the cascade impact analysis and confirm before cancelling")
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = job.StatusCancelled
	updated.Cancellation = &job.Cancellation{
		CancelledAt: tzdate.At(now),
		CancelledBy: cancelledBy,
		Reason:      reason,
	}
	updated.ScheduledTime = tzdate.Timestamp{}
	updated.ScheduledDate = tzdate.Timestamp{}
	updated.MultiDay = nil
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "cancel job"); err != nil {
		return nil, err
	}
	s.log.Infow("job cancelled",
		"job_id", updated.ID,
		"cancelled_by", cancelledBy,
		"reason", reason)
	return updated, nil
}

// MultiDayRequest describes a job spanning consecutive calendar days with
// a recurring daily window.
type MultiDayRequest struct {
	StartDate string // "2025-06-15"
	TotalDays int
	DailyStart string // "9:00 AM"
	DailyEnd   string // "5:00 PM"
	Timezone   string
	ProviderID string
}

// ScheduleMultiDay confirms a multi-day schedule for the job, building one
// segment per calendar day.
func (s *Service) ScheduleMultiDay(ctx context.Context, jobID string, req MultiDayRequest) (*job.Job, error) {
	if req.TotalDays < 1 {
		return nil, errors.NewValidationError("total days must be at least 1")
	}
	if req.Timezone == "" {
		return nil, errors.NewValidationError("a timezone is required for a multi-day schedule")
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardAction(current, job.ActionSchedule); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusScheduled); err != nil {
		return nil, err
	}

	first, err := parseWallClock(req.StartDate, req.DailyStart, req.Timezone)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !first.After(now) {
		return nil, errors.NewValidationError("schedule start %s is in the past", tzdate.FormatDateTime(first, req.Timezone))
	}

	segments := make([]job.DaySegment, 0, req.TotalDays)
	for i := 0; i < req.TotalDays; i++ {
		segments = append(segments, job.DaySegment{
			Date:      tzdate.At(first.AddDate(0, 0, i)),
			StartTime: req.DailyStart,
			EndTime:   req.DailyEnd,
		})
	}

	updated := current.Clone()
	updated.MultiDay = &job.MultiDaySchedule{
		StartDate: segments[0].Date,
		EndDate:   segments[len(segments)-1].Date,
		TotalDays: req.TotalDays,
		Segments:  segments,
	}
	updated.ScheduledTime = segments[0].Date
	updated.ScheduledDate = segments[0].Date
	updated.Status = job.StatusScheduled
	if updated.ContractorID == "" && req.ProviderID != "" {
		updated.ContractorID = req.ProviderID
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "schedule multi-day"); err != nil {
		return nil, err
	}
	s.log.Infow("multi-day schedule confirmed",
		"job_id", updated.ID,
		"total_days", req.TotalDays,
		"schedule", updated.MultiDay.Describe(req.Timezone))
	return updated, nil
}

// transitionOnly applies a plain guarded status change with no extra
// record-keeping.
func (s *Service) transitionOnly(ctx context.Context, jobID string, next job.Status, action string) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(current, next); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Status = next
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, action); err != nil {
		return nil, err
	}
	s.log.Infow(action, "job_id", updated.ID, "status", next)
	return updated, nil
}

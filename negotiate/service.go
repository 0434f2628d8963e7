// Package negotiate implements the bilateral scheduling protocol that
// moves a job from pending through scheduling to scheduled.
//
// Two negotiation styles exist and are mutually exclusive per job:
// free-form proposal/acceptance, and discrete provider-offered slots the
// customer picks from. Every action validates against the current
// persisted job state at write time and persists with an optimistic
// version check, so two racing sessions cannot both win: the loser gets
// ErrConflict and must re-read.
package negotiate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

// DefaultHorizonMonths is how far ahead a time may be proposed.
const DefaultHorizonMonths = 6

// Store abstracts the job-record persistence the protocol writes through.
// Update must compare-and-swap on the expected version, returning
// errors.ErrConflict when the record changed since it was read.
type Store interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Update(ctx context.Context, j *job.Job, expectedVersion int64) error
}

// ProviderZones resolves a provider's configured IANA timezone.
// An empty string means no zone is configured.
type ProviderZones interface {
	Timezone(providerID string) string
}

// Service coordinates negotiation actions over a job store.
type Service struct {
	store         Store
	zones         ProviderZones
	log           *zap.SugaredLogger
	now           func() time.Time
	horizonMonths int
	defaultZone   string
}

// NewService creates a negotiation service with the default 6-month
// scheduling horizon.
func NewService(store Store, log *zap.SugaredLogger) *Service {
	return &Service{
		store:         store,
		log:           log,
		now:           time.Now,
		horizonMonths: DefaultHorizonMonths,
	}
}

// WithProviderZones attaches a provider timezone directory.
func (s *Service) WithProviderZones(zones ProviderZones) *Service {
	s.zones = zones
	return s
}

// WithDefaultTimezone sets a last-resort zone used when neither the
// request, the job, nor the provider directory yields one.
func (s *Service) WithDefaultTimezone(tz string) *Service {
	s.defaultZone = tz
	return s
}

// WithClock overrides the time source, for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithHorizonMonths overrides the scheduling horizon.
func (s *Service) WithHorizonMonths(months int) *Service {
	if months > 0 {
		s.horizonMonths = months
	}
	return s
}

// ProposeTimeRequest is a free-form candidate time from one party.
type ProposeTimeRequest struct {
	Date       string    // wall-clock date, "2025-06-15"
	Time       string    // wall-clock time, "09:00" or "9:00 AM"
	ProposedBy job.Party
	ProviderID string // binds the contractor on a provider's first action

	// Timezone resolution order: explicit Timezone, then the provider's
	// configured zone, then the caller's DetectedTimezone.
	Timezone         string
	DetectedTimezone string
}

// ProposeTime appends a candidate time to the job's negotiation history and
// moves it into scheduling. The proposal history only ever appends; a
// failed write leaves it untouched.
func (s *Service) ProposeTime(ctx context.Context, jobID string, req ProposeTimeRequest) (*job.Job, error) {
	if req.Date == "" || req.Time == "" {
		return nil, errors.NewValidationError("both date and time are required")
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if current.HasOpenOfferedSlots() {
		return nil, errors.NewValidationError("job %s has open offered slots; pick a slot instead of proposing a time", jobID)
	}
	if err := guardAction(current, job.ActionSchedule); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusScheduling); err != nil {
		return nil, err
	}

	tz, err := s.resolveTimezone(req, current)
	if err != nil {
		return nil, err
	}
	instant, err := parseWallClock(req.Date, req.Time, tz)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !instant.After(now) {
		return nil, errors.NewValidationError("proposed time %s is in the past", tzdate.FormatDateTime(instant, tz))
	}
	if instant.After(now.AddDate(0, s.horizonMonths, 0)) {
		return nil, errors.NewValidationError("proposed time %s is more than %d months ahead", tzdate.FormatDateTime(instant, tz), s.horizonMonths)
	}

	updated := current.Clone()
	updated.ProposedTimes = append(updated.ProposedTimes, job.Proposal{
		Date:       tzdate.At(instant),
		ProposedBy: req.ProposedBy,
		CreatedAt:  tzdate.At(now),
	})
	updated.Status = job.StatusScheduling
	if req.ProposedBy == job.PartyProvider && updated.ContractorID == "" && req.ProviderID != "" {
		updated.ContractorID = req.ProviderID
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "propose time"); err != nil {
		return nil, err
	}

	s.log.Infow("time proposed",
		"job_id", updated.ID,
		"proposed_by", req.ProposedBy,
		"proposed_for", tzdate.FormatDateTime(instant, tz),
		"timezone", tz,
		"proposal_count", len(updated.ProposedTimes))
	return updated, nil
}

// AcceptTime confirms a previously proposed time. Only the party that did
// not author the proposal may accept it. Accepting an already-accepted
// proposal is idempotent.
func (s *Service) AcceptTime(ctx context.Context, jobID string, proposalIndex int, acceptedBy job.Party) (*job.Job, error) {
	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if proposalIndex < 0 || proposalIndex >= len(current.ProposedTimes) {
		return nil, errors.NewValidationError("job %s has no proposal at index %d", jobID, proposalIndex)
	}
	proposal := current.ProposedTimes[proposalIndex]
	if proposal.ProposedBy == acceptedBy {
		return nil, errors.NewPermissionError("the %s cannot accept their own proposal", acceptedBy)
	}

	// Duplicate submission of the same acceptance is a no-op
	if current.Status == job.StatusScheduled && current.ScheduledTime.IsSet() &&
		current.ScheduledTime.Time.Equal(proposal.Date.Time) {
		return current, nil
	}

	if err := guardTransition(current, job.StatusScheduled); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.ScheduledTime = proposal.Date
	updated.ScheduledDate = proposal.Date
	updated.Status = job.StatusScheduled
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "accept time"); err != nil {
		return nil, err
	}

	s.log.Infow("proposal accepted",
		"job_id", updated.ID,
		"accepted_by", acceptedBy,
		"scheduled_for", updated.ScheduledTime.Time)
	return updated, nil
}

// Window is a candidate time range for an offered slot.
type Window struct {
	Start time.Time
	End   time.Time
}

// OfferSlots publishes discrete provider slots for the customer to pick
// from. This path excludes free-form proposals for the job.
func (s *Service) OfferSlots(ctx context.Context, jobID string, providerID string, windows []Window) (*job.Job, error) {
	if len(windows) == 0 {
		return nil, errors.NewValidationError("at least one slot is required")
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if len(current.ProposedTimes) > 0 {
		return nil, errors.NewValidationError("job %s already has free-form proposals; offered slots are excluded", jobID)
	}
	if err := guardAction(current, job.ActionSchedule); err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusScheduling); err != nil {
		return nil, err
	}

	now := s.now()
	slots := make([]job.OfferedSlot, 0, len(windows))
	for i, w := range windows {
		if w.Start.IsZero() || w.End.IsZero() {
			return nil, errors.NewValidationError("slot %d is missing a start or end", i)
		}
		if !w.End.After(w.Start) {
			return nil, errors.NewValidationError("slot %d ends before it starts", i)
		}
		if !w.Start.After(now) {
			return nil, errors.NewValidationError("slot %d starts in the past", i)
		}
		slots = append(slots, job.OfferedSlot{
			Start:  tzdate.At(w.Start),
			End:    tzdate.At(w.End),
			Status: job.SlotOffered,
		})
	}

	updated := current.Clone()
	updated.OfferedSlots = append(updated.OfferedSlots, slots...)
	updated.Status = job.StatusScheduling
	if updated.ContractorID == "" && providerID != "" {
		updated.ContractorID = providerID
	}
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "offer slots"); err != nil {
		return nil, err
	}

	s.log.Infow("slots offered",
		"job_id", updated.ID,
		"provider_id", updated.ContractorID,
		"slot_count", len(slots))
	return updated, nil
}

// SelectSlot is the customer picking one offered slot. The slot is marked
// taken and mirrored into the confirmed schedule.
func (s *Service) SelectSlot(ctx context.Context, jobID string, slotIndex int, selectedBy job.Party) (*job.Job, error) {
	if selectedBy != job.PartyCustomer {
		return nil, errors.NewPermissionError("only the customer may select an offered slot")
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if slotIndex < 0 || slotIndex >= len(current.OfferedSlots) {
		return nil, errors.NewValidationError("job %s has no offered slot at index %d", jobID, slotIndex)
	}
	slot := current.OfferedSlots[slotIndex]
	if slot.Status != job.SlotOffered {
		return nil, errors.NewValidationError("slot %d has already been taken", slotIndex)
	}
	if err := guardTransition(current, job.StatusScheduled); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.OfferedSlots[slotIndex].Status = job.SlotTaken
	taken := updated.OfferedSlots[slotIndex]
	updated.ConfirmedSlot = &taken
	updated.ScheduledTime = slot.Start
	updated.ScheduledDate = slot.Start
	updated.Status = job.StatusScheduled
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "select slot"); err != nil {
		return nil, err
	}

	s.log.Infow("slot selected",
		"job_id", updated.ID,
		"slot_start", slot.Start.Time,
		"slot_end", slot.End.Time)
	return updated, nil
}

// SendEstimate records a provider quote awaiting customer approval and
// moves the job to quoted.
func (s *Service) SendEstimate(ctx context.Context, jobID string, amount string, sentBy job.Party) (*job.Job, error) {
	if sentBy != job.PartyProvider {
		return nil, errors.NewPermissionError("only the provider may send an estimate")
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || parsed <= 0 {
		return nil, errors.NewValidationError("estimate amount %q must be a positive number", amount)
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(current, job.StatusQuoted); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Estimate = &job.Estimate{Amount: parsed, Status: job.EstimatePending}
	updated.Status = job.StatusQuoted
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "send estimate"); err != nil {
		return nil, err
	}

	s.log.Infow("estimate sent", "job_id", updated.ID, "amount", parsed)
	return updated, nil
}

// ApproveEstimate marks the estimate approved and unlocks scheduling.
// Approval does not itself schedule anything.
func (s *Service) ApproveEstimate(ctx context.Context, jobID string, approvedBy job.Party) (*job.Job, error) {
	if approvedBy != job.PartyCustomer {
		return nil, errors.NewPermissionError("only the customer may approve an estimate")
	}

	current, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Estimate == nil {
		return nil, errors.NewValidationError("job %s has no estimate to approve", jobID)
	}
	if current.Estimate.Status == job.EstimateApproved {
		return current, nil
	}
	if err := guardTransition(current, job.StatusScheduling); err != nil {
		return nil, err
	}

	now := s.now()
	updated := current.Clone()
	updated.Estimate.Status = job.EstimateApproved
	updated.Status = job.StatusScheduling
	updated.Touch(now)

	if err := s.persist(ctx, updated, current.Version, "approve estimate"); err != nil {
		return nil, err
	}

	s.log.Infow("estimate approved", "job_id", updated.ID, "amount", updated.Estimate.Amount)
	return updated, nil
}

// resolveTimezone applies the zone priority order: explicit parameter,
// the job's zone, provider's configured zone, caller's detected zone,
// then the service-wide default.
func (s *Service) resolveTimezone(req ProposeTimeRequest, current *job.Job) (string, error) {
	if req.Timezone != "" {
		return req.Timezone, nil
	}
	if current.Timezone != "" {
		return current.Timezone, nil
	}
	if s.zones != nil {
		providerID := current.ContractorID
		if providerID == "" {
			providerID = req.ProviderID
		}
		if providerID != "" {
			if tz := s.zones.Timezone(providerID); tz != "" {
				return tz, nil
			}
		}
	}
	if req.DetectedTimezone != "" {
		return req.DetectedTimezone, nil
	}
	if s.defaultZone != "" {
		return s.defaultZone, nil
	}
	return "", errors.NewValidationError("no timezone available: pass one explicitly or configure the provider's zone")
}

// parseWallClock builds a canonical instant from wall-clock date and time
// strings plus an IANA zone.
func parseWallClock(dateStr, timeStr, tz string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, errors.NewValidationError("date %q must look like 2025-06-15", dateStr)
	}

	var clock time.Time
	parsed := false
	for _, layout := range []string{"15:04", "3:04 PM", "3:04PM", "15:04:05"} {
		if clock, err = time.Parse(layout, strings.ToUpper(strings.TrimSpace(timeStr))); err == nil {
			parsed = true
			break
		}
	}
	if !parsed {
		return time.Time{}, errors.NewValidationError("time %q must look like 09:00 or 9:00 AM", timeStr)
	}

	return tzdate.DateIn(day.Year(), int(day.Month()), day.Day(), clock.Hour(), clock.Minute(), tz)
}

// persist writes the updated job with a version check, translating nothing:
// the store already returns typed conflict/unavailable errors.
func (s *Service) persist(ctx context.Context, updated *job.Job, expectedVersion int64, action string) error {
	if err := s.store.Update(ctx, updated, expectedVersion); err != nil {
		return errors.Wrapf(err, "%s for job %s", action, updated.ID)
	}
	return nil
}

func guardAction(j *job.Job, action job.Action) error {
	if ok, reason := job.CanPerformAction(j, action); !ok {
		return errors.NewPermissionError("%s", reason)
	}
	return nil
}

func guardTransition(j *job.Job, next job.Status) error {
	if check := job.ValidateStatusTransition(j.Status, next); !check.Valid {
		return errors.NewValidationError("%s", check.Reason)
	}
	return nil
}

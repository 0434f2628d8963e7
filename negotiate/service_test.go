package negotiate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

// negotiationNow anchors every test clock so proposal validity is stable.
var negotiationNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store with the same compare-and-swap contract
// as the sqlite store.
type memStore struct {
	jobs     map[string]*job.Job
	failWith error
	updates  int
}

func newMemStore(jobs ...*job.Job) *memStore {
	m := &memStore{jobs: map[string]*job.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j.Clone()
	}
	return m
}

func (m *memStore) Get(ctx context.Context, id string) (*job.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	return j.Clone(), nil
}

func (m *memStore) Update(ctx context.Context, j *job.Job, expectedVersion int64) error {
	if m.failWith != nil {
		return m.failWith
	}
	stored, ok := m.jobs[j.ID]
	if !ok {
		return errors.NewNotFoundError("job %s", j.ID)
	}
	if stored.Version != expectedVersion {
		return errors.Wrapf(errors.ErrConflict, "job %s is at version %d, expected %d", j.ID, stored.Version, expectedVersion)
	}
	m.updates++
	saved := j.Clone()
	saved.Version = expectedVersion + 1
	m.jobs[j.ID] = saved
	j.Version = saved.Version
	return nil
}

func testService(store Store) *Service {
	return NewService(store, zap.NewNop().Sugar()).
		WithClock(func() time.Time { return negotiationNow })
}

func pendingJob(id string) *job.Job {
	j := job.NewJob("Water heater replacement", "CUST_1", "Dana Alvarez", negotiationNow.Add(-24*time.Hour))
	j.ID = id
	return j
}

func TestProposeTimeAppendsExactlyOneProposal(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	updated, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date:       "2025-06-15",
		Time:       "09:00",
		ProposedBy: job.PartyProvider,
		ProviderID: "PROV_1",
		Timezone:   "America/New_York",
	})
	require.NoError(t, err)

	require.Len(t, updated.ProposedTimes, 1)
	assert.Equal(t, job.StatusScheduling, updated.Status)
	assert.Equal(t, "PROV_1", updated.ContractorID, "provider binds on first action")
	assert.Equal(t, "2025-06-15 09:00", tzdate.FormatDateTime(updated.ProposedTimes[0].Date.Time, "America/New_York"))
	assert.True(t, updated.ProposedTimes[0].CreatedAt.Time.Equal(negotiationNow))
	assert.Equal(t, int64(2), updated.Version)
}

func TestProposeTimeRequiresDateAndTime(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	for _, req := range []ProposeTimeRequest{
		{Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC"},
		{Date: "2025-06-15", ProposedBy: job.PartyCustomer, Timezone: "UTC"},
	} {
		_, err := svc.ProposeTime(context.Background(), "JOB_1", req)
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	}
}

func TestProposeTimeRejectsPastAndBeyondHorizon(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-05-01", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "past")

	_, err = svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-12-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "months ahead")
}

func TestProposeTimeTimezoneResolutionOrder(t *testing.T) {
	// Provider zone is configured on the job; an explicit zone wins
	j := pendingJob("JOB_1")
	j.Timezone = "America/Chicago"
	svc := testService(newMemStore(j))

	updated, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer,
		Timezone:         "America/New_York",
		DetectedTimezone: "America/Los_Angeles",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 09:00", tzdate.FormatDateTime(updated.ProposedTimes[0].Date.Time, "America/New_York"))

	// Without an explicit zone the provider's configured zone applies
	updated, err = svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-16", Time: "09:00", ProposedBy: job.PartyCustomer,
		DetectedTimezone: "America/Los_Angeles",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16 09:00", tzdate.FormatDateTime(updated.ProposedTimes[1].Date.Time, "America/Chicago"))
}

func TestProposeTimeFallsBackToDetectedZone(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	updated, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "9:00 AM", ProposedBy: job.PartyCustomer,
		DetectedTimezone: "America/Denver",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 09:00", tzdate.FormatDateTime(updated.ProposedTimes[0].Date.Time, "America/Denver"))
}

type zoneDirectory map[string]string

func (z zoneDirectory) Timezone(providerID string) string { return z[providerID] }

func TestProposeTimeUsesProviderDirectory(t *testing.T) {
	j := pendingJob("JOB_1")
	j.ContractorID = "PROV_9"
	svc := testService(newMemStore(j)).
		WithProviderZones(zoneDirectory{"PROV_9": "America/Phoenix"})

	updated, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 09:00", tzdate.FormatDateTime(updated.ProposedTimes[0].Date.Time, "America/Phoenix"))
}

func TestProposeTimeUsesServiceDefaultZoneLast(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1"))).
		WithDefaultTimezone("America/Chicago")

	updated, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15 09:00", tzdate.FormatDateTime(updated.ProposedTimes[0].Date.Time, "America/Chicago"))
}

func TestProposeTimeWithoutAnyZoneFails(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))
	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestProposeTimeFailedWriteLeavesStateUnchanged(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	store.failWith = errors.WrapUnavailable(errors.New("connection reset"), "update job")
	svc := testService(store)

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.Error(t, err)
	assert.True(t, errors.IsUnavailableError(err), "caller must be able to offer a retry")

	// No partial append
	stored, getErr := store.Get(context.Background(), "JOB_1")
	require.NoError(t, getErr)
	assert.Empty(t, stored.ProposedTimes)
	assert.Equal(t, job.StatusPending, stored.Status)
}

func TestProposeTimeVersionConflictSurfacesTyped(t *testing.T) {
	j := pendingJob("JOB_1")
	store := newMemStore(j)
	svc := testService(store)

	// Another session advances the record between our read and write
	slow, err := store.Get(context.Background(), "JOB_1")
	require.NoError(t, err)
	_, err = svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.NoError(t, err)

	err = store.Update(context.Background(), slow, slow.Version)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestProposeTimeExcludedWhileSlotsAreOpen(t *testing.T) {
	j := pendingJob("JOB_1")
	j.OfferedSlots = []job.OfferedSlot{{
		Start:  tzdate.At(negotiationNow.Add(48 * time.Hour)),
		End:    tzdate.At(negotiationNow.Add(50 * time.Hour)),
		Status: job.SlotOffered,
	}}
	svc := testService(newMemStore(j))

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "offered slots")
}

func TestAcceptTimeRequiresTheOtherParty(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyProvider,
		ProviderID: "PROV_1", Timezone: "UTC",
	})
	require.NoError(t, err)

	_, err = svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyProvider)
	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err))

	updated, err := svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyCustomer)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, updated.Status)
	assert.True(t, updated.ScheduledTime.IsSet())
	assert.True(t, updated.ScheduledTime.Time.Equal(updated.ProposedTimes[0].Date.Time))
}

func TestAcceptTimeIsIdempotent(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyProvider,
		ProviderID: "PROV_1", Timezone: "UTC",
	})
	require.NoError(t, err)

	first, err := svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyCustomer)
	require.NoError(t, err)
	writesAfterFirst := store.updates

	second, err := svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyCustomer)
	require.NoError(t, err)
	assert.Equal(t, writesAfterFirst, store.updates, "duplicate acceptance must not write")
	assert.True(t, second.ScheduledTime.Time.Equal(first.ScheduledTime.Time))
}

func TestAcceptTimeIndexValidation(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))
	_, err := svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyCustomer)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestOfferAndSelectSlot(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	start := negotiationNow.Add(72 * time.Hour)
	updated, err := svc.OfferSlots(context.Background(), "JOB_1", "PROV_1", []Window{
		{Start: start, End: start.Add(2 * time.Hour)},
		{Start: start.Add(24 * time.Hour), End: start.Add(26 * time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduling, updated.Status)
	assert.Equal(t, "PROV_1", updated.ContractorID)
	require.Len(t, updated.OfferedSlots, 2)
	assert.True(t, updated.HasOpenOfferedSlots())

	// Provider cannot pick a slot
	_, err = svc.SelectSlot(context.Background(), "JOB_1", 0, job.PartyProvider)
	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err))

	confirmed, err := svc.SelectSlot(context.Background(), "JOB_1", 1, job.PartyCustomer)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, confirmed.Status)
	assert.Equal(t, job.SlotTaken, confirmed.OfferedSlots[1].Status)
	require.NotNil(t, confirmed.ConfirmedSlot)
	assert.True(t, confirmed.ScheduledTime.Time.Equal(start.Add(24*time.Hour)))

	// The taken slot cannot be picked again
	_, err = svc.SelectSlot(context.Background(), "JOB_1", 1, job.PartyCustomer)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestOfferSlotsValidation(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))
	start := negotiationNow.Add(72 * time.Hour)

	_, err := svc.OfferSlots(context.Background(), "JOB_1", "PROV_1", nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.OfferSlots(context.Background(), "JOB_1", "PROV_1", []Window{{Start: start, End: start.Add(-time.Hour)}})
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.OfferSlots(context.Background(), "JOB_1", "PROV_1", []Window{{Start: negotiationNow.Add(-time.Hour), End: negotiationNow}})
	assert.True(t, errors.IsValidationError(err))
}

func TestOfferSlotsExcludedAfterProposals(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.NoError(t, err)

	start := negotiationNow.Add(72 * time.Hour)
	_, err = svc.OfferSlots(context.Background(), "JOB_1", "PROV_1", []Window{{Start: start, End: start.Add(time.Hour)}})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSendAndApproveEstimate(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	quoted, err := svc.SendEstimate(context.Background(), "JOB_1", "450.00", job.PartyProvider)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQuoted, quoted.Status)
	require.NotNil(t, quoted.Estimate)
	assert.Equal(t, 450.0, quoted.Estimate.Amount)
	assert.Equal(t, job.EstimatePending, quoted.Estimate.Status)

	// Approval unlocks scheduling without scheduling anything
	approved, err := svc.ApproveEstimate(context.Background(), "JOB_1", job.PartyCustomer)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduling, approved.Status)
	assert.Equal(t, job.EstimateApproved, approved.Estimate.Status)
	assert.False(t, approved.ScheduledTime.IsSet())
}

func TestSendEstimateValidation(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	for _, amount := range []string{"", "free", "-10", "0"} {
		_, err := svc.SendEstimate(context.Background(), "JOB_1", amount, job.PartyProvider)
		require.Error(t, err, "amount %q", amount)
		assert.True(t, errors.IsValidationError(err), "amount %q", amount)
	}

	_, err := svc.SendEstimate(context.Background(), "JOB_1", "450", job.PartyCustomer)
	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err))
}

func TestApproveEstimateGuards(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	_, err := svc.ApproveEstimate(context.Background(), "JOB_1", job.PartyCustomer)
	assert.True(t, errors.IsValidationError(err), "no estimate yet")

	_, err = svc.ApproveEstimate(context.Background(), "JOB_1", job.PartyProvider)
	assert.True(t, errors.IsPermissionError(err), "provider cannot approve")
}

func TestUnknownJobIsNotFound(t *testing.T) {
	svc := testService(newMemStore())
	_, err := svc.AcceptTime(context.Background(), "JOB_missing", 0, job.PartyCustomer)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

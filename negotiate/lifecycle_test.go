package negotiate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/tzdate"
)

func scheduledFixture(store *memStore, svc *Service, t *testing.T) *job.Job {
	t.Helper()
	_, err := svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyProvider,
		ProviderID: "PROV_1", Timezone: "UTC",
	})
	require.NoError(t, err)
	scheduled, err := svc.AcceptTime(context.Background(), "JOB_1", 0, job.PartyCustomer)
	require.NoError(t, err)
	return scheduled
}

func TestAcceptAndConfirmJob(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	accepted, err := svc.AcceptJob(context.Background(), "JOB_1", "PROV_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusAccepted, accepted.Status)
	assert.Equal(t, "PROV_1", accepted.ContractorID)
	assert.True(t, accepted.AcceptedAt.Time.Equal(negotiationNow))

	confirmed, err := svc.ConfirmJob(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusConfirmed, confirmed.Status)
}

func TestFullLifecycleToCompletion(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)
	scheduledFixture(store, svc, t)

	inProgress, err := svc.StartWork(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, inProgress.Status)

	submitted, err := svc.SubmitCompletion(context.Background(), "JOB_1", "replaced the heater core")
	require.NoError(t, err)
	assert.Equal(t, job.StatusPendingCompletion, submitted.Status)
	require.NotNil(t, submitted.Completion)
	assert.True(t, submitted.Completion.SubmittedAt.Time.Equal(negotiationNow))

	revised, err := svc.RequestRevision(context.Background(), "JOB_1", "thermostat still reads low")
	require.NoError(t, err)
	assert.Equal(t, job.StatusRevisionRequested, revised.Status)
	require.NotNil(t, revised.Completion.RevisionRequest)

	// Resubmission clears the open revision
	resubmitted, err := svc.SubmitCompletion(context.Background(), "JOB_1", "recalibrated thermostat")
	require.NoError(t, err)
	assert.Equal(t, job.StatusPendingCompletion, resubmitted.Status)
	assert.Nil(t, resubmitted.Completion.RevisionRequest)

	done, err := svc.ApproveCompletion(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, done.Status)
}

func TestStartWorkBlockedDuringCancellationRequest(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)
	scheduledFixture(store, svc, t)

	_, err := svc.RequestCancellation(context.Background(), "JOB_1", job.PartyCustomer, "found another contractor")
	require.NoError(t, err)

	_, err = svc.StartWork(context.Background(), "JOB_1")
	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err))
}

func TestRequestRevisionNeedsSubmittedWork(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)
	scheduledFixture(store, svc, t)

	_, err := svc.RequestRevision(context.Background(), "JOB_1", "not started")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestCancellationRequestRoundTrip(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)
	scheduledFixture(store, svc, t)

	requested, err := svc.RequestCancellation(context.Background(), "JOB_1", job.PartyCustomer, "travel conflict")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancellationRequested, requested.Status)
	require.NotNil(t, requested.CancellationRequest)
	assert.Equal(t, job.PartyCustomer, requested.CancellationRequest.RequestedBy)

	// Denial restores the schedule, which still exists
	restored, err := svc.DenyCancellationRequest(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, restored.Status)
	assert.Nil(t, restored.CancellationRequest)
	assert.True(t, restored.ScheduledTime.IsSet())
}

func TestDenyCancellationRestoresConfirmedWithoutSchedule(t *testing.T) {
	j := pendingJob("JOB_1")
	j.Status = job.StatusAccepted
	store := newMemStore(j)
	svc := testService(store)

	_, err := svc.RequestCancellation(context.Background(), "JOB_1", job.PartyProvider, "overbooked")
	require.NoError(t, err)

	restored, err := svc.DenyCancellationRequest(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusConfirmed, restored.Status)
}

func TestCancelScheduledJobRequiresImpactAcknowledgement(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)
	scheduledFixture(store, svc, t)

	_, err := svc.CancelJob(context.Background(), "JOB_1", job.PartyCustomer, "moving away", false)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "impact")

	cancelled, err := svc.CancelJob(context.Background(), "JOB_1", job.PartyCustomer, "moving away", true)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, "moving away", cancelled.Cancellation.Reason)

	// All scheduling fields are nulled out
	assert.False(t, cancelled.ScheduledTime.IsSet())
	assert.False(t, cancelled.ScheduledDate.IsSet())
	assert.Nil(t, cancelled.MultiDay)
}

func TestCancelUnscheduledJobNeedsNoAcknowledgement(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	cancelled, err := svc.CancelJob(context.Background(), "JOB_1", job.PartyCustomer, "changed my mind", false)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)
}

func TestCancelledJobRejectsFurtherActions(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	_, err := svc.CancelJob(context.Background(), "JOB_1", job.PartyCustomer, "", false)
	require.NoError(t, err)

	_, err = svc.CancelJob(context.Background(), "JOB_1", job.PartyCustomer, "", true)
	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err))

	_, err = svc.ProposeTime(context.Background(), "JOB_1", ProposeTimeRequest{
		Date: "2025-06-15", Time: "09:00", ProposedBy: job.PartyCustomer, Timezone: "UTC",
	})
	require.Error(t, err)
}

func TestScheduleMultiDay(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	updated, err := svc.ScheduleMultiDay(context.Background(), "JOB_1", MultiDayRequest{
		StartDate:  "2025-06-16",
		TotalDays:  3,
		DailyStart: "9:00 AM",
		DailyEnd:   "5:00 PM",
		Timezone:   "America/New_York",
		ProviderID: "PROV_1",
	})
	require.NoError(t, err)

	assert.Equal(t, job.StatusScheduled, updated.Status)
	require.NotNil(t, updated.MultiDay)
	assert.Equal(t, 3, updated.MultiDay.TotalDays)
	require.Len(t, updated.MultiDay.Segments, 3)
	assert.True(t, updated.ScheduledTime.IsSet())
	assert.Equal(t, "3 days • Jun 16 – Jun 18 • 9:00 AM – 5:00 PM daily",
		updated.MultiDay.Describe("America/New_York"))

	// Consecutive days in the provider's zone
	want := []string{"2025-06-16", "2025-06-17", "2025-06-18"}
	for i, seg := range updated.MultiDay.Segments {
		assert.Equal(t, want[i], tzdate.FormatDate(seg.Date.Time, "America/New_York"))
	}
}

func TestScheduleMultiDayValidation(t *testing.T) {
	svc := testService(newMemStore(pendingJob("JOB_1")))

	_, err := svc.ScheduleMultiDay(context.Background(), "JOB_1", MultiDayRequest{
		StartDate: "2025-06-16", TotalDays: 0, DailyStart: "9:00 AM", DailyEnd: "5:00 PM", Timezone: "UTC",
	})
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.ScheduleMultiDay(context.Background(), "JOB_1", MultiDayRequest{
		StartDate: "2025-06-16", TotalDays: 2, DailyStart: "9:00 AM", DailyEnd: "5:00 PM",
	})
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.ScheduleMultiDay(context.Background(), "JOB_1", MultiDayRequest{
		StartDate: "2025-05-01", TotalDays: 2, DailyStart: "9:00 AM", DailyEnd: "5:00 PM", Timezone: "UTC",
	})
	assert.True(t, errors.IsValidationError(err))
}

func TestLifecycleWritesAdvanceVersion(t *testing.T) {
	store := newMemStore(pendingJob("JOB_1"))
	svc := testService(store)

	accepted, err := svc.AcceptJob(context.Background(), "JOB_1", "PROV_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), accepted.Version)

	confirmed, err := svc.ConfirmJob(context.Background(), "JOB_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), confirmed.Version)
}

package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch/tzdate"
)

func TestNewJobStartsPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	j := NewJob("Roof inspection", "CUST_9", "Sam Okafor", now)

	assert.Equal(t, StatusPending, j.Status)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, int64(1), j.Version)
	assert.True(t, j.CreatedAt.Time.Equal(now))
	assert.False(t, j.ScheduledTime.IsSet())
	assert.Empty(t, j.ProposedTimes)
}

func TestHasOpenOfferedSlots(t *testing.T) {
	j := NewJob("Fence repair", "CUST_2", "", time.Now())
	assert.False(t, j.HasOpenOfferedSlots())

	j.OfferedSlots = []OfferedSlot{{Status: SlotTaken}}
	assert.False(t, j.HasOpenOfferedSlots())

	j.OfferedSlots = append(j.OfferedSlots, OfferedSlot{Status: SlotOffered})
	assert.True(t, j.HasOpenOfferedSlots())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	j := NewJob("Deck build", "CUST_3", "", now)
	j.ProposedTimes = []Proposal{{ProposedBy: PartyProvider, CreatedAt: tzdate.At(now)}}
	j.Estimate = &Estimate{Amount: 1200, Status: EstimatePending}
	j.Completion = &Completion{
		SubmittedAt:     tzdate.At(now),
		RevisionRequest: &RevisionRequest{Notes: "trim the railing"},
	}
	j.MultiDay = &MultiDaySchedule{
		TotalDays: 3,
		Segments:  []DaySegment{{StartTime: "9:00 AM", EndTime: "5:00 PM"}},
	}

	c := j.Clone()
	c.ProposedTimes = append(c.ProposedTimes, Proposal{ProposedBy: PartyCustomer})
	c.Estimate.Status = EstimateApproved
	c.Completion.RevisionRequest.Notes = "changed"
	c.MultiDay.Segments[0].StartTime = "8:00 AM"

	require.Len(t, j.ProposedTimes, 1)
	assert.Equal(t, EstimatePending, j.Estimate.Status)
	assert.Equal(t, "trim the railing", j.Completion.RevisionRequest.Notes)
	assert.Equal(t, "9:00 AM", j.MultiDay.Segments[0].StartTime)
}

func TestMultiDayDescribe(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2025-06-15")
	end, _ := time.Parse("2006-01-02", "2025-06-19")
	m := &MultiDaySchedule{
		StartDate: tzdate.At(start),
		EndDate:   tzdate.At(end),
		TotalDays: 5,
		Segments: []DaySegment{
			{Date: tzdate.At(start), StartTime: "9:00 AM", EndTime: "5:00 PM"},
		},
	}

	assert.Equal(t, "5 days • Jun 15 – Jun 19 • 9:00 AM – 5:00 PM daily", m.Describe("UTC"))
}

func TestMultiDayDescribeSingleDayAndNil(t *testing.T) {
	day, _ := time.Parse("2006-01-02", "2025-06-15")
	m := &MultiDaySchedule{StartDate: tzdate.At(day), EndDate: tzdate.At(day), TotalDays: 1}
	assert.Equal(t, "1 day • Jun 15 – Jun 15", m.Describe("UTC"))

	var none *MultiDaySchedule
	assert.Equal(t, "", none.Describe("UTC"))
}

func TestTouchUpdatesActivity(t *testing.T) {
	j := NewJob("Gutter cleaning", "CUST_4", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	later := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	j.Touch(later)

	assert.True(t, j.LastActivity.Time.Equal(later))
	assert.True(t, j.UpdatedAt.Time.Equal(later))
}

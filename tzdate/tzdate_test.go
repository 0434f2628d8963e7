package tzdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch/errors"
)

func TestDateInRoundTrip(t *testing.T) {
	instant, err := DateIn(2025, 6, 15, 9, 0, "America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "2025-06-15 09:00", FormatDateTime(instant, "America/New_York"))
	assert.Equal(t, "2025-06-15", FormatDate(instant, "America/New_York"))
	assert.Equal(t, "9:00 AM", FormatTime(instant, "America/New_York"))
}

func TestDateInIndependentOfLocalZone(t *testing.T) {
	ny, err := DateIn(2025, 6, 15, 9, 0, "America/New_York")
	require.NoError(t, err)

	// 9:00 AM EDT is 13:00 UTC regardless of where the process runs
	assert.Equal(t, "2025-06-15 13:00", FormatDateTime(ny, "UTC"))

	tokyo, err := DateIn(2025, 6, 15, 9, 0, "Asia/Tokyo")
	require.NoError(t, err)
	assert.NotEqual(t, ny.Unix(), tokyo.Unix())
}

func TestDateInRejectsBadComponents(t *testing.T) {
	cases := []struct {
		name                          string
		year, month, day, hour, min   int
		tz                            string
	}{
		{"month zero", 2025, 0, 1, 0, 0, "UTC"},
		{"month thirteen", 2025, 13, 1, 0, 0, "UTC"},
		{"day overflow", 2025, 2, 30, 0, 0, "UTC"},
		{"hour overflow", 2025, 6, 15, 24, 0, "UTC"},
		{"minute overflow", 2025, 6, 15, 9, 60, "UTC"},
		{"unknown zone", 2025, 6, 15, 9, 0, "Mars/Olympus"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DateIn(tc.year, tc.month, tc.day, tc.hour, tc.min, tc.tz)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestDateInAcceptsLeapDay(t *testing.T) {
	instant, err := DateIn(2024, 2, 29, 12, 0, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29 12:00", FormatDateTime(instant, "UTC"))
}

func TestSpringForwardGapRollsForward(t *testing.T) {
	// 2:30 AM does not exist on 2025-03-09 in New York; the clock jumps
	// from 2:00 EST to 3:00 EDT.
	instant, err := DateIn(2025, 3, 9, 2, 30, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09 03:30", FormatDateTime(instant, "America/New_York"))
}

func TestSameDay(t *testing.T) {
	morning, err := DateIn(2025, 6, 15, 1, 0, "America/New_York")
	require.NoError(t, err)
	evening, err := DateIn(2025, 6, 15, 23, 0, "America/New_York")
	require.NoError(t, err)

	same, err := SameDay(morning, evening, "America/New_York")
	require.NoError(t, err)
	assert.True(t, same)

	// 1:00 AM June 15 in New York is still June 14 in Los Angeles
	same, err = SameDay(morning, evening, "America/Los_Angeles")
	require.NoError(t, err)
	assert.False(t, same)
}

func TestSameDayAcrossUTCMidnight(t *testing.T) {
	a := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	b := time.Date(2025, 6, 16, 0, 30, 0, 0, time.UTC)

	same, err := SameDay(a, b, "UTC")
	require.NoError(t, err)
	assert.False(t, same)

	// Both are the evening of June 15 in New York
	same, err = SameDay(a, b, "America/New_York")
	require.NoError(t, err)
	assert.True(t, same)
}

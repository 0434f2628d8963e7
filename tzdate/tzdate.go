// Package tzdate provides timezone-correct time construction and formatting.
//
// All scheduling components build instants through this package so that a
// wall-clock time entered by a user resolves to the same instant regardless
// of the machine's own local zone. Zones are IANA identifiers such as
// "America/New_York".
package tzdate

import (
	"time"

	"github.com/fieldops/dispatch/errors"
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "3:04 PM"
	dateTimeLayout = "2006-01-02 15:04"
)

// DateIn returns the instant whose wall-clock representation in the IANA
// zone tz equals the given components, independent of the process's local
// zone.
//
// DST policy: a wall-clock time inside a spring-forward gap rolls forward
// past the gap (2:30 AM on a day where 2:00 jumps to 3:00 resolves to
// 3:30 AM). A fall-back ambiguous time resolves to the occurrence the
// platform zoneinfo lookup yields, which is deterministic for a given
// tzdata version.
func DateIn(year int, month int, day int, hour int, minute int, tz string) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, errors.NewValidationError("month %d out of range", month)
	}
	if day < 1 || day > daysInMonth(year, time.Month(month)) {
		return time.Time{}, errors.NewValidationError("day %d out of range for %d-%02d", day, year, month)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, errors.NewValidationError("time %02d:%02d out of range", hour, minute)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrValidation, errors.Wrapf(err, "unknown timezone %q", tz).Error())
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), nil
}

// SameDay reports whether two instants fall on the same calendar day as
// observed in the IANA zone tz.
func SameDay(a, b time.Time, tz string) (bool, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, errors.Wrapf(err, "unknown timezone %q", tz)
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd, nil
}

// FormatTime renders an instant's time of day as observed in tz, e.g. "9:00 AM".
func FormatTime(t time.Time, tz string) string {
	return formatIn(t, tz, timeLayout)
}

// FormatDate renders an instant's calendar date as observed in tz, e.g. "2025-06-15".
func FormatDate(t time.Time, tz string) string {
	return formatIn(t, tz, dateLayout)
}

// FormatDateTime renders an instant as observed in tz, e.g. "2025-06-15 09:00".
// Round-trip invariant: DateIn(y,m,d,h,min,tz) formatted back through
// FormatDateTime in the same tz reproduces the original components for any
// wall-clock time not inside a DST transition.
func FormatDateTime(t time.Time, tz string) string {
	return formatIn(t, tz, dateTimeLayout)
}

func formatIn(t time.Time, tz string, layout string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// An unknown zone on the render path falls back to UTC rather
		// than failing the whole display.
		return t.UTC().Format(layout)
	}
	return t.In(loc).Format(layout)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Package commission computes commission windows from a profile and an
// anchor date. The anchor is the trial end when the subscription started in
// trial, otherwise the subscription creation time.
package commission

import (
	"time"

	"github.com/coachkit/settled/internal/commission/domain"
)

// Windows returns the end of the first and second commission periods for the
// given anchor. Each tier's duration is applied with calendar arithmetic in
// its own unit, so a one-month tier anchored on Jan 31 ends on the last day
// of February rather than overflowing into March.
func Windows(profile domain.CommissionProfile, anchor time.Time) (endFirst, endSecond time.Time) {
	endFirst = advance(anchor, profile.FirstTime, profile.FirstTimeUnit)
	endSecond = advance(endFirst, profile.SecondTime, profile.SecondTimeUnit)
	return endFirst, endSecond
}

func advance(from time.Time, n int, unit domain.TimeUnit) time.Time {
	switch unit {
	case domain.UnitDay:
		return from.AddDate(0, 0, n)
	case domain.UnitWeek:
		return from.AddDate(0, 0, 7*n)
	case domain.UnitMonth:
		return addMonthsClamped(from, n)
	case domain.UnitYear:
		return addMonthsClamped(from, 12*n)
	default:
		return from
	}
}

// addMonthsClamped adds months without Go's AddDate overflow: a result whose
// day-of-month does not exist in the target month clamps to that month's last
// day (Jan 31 + 1 month = Feb 29 in a leap year, not Mar 2).
func addMonthsClamped(from time.Time, months int) time.Time {
	year, month, day := from.Date()
	first := time.Date(year, month+time.Month(months), 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

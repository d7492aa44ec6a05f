package service

import (
	"time"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
)

// Window is one lead reset interval: [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// CurrentWindow finds the reset window containing now, anchored on the
// period start. Anniversaries keep the anchor's clock time and clamp the
// day at short months, so a period started Jan 31 resets on Feb 28/29 and
// is back on the 31st in March instead of drifting.
func CurrentWindow(anchor, now time.Time, billing membershipdomain.BillingPeriod) Window {
	anchor = anchor.UTC()
	now = now.UTC()

	if billing == membershipdomain.BillingYearly {
		n := now.Year() - anchor.Year()
		start := addYearsClamped(anchor, n)
		if start.After(now) {
			n--
			start = addYearsClamped(anchor, n)
		}
		return Window{Start: start, End: addYearsClamped(anchor, n+1)}
	}

	n := (now.Year()-anchor.Year())*12 + int(now.Month()-anchor.Month())
	start := addMonthsClamped(anchor, n)
	if start.After(now) {
		n--
		start = addMonthsClamped(anchor, n)
	}
	return Window{Start: start, End: addMonthsClamped(anchor, n+1)}
}

// calendarMonthWindow is the fallback for default-tier contractors, who
// have no stored period anchor.
func calendarMonthWindow(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

func addMonthsClamped(anchor time.Time, months int) time.Time {
	year := anchor.Year()
	month := int(anchor.Month()) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month < 1 {
		month += 12
		year--
	}

	day := anchor.Day()
	if last := lastDayOfMonth(year, time.Month(month)); day > last {
		day = last
	}

	return time.Date(year, time.Month(month), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), time.UTC)
}

func addYearsClamped(anchor time.Time, years int) time.Time {
	year := anchor.Year() + years
	day := anchor.Day()
	if last := lastDayOfMonth(year, anchor.Month()); day > last {
		day = last
	}
	return time.Date(year, anchor.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}

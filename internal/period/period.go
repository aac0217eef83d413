// Package period implements scheduled-period keys ("2025-01", "2025-01-W4"),
// their calendar bounds, and execution-window derivation.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"lab-scheduler.com/lab-scheduler/internal/constants"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
)

var keyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})(?:-W(\d))?$`)

// Key identifies one recurrence cycle of a template. Week is zero for monthly
// periods, 1..5 for weekly ones.
type Key struct {
	Year  int
	Month time.Month
	Week  int
}

func Parse(s string) (Key, error) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return Key{}, errs.Validation(fmt.Sprintf("invalid period key %q", s))
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Key{}, errs.Validation(fmt.Sprintf("invalid month in period key %q", s))
	}

	k := Key{Year: year, Month: time.Month(month)}
	if m[3] != "" {
		week, _ := strconv.Atoi(m[3])
		if week < 1 || week > 5 {
			return Key{}, errs.Validation(fmt.Sprintf("invalid week in period key %q", s))
		}
		k.Week = week
	}

	return k, nil
}

func (k Key) String() string {
	if k.Week > 0 {
		return fmt.Sprintf("%04d-%02d-W%d", k.Year, int(k.Month), k.Week)
	}
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k Key) IsWeekly() bool { return k.Week > 0 }

// Bounds returns the first and last calendar day of the period, at midnight UTC.
func (k Key) Bounds() (start, end time.Time) {
	monthStart := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	if k.Week == 0 {
		return monthStart, monthEnd
	}

	start = monthStart.AddDate(0, 0, 7*(k.Week-1))
	end = start.AddDate(0, 0, 6)
	if start.After(monthEnd) {
		start = monthEnd
	}
	if end.After(monthEnd) {
		end = monthEnd
	}
	return start, end
}

// Days returns the number of calendar days in the period.
func (k Key) Days() int {
	start, end := k.Bounds()
	return int(end.Sub(start).Hours()/24) + 1
}

func (k Key) monthIndex() int {
	return k.Year*12 + int(k.Month) - 1
}

// MonthsBetween reports how many whole months separate two period keys,
// ignoring the week component. Used for the min-gap eligibility check.
func MonthsBetween(earlier, later Key) int {
	return later.monthIndex() - earlier.monthIndex()
}

// Next returns the following period of the same granularity.
func (k Key) Next() Key {
	if k.Week == 0 {
		n := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return Key{Year: n.Year(), Month: n.Month()}
	}

	daysInMonth := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
	weeksInMonth := (daysInMonth + 6) / 7
	if k.Week < weeksInMonth {
		return Key{Year: k.Year, Month: k.Month, Week: k.Week + 1}
	}

	n := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Key{Year: n.Year(), Month: n.Month(), Week: 1}
}

// Containing returns the period of the given frequency that contains t.
func Containing(freq constants.Frequency, t time.Time) Key {
	t = t.UTC()
	k := Key{Year: t.Year(), Month: t.Month()}
	if freq == constants.FrequencyWeekly {
		k.Week = (t.Day()-1)/7 + 1
	}
	return k
}

// Range lists every period of the given frequency whose bounds intersect
// [from, to]. Used by the batch generators.
func Range(freq constants.Frequency, from, to time.Time) []Key {
	var keys []Key
	for k := Containing(freq, from); ; k = k.Next() {
		start, _ := k.Bounds()
		if start.After(to) {
			break
		}
		keys = append(keys, k)
	}
	return keys
}

// FixedWindow derives an execution window from literal day-of-period indexes
// (1-based). Days past the period end clamp to the last day.
func FixedWindow(k Key, startDay, endDay int) (time.Time, time.Time, error) {
	if startDay < 1 || endDay < startDay {
		return time.Time{}, time.Time{}, errs.Validation("fixed window requires 1 <= start day <= end day")
	}

	periodStart, periodEnd := k.Bounds()
	start := clampDay(periodStart, periodEnd, startDay)
	end := clampDay(periodStart, periodEnd, endDay)
	return start, end, nil
}

// FlexibleWindow derives a window of the given duration anchored at the start,
// middle or end of the period.
func FlexibleWindow(k Key, anchor constants.WindowAnchor, durationDays int) (time.Time, time.Time, error) {
	if durationDays < 1 {
		return time.Time{}, time.Time{}, errs.Validation("flexible window requires a positive duration")
	}

	periodStart, periodEnd := k.Bounds()
	if total := k.Days(); durationDays > total {
		durationDays = total
	}

	switch anchor {
	case constants.AnchorStart:
		return periodStart, periodStart.AddDate(0, 0, durationDays-1), nil
	case constants.AnchorEnd:
		return periodEnd.AddDate(0, 0, -(durationDays - 1)), periodEnd, nil
	case constants.AnchorMiddle:
		offset := (k.Days() - durationDays) / 2
		start := periodStart.AddDate(0, 0, offset)
		return start, start.AddDate(0, 0, durationDays-1), nil
	default:
		return time.Time{}, time.Time{}, errs.Validation(fmt.Sprintf("unknown window anchor %q", anchor))
	}
}

func clampDay(periodStart, periodEnd time.Time, day int) time.Time {
	t := periodStart.AddDate(0, 0, day-1)
	if t.After(periodEnd) {
		return periodEnd
	}
	return t
}

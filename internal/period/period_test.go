package period

import (
	"testing"
	"time"

	"lab-scheduler.com/lab-scheduler/internal/constants"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in     string
		want   Key
		wantOK bool
	}{
		{"2025-01", Key{2025, time.January, 0}, true},
		{"2025-12-W5", Key{2025, time.December, 5}, true},
		{"2025-13", Key{}, false},
		{"2025-00", Key{}, false},
		{"2025-01-W6", Key{}, false},
		{"2025-1", Key{}, false},
		{"garbage", Key{}, false},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantOK != (err == nil) {
			t.Errorf("Parse(%q): unexpected error state: %v", tc.in, err)
			continue
		}
		if !tc.wantOK {
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Errorf("round trip of %q gave %q", tc.in, got.String())
		}
	}
}

func TestBounds_WeeklyClampsToMonthEnd(t *testing.T) {
	// February 2025 has 28 days; week 4 is the 22nd through the 28th.
	k := Key{2025, time.February, 4}
	start, end := k.Bounds()
	if start.Day() != 22 || end.Day() != 28 {
		t.Errorf("unexpected bounds %v .. %v", start, end)
	}

	// Week 5 of a 30 day month is a short tail: the 29th and 30th.
	k = Key{2025, time.April, 5}
	start, end = k.Bounds()
	if start.Day() != 29 || end.Day() != 30 {
		t.Errorf("unexpected bounds %v .. %v", start, end)
	}
	if k.Days() != 2 {
		t.Errorf("expected a 2 day tail, got %d", k.Days())
	}
}

func TestNext_WeeklyRollsIntoFollowingMonth(t *testing.T) {
	cases := []struct {
		in   Key
		want Key
	}{
		{Key{2025, time.January, 2}, Key{2025, time.January, 3}},
		// 31 day months have 5 weeks.
		{Key{2025, time.January, 5}, Key{2025, time.February, 1}},
		// February 2025 has 28 days, exactly 4 weeks.
		{Key{2025, time.February, 4}, Key{2025, time.March, 1}},
		{Key{2025, time.December, 5}, Key{2026, time.January, 1}},
		{Key{2025, time.December, 0}, Key{2026, time.January, 0}},
	}
	for _, tc := range cases {
		if got := tc.in.Next(); got != tc.want {
			t.Errorf("Next(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMonthsBetween(t *testing.T) {
	a := Key{2024, time.November, 0}
	b := Key{2025, time.March, 2}
	if got := MonthsBetween(a, b); got != 4 {
		t.Errorf("expected 4 months, got %d", got)
	}
	if got := MonthsBetween(b, a); got != -4 {
		t.Errorf("expected -4 months, got %d", got)
	}
}

func TestRange_CountsIntersectingPeriods(t *testing.T) {
	from := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	months := Range(constants.FrequencyMonthly, from, to)
	if len(months) != 3 {
		t.Errorf("expected 3 monthly periods, got %v", months)
	}

	weeks := Range(constants.FrequencyWeekly, from, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	// Jan 15 falls in W3; W3, W4, W5 intersect the range.
	if len(weeks) != 3 || weeks[0].Week != 3 {
		t.Errorf("unexpected weekly periods: %v", weeks)
	}
}

func TestFixedWindow_ClampsShortMonths(t *testing.T) {
	k := Key{2025, time.February, 0}
	start, end, err := FixedWindow(k, 25, 31)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Day() != 25 || end.Day() != 28 {
		t.Errorf("expected Feb 25 .. Feb 28, got %v .. %v", start, end)
	}

	if _, _, err := FixedWindow(k, 10, 5); err == nil {
		t.Error("inverted day range must fail")
	}
}

func TestFlexibleWindow_Anchors(t *testing.T) {
	k := Key{2025, time.January, 0}

	start, end, err := FlexibleWindow(k, constants.AnchorEnd, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Day() != 29 || end.Day() != 31 {
		t.Errorf("end anchor: expected Jan 29 .. Jan 31, got %v .. %v", start, end)
	}

	start, end, err = FlexibleWindow(k, constants.AnchorMiddle, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Day() != 13 || end.Day() != 19 {
		t.Errorf("middle anchor: expected Jan 13 .. Jan 19, got %v .. %v", start, end)
	}

	// Durations longer than the period shrink to fit.
	weekly := Key{2025, time.April, 5}
	start, end, err = FlexibleWindow(weekly, constants.AnchorStart, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Day() != 29 || end.Day() != 30 {
		t.Errorf("expected the 2 day tail, got %v .. %v", start, end)
	}
}

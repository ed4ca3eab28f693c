package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestDayRange_RoundTrip(t *testing.T) {
	for _, tz := range []string{"UTC", "America/New_York", "Europe/Berlin", "Asia/Kolkata"} {
		d := Date{Year: 2026, Month: time.June, Day: 15}
		start, _, err := DayRange(d, tz)
		if err != nil {
			t.Fatalf("%s: %v", tz, err)
		}
		got, tod, err := Local(start, tz)
		if err != nil {
			t.Fatalf("%s: %v", tz, err)
		}
		if got != d {
			t.Errorf("%s: round-trip date = %s, want %s", tz, got, d)
		}
		if tod != 0 {
			t.Errorf("%s: time-of-day at day start = %s, want 00:00", tz, tod)
		}
	}
}

func TestDayRange_SpringForwardIs23Hours(t *testing.T) {
	// US DST starts 2026-03-08: 02:00 local jumps to 03:00.
	d := Date{Year: 2026, Month: time.March, Day: 8}
	start, end, err := DayRange(d, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("day length = %s, want 23h", got)
	}
}

func TestDayRange_FallBackIs25Hours(t *testing.T) {
	d := Date{Year: 2026, Month: time.November, Day: 1}
	start, end, err := DayRange(d, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Sub(start); got != 25*time.Hour {
		t.Fatalf("day length = %s, want 25h", got)
	}
}

func TestAtMinutes_StaysOnWallClock(t *testing.T) {
	// 09:00 local must stay 09:00 local across the DST transition even though
	// the UTC offset differs between the two dates.
	for _, d := range []Date{
		{Year: 2026, Month: time.March, Day: 7},
		{Year: 2026, Month: time.March, Day: 9},
	} {
		instant, err := AtMinutes(d, 9*60, "America/New_York")
		if err != nil {
			t.Fatal(err)
		}
		_, tod, err := Local(instant, "America/New_York")
		if err != nil {
			t.Fatal(err)
		}
		if tod != 9*time.Hour {
			t.Errorf("%s: local time = %s, want 09:00", d, tod)
		}
	}
}

func TestLocation_Invalid(t *testing.T) {
	for _, tz := range []string{"", "Mars/Olympus", "not a zone"} {
		if _, err := Location(tz); !errors.Is(err, ErrInvalidTimezone) {
			t.Errorf("Location(%q) err = %v, want ErrInvalidTimezone", tz, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-09")
	if err != nil {
		t.Fatal(err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %s, want Monday", d.Weekday())
	}
	if _, err := ParseDate("02/09/2026"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}

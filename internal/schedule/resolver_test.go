package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/interval"
	"github.com/tenantly/bookd/internal/model"
)

type fakeStore struct {
	hours     map[int]model.WorkingHour
	overrides []model.Override
}

func (f *fakeStore) GetWorkingHours(_ context.Context, _ string, weekday int) (model.WorkingHour, bool, error) {
	wh, ok := f.hours[weekday]
	return wh, ok, nil
}

func (f *fakeStore) ListOverrides(_ context.Context, _ string, from, to time.Time) ([]model.Override, error) {
	var out []model.Override
	for _, o := range f.overrides {
		if o.Start.Before(to) && from.Before(o.End) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Monday 2026-02-09 in America/New_York (EST, UTC-5).
var monday = calendar.Date{Year: 2026, Month: time.February, Day: 9}

func nyc(h, m int) time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(monday.Year, monday.Month, monday.Day, h, m, 0, 0, loc).UTC()
}

func TestNominalHours_Basic(t *testing.T) {
	store := &fakeStore{hours: map[int]model.WorkingHour{
		1: {Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}}
	r := NewResolver(store)

	got, err := r.NominalHours(context.Background(), "emp-1", monday, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Start.Equal(nyc(9, 0)) || !got[0].End.Equal(nyc(17, 0)) {
		t.Fatalf("NominalHours() = %v, want [09:00,17:00) local", got)
	}
}

func TestNominalHours_OffDay(t *testing.T) {
	store := &fakeStore{hours: map[int]model.WorkingHour{
		1: {Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60, IsOff: true},
	}}
	r := NewResolver(store)

	got, err := r.NominalHours(context.Background(), "emp-1", monday, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("off day must yield no windows, got %v", got)
	}
}

func TestNominalHours_MissingWeekdayIsClosed(t *testing.T) {
	r := NewResolver(&fakeStore{hours: map[int]model.WorkingHour{}})
	got, err := r.NominalHours(context.Background(), "emp-1", monday, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("missing weekday row must yield no windows, got %v", got)
	}
}

func TestNominalHours_InvalidTimezone(t *testing.T) {
	store := &fakeStore{hours: map[int]model.WorkingHour{
		1: {Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}}
	r := NewResolver(store)
	if _, err := r.NominalHours(context.Background(), "emp-1", monday, "Nowhere/Here"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestApplyOverrides_LunchBlock(t *testing.T) {
	nominal := []interval.Interval{{Start: nyc(9, 0), End: nyc(17, 0)}}
	overrides := []model.Override{
		{Start: nyc(12, 0), End: nyc(13, 0), Unavailable: true},
	}
	got := ApplyOverrides(nominal, overrides)
	want := []interval.Interval{
		{Start: nyc(9, 0), End: nyc(12, 0)},
		{Start: nyc(13, 0), End: nyc(17, 0)},
	}
	assertIntervals(t, got, want)
}

func TestApplyOverrides_SubtractionsBeforeUnions(t *testing.T) {
	// Close the whole regular day and open an evening window. The evening
	// window must survive even though the block covers it chronologically.
	nominal := []interval.Interval{{Start: nyc(9, 0), End: nyc(17, 0)}}
	overrides := []model.Override{
		{Start: nyc(0, 0), End: nyc(23, 59), Unavailable: true},
		{Start: nyc(18, 0), End: nyc(20, 0), Unavailable: false},
	}
	got := ApplyOverrides(nominal, overrides)
	want := []interval.Interval{{Start: nyc(18, 0), End: nyc(20, 0)}}
	assertIntervals(t, got, want)
}

func TestApplyOverrides_ExtraMergesWithNominal(t *testing.T) {
	nominal := []interval.Interval{{Start: nyc(9, 0), End: nyc(17, 0)}}
	overrides := []model.Override{
		{Start: nyc(17, 0), End: nyc(19, 0), Unavailable: false},
	}
	got := ApplyOverrides(nominal, overrides)
	want := []interval.Interval{{Start: nyc(9, 0), End: nyc(19, 0)}}
	assertIntervals(t, got, want)
}

func TestWindows_ComposedDayView(t *testing.T) {
	store := &fakeStore{
		hours: map[int]model.WorkingHour{
			1: {Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
		overrides: []model.Override{
			{Start: nyc(12, 0), End: nyc(13, 0), Unavailable: true},
		},
	}
	r := NewResolver(store)

	got, err := r.Windows(context.Background(), "emp-1", monday, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	want := []interval.Interval{
		{Start: nyc(9, 0), End: nyc(12, 0)},
		{Start: nyc(13, 0), End: nyc(17, 0)},
	}
	assertIntervals(t, got, want)
}

func assertIntervals(t *testing.T, got, want []interval.Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d intervals (%v), want %d (%v)", len(got), got, len(want), want)
	}
	for i := range got {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d = %v, want %v", i, got[i], want[i])
		}
	}
}

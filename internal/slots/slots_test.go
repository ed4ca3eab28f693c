package slots

import (
	"errors"
	"testing"
	"time"

	"github.com/tenantly/bookd/internal/interval"
)

var day = time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestGenerate_FullWorkday(t *testing.T) {
	// 09:00-17:00, 60min service, 30min step: starts 09:00..16:00, the last
	// slot ending exactly at 17:00.
	windows := []interval.Interval{{Start: at(9, 0), End: at(17, 0)}}
	got, err := Generate(windows, Config{Duration: time.Hour, Step: 30 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 15 {
		t.Fatalf("got %d candidates, want 15", len(got))
	}
	if !got[0].Start.Equal(at(9, 0)) {
		t.Errorf("first start = %s, want 09:00", got[0].Start)
	}
	last := got[len(got)-1]
	if !last.Start.Equal(at(16, 0)) || !last.End.Equal(at(17, 0)) {
		t.Errorf("last slot = [%s, %s), want [16:00, 17:00)", last.Start, last.End)
	}
	for i := 1; i < len(got); i++ {
		if want := got[i-1].Start.Add(30 * time.Minute); !got[i].Start.Equal(want) {
			t.Fatalf("start %d = %s, want %s", i, got[i].Start, want)
		}
	}
}

func TestGenerate_BuffersShrinkTheGrid(t *testing.T) {
	// A 30min service with 15min buffers has a 60min footprint, so the last
	// candidate footprint must end at the window edge.
	windows := []interval.Interval{{Start: at(9, 0), End: at(11, 0)}}
	cfg := Config{
		Duration:     30 * time.Minute,
		BufferBefore: 15 * time.Minute,
		BufferAfter:  15 * time.Minute,
		Step:         30 * time.Minute,
	}
	got, err := Generate(windows, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Footprints: [9:00,10:00), [9:30,10:30), [10:00,11:00).
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	first := got[0]
	if !first.Start.Equal(at(9, 15)) || !first.End.Equal(at(9, 45)) {
		t.Errorf("first service interval = [%s, %s), want [09:15, 09:45)", first.Start, first.End)
	}
	if !first.Blocked.Start.Equal(at(9, 0)) || !first.Blocked.End.Equal(at(10, 0)) {
		t.Errorf("first blocked interval = %v, want [09:00, 10:00)", first.Blocked)
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	windows := []interval.Interval{{Start: at(9, 0), End: at(17, 0)}}
	bad := []Config{
		{Duration: 0, Step: DefaultStep},
		{Duration: -time.Hour, Step: DefaultStep},
		{Duration: time.Hour, Step: 0},
		{Duration: time.Hour, Step: DefaultStep, BufferBefore: -time.Minute},
	}
	for i, cfg := range bad {
		if _, err := Generate(windows, cfg); !errors.Is(err, ErrInvalidServiceConfig) {
			t.Errorf("config %d: err = %v, want ErrInvalidServiceConfig", i, err)
		}
	}
}

func TestGenerate_WindowTooShort(t *testing.T) {
	windows := []interval.Interval{{Start: at(9, 0), End: at(9, 45)}}
	got, err := Generate(windows, Config{Duration: time.Hour, Step: DefaultStep})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
}

func TestGenerate_Restartable(t *testing.T) {
	windows := []interval.Interval{{Start: at(9, 0), End: at(12, 0)}}
	cfg := Config{Duration: time.Hour, Step: DefaultStep}
	a, err := Generate(windows, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(windows, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("repeated calls disagree: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) {
			t.Fatalf("candidate %d differs between calls", i)
		}
	}
}

func TestGenerate_NoSelfOverlapAtLargeStep(t *testing.T) {
	windows := []interval.Interval{{Start: at(9, 0), End: at(17, 0)}}
	got, err := Generate(windows, Config{Duration: time.Hour, Step: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start.Before(got[i-1].End) {
			t.Fatalf("candidates %d and %d overlap", i-1, i)
		}
	}
}

func TestFilterBusy_BufferAware(t *testing.T) {
	// Existing booking 10:00-11:00 with a 15min after-buffer blocks
	// 10:00-11:15. An 11:00 start (60min, no own buffers) must be filtered;
	// 09:00 (ending 10:00) and 11:15+ grid points stay.
	windows := []interval.Interval{{Start: at(9, 0), End: at(17, 0)}}
	candidates, err := Generate(windows, Config{Duration: time.Hour, Step: 30 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	busy := []interval.Interval{{Start: at(10, 0), End: at(11, 15)}}

	kept := FilterBusy(candidates, busy)
	for _, c := range kept {
		if c.Start.Equal(at(11, 0)) {
			t.Error("11:00 start overlaps the after-buffer and must be dropped")
		}
		if c.Start.Equal(at(10, 30)) {
			t.Error("10:30 start overlaps the booking and must be dropped")
		}
	}
	found := false
	for _, c := range kept {
		if c.Start.Equal(at(9, 0)) {
			found = true
		}
	}
	if !found {
		t.Error("09:00 start ends exactly at busy start and must be kept")
	}
}

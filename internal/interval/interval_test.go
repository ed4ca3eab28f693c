package interval

import (
	"testing"
	"time"
)

var day = time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(sh, sm, eh, em int) Interval {
	return Interval{Start: at(sh, sm), End: at(eh, em)}
}

func equal(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{"empty", nil, nil},
		{"drops empty intervals", []Interval{iv(9, 0, 9, 0), iv(10, 0, 9, 0)}, nil},
		{"sorts disjoint", []Interval{iv(13, 0, 14, 0), iv(9, 0, 10, 0)}, []Interval{iv(9, 0, 10, 0), iv(13, 0, 14, 0)}},
		{"coalesces overlap", []Interval{iv(9, 0, 11, 0), iv(10, 0, 12, 0)}, []Interval{iv(9, 0, 12, 0)}},
		{"coalesces touching", []Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0)}, []Interval{iv(9, 0, 11, 0)}},
		{"nested absorbed", []Interval{iv(9, 0, 17, 0), iv(10, 0, 11, 0)}, []Interval{iv(9, 0, 17, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.in); !equal(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubtract(t *testing.T) {
	base := []Interval{iv(9, 0, 17, 0)}
	tests := []struct {
		name   string
		blocks []Interval
		want   []Interval
	}{
		{"no blocks", nil, base},
		{"middle splits in two", []Interval{iv(12, 0, 13, 0)}, []Interval{iv(9, 0, 12, 0), iv(13, 0, 17, 0)}},
		{"leading edge leaves one", []Interval{iv(8, 0, 10, 0)}, []Interval{iv(10, 0, 17, 0)}},
		{"trailing edge leaves one", []Interval{iv(16, 0, 18, 0)}, []Interval{iv(9, 0, 16, 0)}},
		{"full cover leaves none", []Interval{iv(8, 0, 18, 0)}, nil},
		{"disjoint block ignored", []Interval{iv(18, 0, 19, 0)}, base},
		{"overlapping blocks merged first", []Interval{iv(11, 0, 13, 0), iv(12, 0, 14, 0)}, []Interval{iv(9, 0, 11, 0), iv(14, 0, 17, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Subtract(base, tt.blocks); !equal(got, tt.want) {
				t.Errorf("Subtract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubtract_MultipleBases(t *testing.T) {
	base := []Interval{iv(9, 0, 12, 0), iv(13, 0, 17, 0)}
	blocks := []Interval{iv(11, 0, 14, 0)}
	want := []Interval{iv(9, 0, 11, 0), iv(14, 0, 17, 0)}
	if got := Subtract(base, blocks); !equal(got, want) {
		t.Errorf("Subtract() = %v, want %v", got, want)
	}
}

func TestClip(t *testing.T) {
	got := Clip([]Interval{iv(8, 0, 10, 0), iv(16, 0, 19, 0), iv(20, 0, 21, 0)}, iv(9, 0, 18, 0))
	want := []Interval{iv(9, 0, 10, 0), iv(16, 0, 18, 0)}
	if !equal(got, want) {
		t.Errorf("Clip() = %v, want %v", got, want)
	}
}

func TestOverlapsAny_HalfOpen(t *testing.T) {
	busy := []Interval{iv(10, 0, 11, 0)}
	if OverlapsAny(at(11, 0), at(12, 0), busy) {
		t.Error("interval starting exactly at busy end must not overlap")
	}
	if OverlapsAny(at(9, 0), at(10, 0), busy) {
		t.Error("interval ending exactly at busy start must not overlap")
	}
	if !OverlapsAny(at(10, 30), at(10, 45), busy) {
		t.Error("contained interval must overlap")
	}
}

// Package interval implements the half-open [Start, End) interval algebra
// used by availability computation. All instants are UTC.
package interval

import (
	"sort"
	"time"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Merge sorts the input and coalesces overlapping or touching intervals.
// Empty intervals are dropped. The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	in := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Empty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := make([]Interval, 0, len(in))
	out = append(out, in[0])
	for _, cur := range in[1:] {
		last := &out[len(out)-1]
		if cur.Start.After(last.End) {
			out = append(out, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return out
}

// Subtract removes blocks from each base interval. A block splits a base
// interval into zero, one, or two remainders. Output is sorted and
// non-overlapping.
func Subtract(base []Interval, blocks []Interval) []Interval {
	base = Merge(base)
	blocks = Merge(blocks)
	if len(blocks) == 0 {
		return base
	}

	var out []Interval
	for _, b := range base {
		cursor := b.Start
		for _, blk := range blocks {
			if !blk.End.After(cursor) {
				continue
			}
			if !blk.Start.Before(b.End) {
				break
			}
			if blk.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: blk.Start})
			}
			if blk.End.After(cursor) {
				cursor = blk.End
			}
		}
		if cursor.Before(b.End) {
			out = append(out, Interval{Start: cursor, End: b.End})
		}
	}
	return out
}

// Clip restricts each interval to the given bounds, dropping what falls
// entirely outside.
func Clip(ivs []Interval, bounds Interval) []Interval {
	var out []Interval
	for _, iv := range ivs {
		s, e := iv.Start, iv.End
		if s.Before(bounds.Start) {
			s = bounds.Start
		}
		if e.After(bounds.End) {
			e = bounds.End
		}
		if e.After(s) {
			out = append(out, Interval{Start: s, End: e})
		}
	}
	return out
}

// OverlapsAny reports whether [start, end) intersects any of the intervals.
func OverlapsAny(start, end time.Time, ivs []Interval) bool {
	probe := Interval{Start: start, End: end}
	for _, iv := range ivs {
		if probe.Overlaps(iv) {
			return true
		}
	}
	return false
}

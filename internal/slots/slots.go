// Package slots discretizes open windows into offered start times.
package slots

import (
	"errors"
	"time"

	"github.com/tenantly/bookd/internal/interval"
)

var ErrInvalidServiceConfig = errors.New("invalid service configuration")

// Config describes the service being scheduled. Duration is the bookable
// meeting length; the buffers are mandatory idle time around it; Step is the
// granularity of offered start times, not the meeting length.
type Config struct {
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	Step         time.Duration
}

const DefaultStep = 15 * time.Minute

func (c Config) validate() error {
	if c.Duration <= 0 {
		return ErrInvalidServiceConfig
	}
	if c.BufferBefore < 0 || c.BufferAfter < 0 {
		return ErrInvalidServiceConfig
	}
	if c.Step <= 0 {
		return ErrInvalidServiceConfig
	}
	return nil
}

// Candidate is an offered slot: Start/End delimit the service itself, and
// Blocked is the buffer-inclusive interval the booking would occupy.
type Candidate struct {
	Start   time.Time
	End     time.Time
	Blocked interval.Interval
}

// Generate emits candidate start times at a, a+step, a+2*step, ... within
// each window, keeping only candidates whose buffer-inclusive footprint fits
// inside the window. Every call produces a fresh slice.
func Generate(windows []interval.Interval, cfg Config) ([]Candidate, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	footprint := cfg.BufferBefore + cfg.Duration + cfg.BufferAfter
	var out []Candidate
	for _, w := range windows {
		if w.Empty() {
			continue
		}
		for t := w.Start; !t.Add(footprint).After(w.End); t = t.Add(cfg.Step) {
			start := t.Add(cfg.BufferBefore)
			out = append(out, Candidate{
				Start:   start,
				End:     start.Add(cfg.Duration),
				Blocked: interval.Interval{Start: t, End: t.Add(footprint)},
			})
		}
	}
	return out, nil
}

// FilterBusy drops candidates whose buffer-inclusive footprint intersects any
// busy interval. Busy intervals are expected to already include the buffers
// of the bookings they came from.
func FilterBusy(candidates []Candidate, busy []interval.Interval) []Candidate {
	if len(busy) == 0 {
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !interval.OverlapsAny(c.Blocked.Start, c.Blocked.End, busy) {
			out = append(out, c)
		}
	}
	return out
}

// Package schedule resolves an employee's open windows for a calendar date:
// recurring weekly working hours first, then one-off overrides applied on
// top.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/interval"
	"github.com/tenantly/bookd/internal/model"
)

// Store is the read-side schedule data access the resolver depends on.
type Store interface {
	// GetWorkingHours returns the weekday entry for an employee; ok=false
	// when no row exists (treated as closed, not an error).
	GetWorkingHours(ctx context.Context, employeeID string, weekday int) (model.WorkingHour, bool, error)
	// ListOverrides returns overrides whose [Start, End) intersects [from, to).
	ListOverrides(ctx context.Context, employeeID string, from, to time.Time) ([]model.Override, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// NominalHours returns the employee's recurring open windows for date as UTC
// intervals, before overrides and bookings. Off days and missing weekday rows
// yield an empty result.
func (r *Resolver) NominalHours(ctx context.Context, employeeID string, date calendar.Date, tz string) ([]interval.Interval, error) {
	wh, ok, err := r.store.GetWorkingHours(ctx, employeeID, int(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if !ok || wh.IsOff {
		return nil, nil
	}
	if wh.EndMinute <= wh.StartMinute {
		return nil, nil
	}

	start, err := calendar.AtMinutes(date, wh.StartMinute, tz)
	if err != nil {
		return nil, err
	}
	end, err := calendar.AtMinutes(date, wh.EndMinute, tz)
	if err != nil {
		return nil, err
	}
	return []interval.Interval{{Start: start, End: end}}, nil
}

// ApplyOverrides adjusts nominal windows with one-off exceptions. All
// unavailability blocks are subtracted before any extra-availability windows
// are unioned in, so an override pair that closes the regular day and opens a
// custom window keeps the custom window intact.
func ApplyOverrides(nominal []interval.Interval, overrides []model.Override) []interval.Interval {
	var blocks, extras []interval.Interval
	for _, o := range overrides {
		iv := interval.Interval{Start: o.Start.UTC(), End: o.End.UTC()}
		if iv.Empty() {
			continue
		}
		if o.Unavailable {
			blocks = append(blocks, iv)
		} else {
			extras = append(extras, iv)
		}
	}

	open := interval.Subtract(nominal, blocks)
	if len(extras) == 0 {
		return open
	}
	return interval.Merge(append(open, extras...))
}

// Windows is the composed day view: nominal hours for date with that day's
// overrides applied, clipped to the local day. Extra availability reaching
// into a neighboring local day is served by that day's query.
func (r *Resolver) Windows(ctx context.Context, employeeID string, date calendar.Date, tz string) ([]interval.Interval, error) {
	nominal, err := r.NominalHours(ctx, employeeID, date, tz)
	if err != nil {
		return nil, err
	}

	dayStart, dayEnd, err := calendar.DayRange(date, tz)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.ListOverrides(ctx, employeeID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	open := ApplyOverrides(nominal, overrides)
	return interval.Clip(open, interval.Interval{Start: dayStart, End: dayEnd}), nil
}

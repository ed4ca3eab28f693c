// Package availability composes schedule resolution, override application,
// slot generation, and booking filtering into the read-side availability
// view. Results are advisory snapshots; only the booking committer decides
// who gets a slot.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/interval"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/schedule"
	"github.com/tenantly/bookd/internal/slots"
)

// BookingReader is the advisory (non-transactional) view of active bookings.
type BookingReader interface {
	ListActive(ctx context.Context, employeeID string, from, to time.Time) ([]model.Booking, error)
}

// Directory resolves businesses, services, and service qualifications.
type Directory interface {
	GetBusinessTimezone(ctx context.Context, businessID string) (string, error)
	GetSlotStepMinutes(ctx context.Context, businessID string) (int, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	ListQualifiedEmployees(ctx context.Context, businessID, serviceID string) ([]string, error)
	IsQualified(ctx context.Context, businessID, employeeID, serviceID string) (bool, error)
}

type Orchestrator struct {
	resolver  *schedule.Resolver
	bookings  BookingReader
	directory Directory
	now       func() time.Time
}

func NewOrchestrator(resolver *schedule.Resolver, bookings BookingReader, directory Directory) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		bookings:  bookings,
		directory: directory,
		now:       time.Now,
	}
}

// Query identifies one availability lookup. EmployeeID empty means "any
// qualified employee". Timezone empty falls back to the business profile.
type Query struct {
	BusinessID string
	ServiceID  string
	EmployeeID string
	Date       calendar.Date
	Timezone   string
}

// EmployeeSlots is the per-employee result. Slot lists stay per-employee;
// the aggregated any-employee view is derived by Union.
type EmployeeSlots struct {
	EmployeeID string
	Slots      []model.Slot
}

// Slots computes the currently-free slots for the query. With an explicit
// employee the result has exactly one entry; otherwise one entry per
// qualified employee (employees with no free slots yield an empty list, not
// an error).
func (o *Orchestrator) Slots(ctx context.Context, q Query) ([]EmployeeSlots, error) {
	svc, tz, step, err := o.resolveQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	employees, err := o.queryEmployees(ctx, q)
	if err != nil {
		return nil, err
	}

	cfg := slots.Config{
		Duration:     time.Duration(svc.DurationMins) * time.Minute,
		BufferBefore: time.Duration(svc.BufferBefore) * time.Minute,
		BufferAfter:  time.Duration(svc.BufferAfter) * time.Minute,
		Step:         step,
	}

	out := make([]EmployeeSlots, 0, len(employees))
	for _, empID := range employees {
		free, err := o.employeeSlots(ctx, empID, q.Date, tz, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, EmployeeSlots{EmployeeID: empID, Slots: free})
	}
	return out, nil
}

func (o *Orchestrator) employeeSlots(ctx context.Context, employeeID string, date calendar.Date, tz string, cfg slots.Config) ([]model.Slot, error) {
	open, err := o.resolver.Windows(ctx, employeeID, date, tz)
	if err != nil {
		return nil, err
	}
	candidates, err := slots.Generate(open, cfg)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	dayStart, dayEnd, err := calendar.DayRange(date, tz)
	if err != nil {
		return nil, err
	}
	busy, err := o.busyIntervals(ctx, employeeID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	// Slots whose start has already passed are not offerable.
	now := o.now().UTC()

	free := slots.FilterBusy(candidates, busy)
	result := make([]model.Slot, 0, len(free))
	for _, c := range free {
		if c.Start.Before(now) {
			continue
		}
		result = append(result, model.Slot{EmployeeID: employeeID, Start: c.Start, End: c.End})
	}
	return result, nil
}

func (o *Orchestrator) busyIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]interval.Interval, error) {
	active, err := o.bookings.ListActive(ctx, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	busy := make([]interval.Interval, 0, len(active))
	for _, b := range active {
		busy = append(busy, interval.Interval{Start: b.BlockedStart(), End: b.BlockedEnd()})
	}
	return busy, nil
}

// IsSlotStillAvailable is the lightweight pre-check the UI polls before a
// customer commits. It mirrors the committer's predicate (inside an open
// window, no buffered overlap) but runs outside any transaction, so a true
// answer is advisory only.
func (o *Orchestrator) IsSlotStillAvailable(ctx context.Context, q Query, start time.Time) (bool, error) {
	if start.Before(o.now()) {
		return false, nil
	}
	svc, tz, _, err := o.resolveQuery(ctx, q)
	if err != nil {
		return false, err
	}
	if svc.DurationMins <= 0 {
		return false, slots.ErrInvalidServiceConfig
	}

	employees, err := o.queryEmployees(ctx, q)
	if err != nil {
		return false, err
	}

	blocked := interval.Interval{
		Start: start.UTC().Add(-time.Duration(svc.BufferBefore) * time.Minute),
		End:   start.UTC().Add(time.Duration(svc.DurationMins+svc.BufferAfter) * time.Minute),
	}
	date, _, err := calendar.Local(start, tz)
	if err != nil {
		return false, err
	}

	for _, empID := range employees {
		open, err := o.resolver.Windows(ctx, empID, date, tz)
		if err != nil {
			return false, err
		}
		inWindow := false
		for _, w := range open {
			if w.Contains(blocked) {
				inWindow = true
				break
			}
		}
		if !inWindow {
			continue
		}
		busy, err := o.busyIntervals(ctx, empID, blocked.Start, blocked.End)
		if err != nil {
			return false, err
		}
		if !interval.OverlapsAny(blocked.Start, blocked.End, busy) {
			return true, nil
		}
	}
	return false, nil
}

func (o *Orchestrator) resolveQuery(ctx context.Context, q Query) (model.Service, string, time.Duration, error) {
	svc, err := o.directory.GetService(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return model.Service{}, "", 0, fmt.Errorf("load service: %w", err)
	}

	tz := q.Timezone
	if tz == "" {
		tz, err = o.directory.GetBusinessTimezone(ctx, q.BusinessID)
		if err != nil {
			return model.Service{}, "", 0, fmt.Errorf("load business timezone: %w", err)
		}
	}
	// Reject bad timezones before doing any per-employee work.
	if _, err := calendar.Location(tz); err != nil {
		return model.Service{}, "", 0, err
	}

	stepMins, err := o.directory.GetSlotStepMinutes(ctx, q.BusinessID)
	if err != nil {
		return model.Service{}, "", 0, fmt.Errorf("load slot step: %w", err)
	}
	step := time.Duration(stepMins) * time.Minute
	if step <= 0 {
		step = slots.DefaultStep
	}
	return svc, tz, step, nil
}

func (o *Orchestrator) queryEmployees(ctx context.Context, q Query) ([]string, error) {
	if q.EmployeeID != "" {
		ok, err := o.directory.IsQualified(ctx, q.BusinessID, q.EmployeeID, q.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("check qualification: %w", err)
		}
		if !ok {
			return nil, nil
		}
		return []string{q.EmployeeID}, nil
	}
	emps, err := o.directory.ListQualifiedEmployees(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("list qualified employees: %w", err)
	}
	return emps, nil
}

// AggregatedSlot is one start time in the any-employee view, retaining which
// employees can serve it.
type AggregatedSlot struct {
	Start       time.Time
	End         time.Time
	EmployeeIDs []string
}

// Union flattens per-employee slot lists into the any-employee view: a start
// time appears once if at least one employee is free, with all free
// employees listed. Ordered by start time.
func Union(perEmployee []EmployeeSlots) []AggregatedSlot {
	byStart := map[time.Time]*AggregatedSlot{}
	for _, es := range perEmployee {
		for _, s := range es.Slots {
			key := s.Start.UTC()
			agg, ok := byStart[key]
			if !ok {
				agg = &AggregatedSlot{Start: key, End: s.End.UTC()}
				byStart[key] = agg
			}
			agg.EmployeeIDs = append(agg.EmployeeIDs, es.EmployeeID)
		}
	}

	out := make([]AggregatedSlot, 0, len(byStart))
	for _, agg := range byStart {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Package booking owns the authoritative commit path. The read-side
// availability view is advisory; only this package may decide that a slot is
// booked, and it does so inside a transaction holding the employee's
// schedule lock.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/interval"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/schedule"
	"github.com/tenantly/bookd/internal/slots"
)

var (
	// ErrSlotTaken is the expected race outcome: the slot was valid when
	// shown but is no longer bookable. Recoverable; callers re-fetch
	// availability.
	ErrSlotTaken = errors.New("slot no longer available")

	// ErrBookingTimedOut marks a commit transaction that exceeded its
	// deadline and was rolled back in full. Retryable.
	ErrBookingTimedOut = errors.New("booking commit timed out")
)

// Tx is the transaction handle the committer drives. pgx.Tx satisfies it.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the transactional storage surface for committing bookings.
// Implementations must guarantee that LockEmployeeSchedule serializes
// concurrent transactions touching the same employee, and must map
// storage-level exclusion violations on Insert to ErrSlotTaken.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	LockEmployeeSchedule(ctx context.Context, tx Tx, employeeID string) error
	ListActive(ctx context.Context, tx Tx, employeeID string, from, to time.Time) ([]model.Booking, error)
	Insert(ctx context.Context, tx Tx, b *model.Booking) (string, error)
	GetWorkingHours(ctx context.Context, tx Tx, employeeID string, weekday int) (model.WorkingHour, bool, error)
	ListOverrides(ctx context.Context, tx Tx, employeeID string, from, to time.Time) ([]model.Override, error)
}

// EventSink receives the domain event for a committed booking inside the same
// transaction (outbox pattern). Optional.
type EventSink interface {
	BookingCommitted(ctx context.Context, tx Tx, b model.Booking) error
}

type Committer struct {
	store   Store
	events  EventSink
	timeout time.Duration
	status  string // status given to new bookings: pending or confirmed
}

type Option func(*Committer)

func WithTimeout(d time.Duration) Option {
	return func(c *Committer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithEventSink(sink EventSink) Option {
	return func(c *Committer) { c.events = sink }
}

// WithCommitStatus sets the status new bookings are created with. Businesses
// that auto-confirm use model.StatusConfirmed.
func WithCommitStatus(status string) Option {
	return func(c *Committer) {
		if status == model.StatusPending || status == model.StatusConfirmed {
			c.status = status
		}
	}
}

func NewCommitter(store Store, opts ...Option) *Committer {
	c := &Committer{
		store:   store,
		timeout: 5 * time.Second,
		status:  model.StatusPending,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request identifies the slot being committed. Service carries the duration
// and buffers; Timezone is the business timezone used to re-validate the
// slot against the schedule.
type Request struct {
	BusinessID  string
	EmployeeID  string
	ServiceID   string
	CustomerRef string
	Start       time.Time
	Service     model.Service
	Timezone    string
}

// Commit re-validates the slot under the employee lock and inserts the
// booking. Exactly one of two concurrent commits for overlapping intervals
// can succeed; the other observes ErrSlotTaken.
func (c *Committer) Commit(ctx context.Context, req Request) (model.Booking, error) {
	if req.Service.DurationMins <= 0 || req.Service.BufferBefore < 0 || req.Service.BufferAfter < 0 {
		return model.Booking{}, slots.ErrInvalidServiceConfig
	}
	duration := time.Duration(req.Service.DurationMins) * time.Minute

	b := model.Booking{
		BusinessID:   req.BusinessID,
		EmployeeID:   req.EmployeeID,
		ServiceID:    req.ServiceID,
		CustomerRef:  req.CustomerRef,
		Start:        req.Start.UTC(),
		End:          req.Start.UTC().Add(duration),
		BufferBefore: req.Service.BufferBefore,
		BufferAfter:  req.Service.BufferAfter,
		Status:       c.status,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	committed, err := c.commitTx(ctx, req, &b)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.Booking{}, ErrBookingTimedOut
		}
		return model.Booking{}, err
	}
	return committed, nil
}

func (c *Committer) commitTx(ctx context.Context, req Request, b *model.Booking) (model.Booking, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize against sibling commits for this employee. Everything read
	// after this point is guaranteed current with respect to other commits.
	if err := c.store.LockEmployeeSchedule(ctx, tx, req.EmployeeID); err != nil {
		return model.Booking{}, fmt.Errorf("lock employee schedule: %w", err)
	}

	blockedStart, blockedEnd := b.BlockedStart(), b.BlockedEnd()

	// Re-query overlapping active bookings, buffer-inclusive on both sides.
	active, err := c.store.ListActive(ctx, tx, req.EmployeeID, blockedStart, blockedEnd)
	if err != nil {
		return model.Booking{}, fmt.Errorf("list active bookings: %w", err)
	}
	if len(active) > 0 {
		return model.Booking{}, ErrSlotTaken
	}

	// Re-validate the slot against the current schedule snapshot, so a
	// just-added override rejects the commit rather than slipping through.
	ok, err := c.slotWithinSchedule(ctx, tx, req, blockedStart, blockedEnd)
	if err != nil {
		return model.Booking{}, err
	}
	if !ok {
		return model.Booking{}, ErrSlotTaken
	}

	id, err := c.store.Insert(ctx, tx, b)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			// Exclusion constraint caught what the lock should have; same
			// outcome for the caller.
			return model.Booking{}, ErrSlotTaken
		}
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id
	b.CreatedAt = time.Now().UTC()

	if c.events != nil {
		if err := c.events.BookingCommitted(ctx, tx, *b); err != nil {
			return model.Booking{}, fmt.Errorf("write booking event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, fmt.Errorf("commit: %w", err)
	}
	return *b, nil
}

func (c *Committer) slotWithinSchedule(ctx context.Context, tx Tx, req Request, blockedStart, blockedEnd time.Time) (bool, error) {
	date, _, err := calendar.Local(req.Start, req.Timezone)
	if err != nil {
		return false, err
	}

	resolver := schedule.NewResolver(txScheduleStore{store: c.store, tx: tx})
	open, err := resolver.Windows(ctx, req.EmployeeID, date, req.Timezone)
	if err != nil {
		return false, err
	}

	probe := interval.Interval{Start: blockedStart, End: blockedEnd}
	for _, w := range open {
		if w.Contains(probe) {
			return true, nil
		}
	}
	return false, nil
}

// txScheduleStore projects the committer's transactional store into the
// read-only view the schedule resolver expects.
type txScheduleStore struct {
	store Store
	tx    Tx
}

func (s txScheduleStore) GetWorkingHours(ctx context.Context, employeeID string, weekday int) (model.WorkingHour, bool, error) {
	return s.store.GetWorkingHours(ctx, s.tx, employeeID, weekday)
}

func (s txScheduleStore) ListOverrides(ctx context.Context, employeeID string, from, to time.Time) ([]model.Override, error) {
	return s.store.ListOverrides(ctx, s.tx, employeeID, from, to)
}

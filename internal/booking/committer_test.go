package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/slots"
)

// fakeStore emulates the storage contract: LockEmployeeSchedule serializes
// transactions, and inserts become visible to other transactions only at
// commit. This mirrors the row-lock semantics the pg implementation relies
// on.
type fakeStore struct {
	empLock sync.Mutex

	mu        sync.Mutex
	bookings  []model.Booking
	hours     map[int]model.WorkingHour
	overrides []model.Override
}

type fakeTx struct {
	s        *fakeStore
	inserted []model.Booking
	locked   bool
	done     bool
}

func (s *fakeStore) Begin(context.Context) (Tx, error) {
	return &fakeTx{s: s}, nil
}

func (s *fakeStore) LockEmployeeSchedule(ctx context.Context, tx Tx, _ string) error {
	t := tx.(*fakeTx)
	s.empLock.Lock()
	t.locked = true
	return nil
}

func (s *fakeStore) ListActive(_ context.Context, _ Tx, _ string, from, to time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Occupies() && b.BlockedStart().Before(to) && from.Before(b.BlockedEnd()) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) Insert(_ context.Context, tx Tx, b *model.Booking) (string, error) {
	t := tx.(*fakeTx)
	t.inserted = append(t.inserted, *b)
	return "bk-1", nil
}

func (s *fakeStore) GetWorkingHours(_ context.Context, _ Tx, _ string, weekday int) (model.WorkingHour, bool, error) {
	wh, ok := s.hours[weekday]
	return wh, ok, nil
}

func (s *fakeStore) ListOverrides(_ context.Context, _ Tx, _ string, from, to time.Time) ([]model.Override, error) {
	var out []model.Override
	for _, o := range s.overrides {
		if o.Start.Before(to) && from.Before(o.End) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.s.mu.Lock()
	t.s.bookings = append(t.s.bookings, t.inserted...)
	t.s.mu.Unlock()
	t.finish()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.finish()
	return nil
}

func (t *fakeTx) finish() {
	if t.done {
		return
	}
	t.done = true
	if t.locked {
		t.s.empLock.Unlock()
	}
}

// Monday 2026-02-09, business in America/New_York, open 09:00-17:00.
func openStore() *fakeStore {
	return &fakeStore{
		hours: map[int]model.WorkingHour{
			1: {Weekday: 1, StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
	}
}

func nyc(h, m int) time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(2026, 2, 9, h, m, 0, 0, loc).UTC()
}

func request(start time.Time) Request {
	return Request{
		BusinessID:  "biz-1",
		EmployeeID:  "emp-1",
		ServiceID:   "svc-1",
		CustomerRef: "cust-1",
		Start:       start,
		Service:     model.Service{ID: "svc-1", DurationMins: 60},
		Timezone:    "America/New_York",
	}
}

func TestCommit_HappyPath(t *testing.T) {
	c := NewCommitter(openStore())
	got, err := c.Commit(context.Background(), request(nyc(10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID == "" || got.Status != model.StatusPending {
		t.Fatalf("booking = %+v, want id set and pending status", got)
	}
	if !got.End.Equal(nyc(11, 0)) {
		t.Fatalf("end = %s, want 11:00 local", got.End)
	}
}

func TestCommit_ConfirmedPolicy(t *testing.T) {
	c := NewCommitter(openStore(), WithCommitStatus(model.StatusConfirmed))
	got, err := c.Commit(context.Background(), request(nyc(10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
}

func TestCommit_RejectsOverlap(t *testing.T) {
	store := openStore()
	c := NewCommitter(store)

	if _, err := c.Commit(context.Background(), request(nyc(10, 0))); err != nil {
		t.Fatal(err)
	}
	_, err := c.Commit(context.Background(), request(nyc(10, 30)))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
}

func TestCommit_BufferConflict(t *testing.T) {
	// Existing booking 10:00-11:00 with a 15min after-buffer. An 11:00 start
	// intrudes into the buffer and must be rejected at commit time.
	store := openStore()
	store.bookings = []model.Booking{{
		EmployeeID:  "emp-1",
		Start:       nyc(10, 0),
		End:         nyc(11, 0),
		BufferAfter: 15,
		Status:      model.StatusConfirmed,
	}}
	c := NewCommitter(store)

	_, err := c.Commit(context.Background(), request(nyc(11, 0)))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
	// 11:15 clears the buffer.
	if _, err := c.Commit(context.Background(), request(nyc(11, 15))); err != nil {
		t.Fatal(err)
	}
}

func TestCommit_RejectsFreshOverride(t *testing.T) {
	// The slot looked free at read time, but an unavailability override
	// landed before the commit. Re-validation inside the transaction must
	// reject it.
	store := openStore()
	store.overrides = []model.Override{
		{EmployeeID: "emp-1", Start: nyc(12, 0), End: nyc(13, 0), Unavailable: true},
	}
	c := NewCommitter(store)

	_, err := c.Commit(context.Background(), request(nyc(12, 0)))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
}

func TestCommit_RejectsOutsideWorkingHours(t *testing.T) {
	c := NewCommitter(openStore())
	_, err := c.Commit(context.Background(), request(nyc(18, 0)))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
}

func TestCommit_InvalidService(t *testing.T) {
	c := NewCommitter(openStore())
	req := request(nyc(10, 0))
	req.Service.DurationMins = 0
	if _, err := c.Commit(context.Background(), req); !errors.Is(err, slots.ErrInvalidServiceConfig) {
		t.Fatalf("err = %v, want ErrInvalidServiceConfig", err)
	}
}

func TestCommit_MutualExclusion(t *testing.T) {
	// Two concurrent commits for overlapping slots: exactly one must win.
	store := openStore()
	c := NewCommitter(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	starts := []time.Time{nyc(10, 0), nyc(10, 30)}
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Commit(context.Background(), request(starts[i]))
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins = %d, conflicts = %d; want exactly one of each", wins, conflicts)
	}
	if len(store.bookings) != 1 {
		t.Fatalf("store holds %d bookings, want 1", len(store.bookings))
	}
}

func TestCommit_NonOverlappingConcurrentBothSucceed(t *testing.T) {
	store := openStore()
	c := NewCommitter(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	starts := []time.Time{nyc(9, 0), nyc(14, 0)}
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Commit(context.Background(), request(starts[i]))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}
	if len(store.bookings) != 2 {
		t.Fatalf("store holds %d bookings, want 2", len(store.bookings))
	}
}

// slowStore blocks on the employee lock until the context dies.
type slowStore struct {
	*fakeStore
}

func (s *slowStore) LockEmployeeSchedule(ctx context.Context, _ Tx, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCommit_Timeout(t *testing.T) {
	store := &slowStore{fakeStore: openStore()}
	c := NewCommitter(store, WithTimeout(50*time.Millisecond))

	_, err := c.Commit(context.Background(), request(nyc(10, 0)))
	if !errors.Is(err, ErrBookingTimedOut) {
		t.Fatalf("err = %v, want ErrBookingTimedOut", err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Booking
}

func (r *recordingSink) BookingCommitted(_ context.Context, _ Tx, b model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, b)
	return nil
}

func TestCommit_EmitsEvent(t *testing.T) {
	sink := &recordingSink{}
	c := NewCommitter(openStore(), WithEventSink(sink))

	if _, err := c.Commit(context.Background(), request(nyc(10, 0))); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("sink got %d events, want 1", len(sink.events))
	}
	if sink.events[0].ID == "" {
		t.Fatal("event booking id not set")
	}
}

package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/storage"
)

// PgStore adapts the pgx repositories to the committer's Store interface.
type PgStore struct {
	bookings *storage.BookingRepository
	schedule *storage.ScheduleRepository
}

func NewPgStore(bookings *storage.BookingRepository, schedule *storage.ScheduleRepository) *PgStore {
	return &PgStore{bookings: bookings, schedule: schedule}
}

func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	return s.bookings.Begin(ctx)
}

func pgTx(tx Tx) (pgx.Tx, error) {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("unexpected transaction type %T", tx)
	}
	return t, nil
}

func (s *PgStore) LockEmployeeSchedule(ctx context.Context, tx Tx, employeeID string) error {
	t, err := pgTx(tx)
	if err != nil {
		return err
	}
	return s.bookings.LockEmployeeSchedule(ctx, t, employeeID)
}

func (s *PgStore) ListActive(ctx context.Context, tx Tx, employeeID string, from, to time.Time) ([]model.Booking, error) {
	t, err := pgTx(tx)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListActiveTx(ctx, t, employeeID, from, to)
}

func (s *PgStore) Insert(ctx context.Context, tx Tx, b *model.Booking) (string, error) {
	t, err := pgTx(tx)
	if err != nil {
		return "", err
	}
	id, err := s.bookings.Insert(ctx, t, b)
	if storage.IsConflict(err) {
		return "", ErrSlotTaken
	}
	return id, err
}

func (s *PgStore) GetWorkingHours(ctx context.Context, tx Tx, employeeID string, weekday int) (model.WorkingHour, bool, error) {
	t, err := pgTx(tx)
	if err != nil {
		return model.WorkingHour{}, false, err
	}
	return s.schedule.GetWorkingHoursTx(ctx, t, employeeID, weekday)
}

func (s *PgStore) ListOverrides(ctx context.Context, tx Tx, employeeID string, from, to time.Time) ([]model.Override, error) {
	t, err := pgTx(tx)
	if err != nil {
		return nil, err
	}
	return s.schedule.ListOverridesTx(ctx, t, employeeID, from, to)
}

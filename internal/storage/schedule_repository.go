package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/libs/db"
)

// ScheduleRepository reads and maintains working hours and availability
// overrides. The availability core only reads; the admin surface writes.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) GetWorkingHours(ctx context.Context, employeeID string, weekday int) (model.WorkingHour, bool, error) {
	var wh model.WorkingHour
	err := r.pool.QueryRow(ctx, `
		SELECT employee_id::text, weekday, start_minute, end_minute, is_off
		FROM working_hours
		WHERE employee_id = $1 AND weekday = $2
	`, employeeID, weekday).Scan(&wh.EmployeeID, &wh.Weekday, &wh.StartMinute, &wh.EndMinute, &wh.IsOff)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkingHour{}, false, nil
	}
	if err != nil {
		return model.WorkingHour{}, false, err
	}
	return wh, true, nil
}

func (r *ScheduleRepository) ListWorkingHours(ctx context.Context, employeeID string) ([]model.WorkingHour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_id::text, weekday, start_minute, end_minute, is_off
		FROM working_hours
		WHERE employee_id = $1
		ORDER BY weekday ASC
	`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkingHour
	for rows.Next() {
		var wh model.WorkingHour
		if err := rows.Scan(&wh.EmployeeID, &wh.Weekday, &wh.StartMinute, &wh.EndMinute, &wh.IsOff); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) UpsertWorkingHours(ctx context.Context, wh model.WorkingHour) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO working_hours (employee_id, weekday, start_minute, end_minute, is_off)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_off = EXCLUDED.is_off,
			updated_at = now()
	`, wh.EmployeeID, wh.Weekday, wh.StartMinute, wh.EndMinute, wh.IsOff)
	return err
}

func (r *ScheduleRepository) ListOverrides(ctx context.Context, employeeID string, from, to time.Time) ([]model.Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, employee_id::text, start_time, end_time, is_unavailable, COALESCE(reason, ''), created_at
		FROM availability_overrides
		WHERE employee_id = $1
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.ID, &o.EmployeeID, &o.Start, &o.End, &o.Unavailable, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOverridesTx mirrors ListOverrides inside a transaction, so the commit
// path re-validates against the same snapshot it books into.
func (r *ScheduleRepository) ListOverridesTx(ctx context.Context, tx pgx.Tx, employeeID string, from, to time.Time) ([]model.Override, error) {
	rows, err := tx.Query(ctx, `
		SELECT id::text, employee_id::text, start_time, end_time, is_unavailable, COALESCE(reason, ''), created_at
		FROM availability_overrides
		WHERE employee_id = $1
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.ID, &o.EmployeeID, &o.Start, &o.End, &o.Unavailable, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) CreateOverride(ctx context.Context, o model.Override) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_overrides (id, employee_id, start_time, end_time, is_unavailable, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, o.EmployeeID, o.Start, o.End, o.Unavailable, o.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) DeleteOverride(ctx context.Context, employeeID, overrideID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_overrides
		WHERE id = $1 AND employee_id = $2
	`, overrideID, employeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetWorkingHoursTx mirrors GetWorkingHours inside a transaction.
func (r *ScheduleRepository) GetWorkingHoursTx(ctx context.Context, tx pgx.Tx, employeeID string, weekday int) (model.WorkingHour, bool, error) {
	var wh model.WorkingHour
	err := tx.QueryRow(ctx, `
		SELECT employee_id::text, weekday, start_minute, end_minute, is_off
		FROM working_hours
		WHERE employee_id = $1 AND weekday = $2
	`, employeeID, weekday).Scan(&wh.EmployeeID, &wh.Weekday, &wh.StartMinute, &wh.EndMinute, &wh.IsOff)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkingHour{}, false, nil
	}
	if err != nil {
		return model.WorkingHour{}, false, err
	}
	return wh, true, nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/libs/db"
)

// BookingRepository is the only writer of booking rows. The commit path runs
// entirely inside a transaction with the employee's schedule locked; the
// schema backs this up with an exclusion constraint on the buffer-inclusive
// occupied range (see schema.sql).
type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockEmployeeSchedule serializes concurrent commit attempts for one
// employee. Every committer takes this row lock before re-checking overlaps,
// so a sibling transaction cannot slip an intersecting booking past the
// re-query.
func (r *BookingRepository) LockEmployeeSchedule(ctx context.Context, tx pgx.Tx, employeeID string) error {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id::text FROM employees WHERE id = $1 FOR UPDATE
	`, employeeID).Scan(&id)
	return err
}

// ListActive returns non-cancelled bookings whose buffer-inclusive occupied
// interval intersects [from, to).
func (r *BookingRepository) ListActive(ctx context.Context, employeeID string, from, to time.Time) ([]model.Booking, error) {
	return r.listActive(ctx, r.pool, employeeID, from, to)
}

// ListActiveTx is ListActive inside the commit transaction, after the
// employee lock is held.
func (r *BookingRepository) ListActiveTx(ctx context.Context, tx pgx.Tx, employeeID string, from, to time.Time) ([]model.Booking, error) {
	return r.listActive(ctx, tx, employeeID, from, to)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *BookingRepository) listActive(ctx context.Context, q querier, employeeID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, business_id::text, employee_id::text, service_id::text, customer_ref,
			start_time, end_time, buffer_before_minutes, buffer_after_minutes,
			status, cancelled_at, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE employee_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time - make_interval(mins => buffer_before_minutes) < $3
			AND end_time + make_interval(mins => buffer_after_minutes) > $2
		ORDER BY start_time ASC
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var cancelledAt *time.Time
		if err := rows.Scan(
			&b.ID, &b.BusinessID, &b.EmployeeID, &b.ServiceID, &b.CustomerRef,
			&b.Start, &b.End, &b.BufferBefore, &b.BufferAfter,
			&b.Status, &cancelledAt, &b.CancelReason, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.CancelledAt = cancelledAt
		out = append(out, b)
	}
	return out, rows.Err()
}

// Insert writes the booking row. An exclusion-constraint violation here means
// a race the row lock should have prevented; callers map it to the same
// conflict outcome as a failed re-check.
func (r *BookingRepository) Insert(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings
			(id, business_id, employee_id, service_id, customer_ref,
			start_time, end_time, buffer_before_minutes, buffer_after_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, b.BusinessID, b.EmployeeID, b.ServiceID, b.CustomerRef,
		b.Start, b.End, b.BufferBefore, b.BufferAfter, b.Status)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, bookingID string) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id::text, business_id::text, employee_id::text, service_id::text, customer_ref,
			start_time, end_time, buffer_before_minutes, buffer_after_minutes,
			status, cancelled_at, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, bookingID, businessID).Scan(
		&b.ID, &b.BusinessID, &b.EmployeeID, &b.ServiceID, &b.CustomerRef,
		&b.Start, &b.End, &b.BufferBefore, &b.BufferAfter,
		&b.Status, &cancelledAt, &b.CancelReason, &b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, businessID, bookingID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $3
		WHERE id = $1 AND business_id = $2
		RETURNING cancelled_at
	`, bookingID, businessID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, employee_id::text, service_id::text, customer_ref,
			start_time, end_time, buffer_before_minutes, buffer_after_minutes,
			status, cancelled_at, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var cancelledAt *time.Time
		if err := rows.Scan(
			&b.ID, &b.BusinessID, &b.EmployeeID, &b.ServiceID, &b.CustomerRef,
			&b.Start, &b.End, &b.BufferBefore, &b.BufferAfter,
			&b.Status, &cancelledAt, &b.CancelReason, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.CancelledAt = cancelledAt
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

// IsConflict matches the exclusion-constraint violation raised when two
// occupied ranges for one employee would intersect at the storage layer.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

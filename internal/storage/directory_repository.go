package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/libs/db"
)

// DirectoryRepository owns the business/service/employee lookups the
// availability core consumes, plus the admin writes that feed them.
type DirectoryRepository struct {
	pool *db.Pool
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

func (r *DirectoryRepository) GetBusinessTimezone(ctx context.Context, businessID string) (string, error) {
	var tz string
	err := r.pool.QueryRow(ctx, `
		SELECT timezone FROM businesses WHERE id = $1
	`, businessID).Scan(&tz)
	return tz, err
}

func (r *DirectoryRepository) GetSlotStepMinutes(ctx context.Context, businessID string) (int, error) {
	var step int
	err := r.pool.QueryRow(ctx, `
		SELECT slot_step_minutes FROM businesses WHERE id = $1
	`, businessID).Scan(&step)
	return step, err
}

func (r *DirectoryRepository) CreateBusiness(ctx context.Context, name, timezone string, slotStepMinutes int) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO businesses (id, name, timezone, slot_step_minutes)
		VALUES ($1, $2, $3, $4)
	`, id, name, timezone, slotStepMinutes)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *DirectoryRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, price::text
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins, &s.BufferBefore, &s.BufferAfter, &s.Price)
	return s, err
}

func (r *DirectoryRepository) CreateService(ctx context.Context, s model.Service) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, s.BusinessID, s.Name, s.DurationMins, s.BufferBefore, s.BufferAfter, s.Price)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *DirectoryRepository) CreateEmployee(ctx context.Context, businessID, name string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO employees (id, business_id, name, is_active)
		VALUES ($1, $2, $3, true)
	`, id, businessID, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AssignService links an employee to a service, marking them qualified.
func (r *DirectoryRepository) AssignService(ctx context.Context, businessID, employeeID, serviceID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM employees e
			JOIN services s ON s.business_id = e.business_id
			WHERE e.id = $1 AND s.id = $2 AND e.business_id = $3
		)
	`, employeeID, serviceID, businessID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO employee_services (employee_id, service_id)
		VALUES ($1, $2)
		ON CONFLICT (employee_id, service_id) DO NOTHING
	`, employeeID, serviceID)
	return err
}

// ListQualifiedEmployees returns active employees linked to the service.
func (r *DirectoryRepository) ListQualifiedEmployees(ctx context.Context, businessID, serviceID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id::text
		FROM employees e
		JOIN employee_services es ON es.employee_id = e.id
		WHERE e.business_id = $1 AND es.service_id = $2 AND e.is_active
		ORDER BY e.created_at ASC
	`, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsQualified reports whether the employee may perform the service.
func (r *DirectoryRepository) IsQualified(ctx context.Context, businessID, employeeID, serviceID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM employees e
			JOIN employee_services es ON es.employee_id = e.id
			WHERE e.business_id = $1 AND e.id = $2 AND es.service_id = $3 AND e.is_active
		)
	`, businessID, employeeID, serviceID).Scan(&ok)
	return ok, err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tenantly/bookd/internal/availability"
	"github.com/tenantly/bookd/internal/booking"
	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/metrics"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/outbox"
	"github.com/tenantly/bookd/internal/slots"
	"github.com/tenantly/bookd/internal/storage"
)

// AvailabilityService is the read-side slot view consumed by the public
// endpoints.
type AvailabilityService interface {
	Slots(ctx context.Context, q availability.Query) ([]availability.EmployeeSlots, error)
	IsSlotStillAvailable(ctx context.Context, q availability.Query, start time.Time) (bool, error)
}

// Committer is the authoritative booking commit path.
type Committer interface {
	Commit(ctx context.Context, req booking.Request) (model.Booking, error)
}

type BookingHandler struct {
	avail     AvailabilityService
	committer Committer
	directory availability.Directory
	repo      *storage.BookingRepository // nil disables idempotency + management endpoints
	sink      *outbox.Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

func NewBookingHandler(
	avail AvailabilityService,
	committer Committer,
	directory availability.Directory,
	repo *storage.BookingRepository,
	sink *outbox.Sink,
	logger *slog.Logger,
	m *metrics.Metrics,
) *BookingHandler {
	return &BookingHandler{
		avail:     avail,
		committer: committer,
		directory: directory,
		repo:      repo,
		sink:      sink,
		logger:    logger,
		metrics:   m,
		validate:  validator.New(),
	}
}

type slotItem struct {
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	EmployeeIDs []string `json:"employee_ids"`
}

// Slots serves GET /api/v1/public/slots. Slot lists are computed per
// employee; the response aggregates by start time, listing every employee
// able to serve it ("any employee" = union of per-employee start times).
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, ok := h.queryFromRequest(w, r, true)
	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.AvailabilityQueries.Inc()
	}

	perEmployee, err := h.avail.Slots(r.Context(), q)
	if err != nil {
		h.writeAvailabilityError(w, err)
		return
	}

	agg := availability.Union(perEmployee)
	items := make([]slotItem, 0, len(agg))
	for _, s := range agg {
		items = append(items, slotItem{
			StartTime:   s.Start.UTC().Format(time.RFC3339),
			EndTime:     s.End.UTC().Format(time.RFC3339),
			EmployeeIDs: s.EmployeeIDs,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Check serves GET /api/v1/public/slots/check: the advisory "still
// available?" pre-check. Never authoritative.
func (h *BookingHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, ok := h.queryFromRequest(w, r, false)
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("start")))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}

	free, err := h.avail.IsSlotStillAvailable(r.Context(), q, start)
	if err != nil {
		h.writeAvailabilityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": free})
}

type createBookingRequest struct {
	BusinessID  string `json:"business_id" validate:"required"`
	ServiceID   string `json:"service_id" validate:"required"`
	EmployeeID  string `json:"employee_id"` // empty or "any" books any qualified employee
	CustomerRef string `json:"customer_ref" validate:"required,max=256"`
	StartTime   string `json:"start_time" validate:"required"`
	Timezone    string `json:"timezone"`
}

type createBookingResponse struct {
	BookingID  string `json:"booking_id"`
	EmployeeID string `json:"employee_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

// Create serves POST /api/v1/public/book. The commit path re-validates the
// slot transactionally; a lost race surfaces as 409.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.CustomerRef = strings.TrimSpace(req.CustomerRef)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.directory.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("service lookup failed", "err", err)
		http.Error(w, "service lookup failed", http.StatusInternalServerError)
		return
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz, err = h.directory.GetBusinessTimezone(ctx, req.BusinessID)
		if err != nil {
			h.logger.Error("business lookup failed", "err", err)
			http.Error(w, "business lookup failed", http.StatusInternalServerError)
			return
		}
	}
	if _, err := calendar.Location(tz); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if h.repo != nil && idempotencyKey != "" {
		h.createIdempotent(w, r, req, svc, tz, start, idempotencyKey)
		return
	}

	status, body := h.commit(ctx, req, svc, tz, start)
	writeRaw(w, status, body)
}

// commit runs the booking commit (trying each qualified employee for "any")
// and renders the outcome. The response body is returned so idempotent
// replays can store it verbatim.
func (h *BookingHandler) commit(ctx context.Context, req createBookingRequest, svc model.Service, tz string, start time.Time) (int, []byte) {
	employees, err := h.commitCandidates(ctx, req)
	if err != nil {
		h.logger.Error("employee lookup failed", "err", err)
		return http.StatusInternalServerError, errorBody("employee lookup failed")
	}
	if len(employees) == 0 {
		return http.StatusNotFound, errorBody("no qualified employee")
	}

	began := time.Now()
	var lastErr error
	for _, empID := range employees {
		b, err := h.committer.Commit(ctx, booking.Request{
			BusinessID:  req.BusinessID,
			EmployeeID:  empID,
			ServiceID:   req.ServiceID,
			CustomerRef: req.CustomerRef,
			Start:       start,
			Service:     svc,
			Timezone:    tz,
		})
		if err == nil {
			if h.metrics != nil {
				h.metrics.BookingsCommitted.Inc()
				h.metrics.CommitDuration.Observe(time.Since(began).Seconds())
			}
			body, _ := json.Marshal(createBookingResponse{
				BookingID:  b.ID,
				EmployeeID: b.EmployeeID,
				StartTime:  b.Start.UTC().Format(time.RFC3339),
				EndTime:    b.End.UTC().Format(time.RFC3339),
				Status:     b.Status,
			})
			return http.StatusCreated, body
		}
		if errors.Is(err, booking.ErrSlotTaken) {
			lastErr = err
			continue
		}
		return h.commitErrorResponse(err)
	}

	if errors.Is(lastErr, booking.ErrSlotTaken) {
		if h.metrics != nil {
			h.metrics.BookingsRejected.WithLabelValues("conflict").Inc()
		}
		return http.StatusConflict, errorBody("slot no longer available")
	}
	return http.StatusInternalServerError, errorBody("booking failed")
}

func (h *BookingHandler) commitErrorResponse(err error) (int, []byte) {
	switch {
	case errors.Is(err, booking.ErrBookingTimedOut):
		if h.metrics != nil {
			h.metrics.BookingsRejected.WithLabelValues("timeout").Inc()
		}
		return http.StatusGatewayTimeout, errorBody("booking timed out, retry")
	case errors.Is(err, slots.ErrInvalidServiceConfig):
		return http.StatusUnprocessableEntity, errorBody("invalid service configuration")
	case errors.Is(err, calendar.ErrInvalidTimezone):
		return http.StatusBadRequest, errorBody("invalid timezone")
	default:
		h.logger.Error("booking commit failed", "err", err)
		if h.metrics != nil {
			h.metrics.BookingsRejected.WithLabelValues("storage").Inc()
		}
		return http.StatusInternalServerError, errorBody("booking failed")
	}
}

// createIdempotent wraps commit with the Idempotency-Key protocol: the key
// row is locked FOR UPDATE for the duration, so concurrent retries with the
// same key serialize and replay the first recorded response.
func (h *BookingHandler) createIdempotent(w http.ResponseWriter, r *http.Request, req createBookingRequest, svc model.Service, tz string, start time.Time, key string) {
	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, existed, err := h.repo.LockIdempotencyKey(ctx, tx, req.BusinessID, key)
	if err != nil {
		h.logger.Error("idempotency lock failed", "err", err)
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if existed && rec.StatusCode > 0 {
		writeRaw(w, rec.StatusCode, rec.ResponsePayload)
		return
	}

	status, body := h.commit(ctx, req, svc, tz, start)

	bookingID := ""
	if status == http.StatusCreated {
		var resp createBookingResponse
		if json.Unmarshal(body, &resp) == nil {
			bookingID = resp.BookingID
		}
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, req.BusinessID, key, bookingID, status, body); err != nil {
		h.logger.Error("idempotency finalize failed", "err", err)
	} else if err := tx.Commit(ctx); err != nil {
		h.logger.Error("idempotency commit failed", "err", err)
	}
	writeRaw(w, status, body)
}

type cancelBookingRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	BookingID  string `json:"booking_id" validate:"required"`
	Reason     string `json:"reason" validate:"max=512"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

// Cancel serves POST /api/v1/bookings/cancel. Repeat cancels of an already
// cancelled booking return the original outcome. Status changes are visible
// to the next conflict check as soon as the transaction commits.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "not supported", http.StatusNotImplemented)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "business_id and booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := h.repo.GetForUpdate(ctx, tx, req.BusinessID, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("booking load failed", "err", err)
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if b.Status == model.StatusCancelled && b.CancelledAt != nil {
		writeJSON(w, http.StatusOK, cancelBookingResponse{
			BookingID:   b.ID,
			Status:      model.StatusCancelled,
			CancelledAt: b.CancelledAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if !b.Occupies() {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, req.BusinessID, b.ID, req.Reason)
	if err != nil {
		h.logger.Error("cancel failed", "err", err)
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	if h.sink != nil {
		if err := h.sink.InsertCancelled(ctx, tx, b, cancelledAt, req.Reason); err != nil {
			h.logger.Error("cancel event failed", "err", err)
			http.Error(w, "failed to write event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID:   b.ID,
		Status:      model.StatusCancelled,
		CancelledAt: cancelledAt.UTC().Format(time.RFC3339),
	})
}

type listBookingItem struct {
	BookingID   string `json:"booking_id"`
	EmployeeID  string `json:"employee_id"`
	ServiceID   string `json:"service_id"`
	CustomerRef string `json:"customer_ref"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// List serves GET /api/v1/bookings for a business.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "not supported", http.StatusNotImplemented)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	bookings, err := h.repo.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		h.logger.Error("booking list failed", "err", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]listBookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := listBookingItem{
			BookingID:   b.ID,
			EmployeeID:  b.EmployeeID,
			ServiceID:   b.ServiceID,
			CustomerRef: b.CustomerRef,
			StartTime:   b.Start.UTC().Format(time.RFC3339),
			EndTime:     b.End.UTC().Format(time.RFC3339),
			Status:      b.Status,
			CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) commitCandidates(ctx context.Context, req createBookingRequest) ([]string, error) {
	if req.EmployeeID != "" && req.EmployeeID != "any" {
		ok, err := h.directory.IsQualified(ctx, req.BusinessID, req.EmployeeID, req.ServiceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []string{req.EmployeeID}, nil
	}
	return h.directory.ListQualifiedEmployees(ctx, req.BusinessID, req.ServiceID)
}

// queryFromRequest builds the availability query from URL params. The date
// is mandatory for slot listing; the pre-check derives its day from the start
// instant, so there requireDate is false and date is accepted when present.
func (h *BookingHandler) queryFromRequest(w http.ResponseWriter, r *http.Request, requireDate bool) (availability.Query, bool) {
	params := r.URL.Query()
	q := availability.Query{
		BusinessID: strings.TrimSpace(params.Get("business_id")),
		ServiceID:  strings.TrimSpace(params.Get("service_id")),
		EmployeeID: strings.TrimSpace(params.Get("employee_id")),
		Timezone:   strings.TrimSpace(params.Get("tz")),
	}
	if q.BusinessID == "" || q.ServiceID == "" {
		http.Error(w, "business_id and service_id required", http.StatusBadRequest)
		return availability.Query{}, false
	}
	rawDate := strings.TrimSpace(params.Get("date"))
	if rawDate == "" && !requireDate {
		return q, true
	}
	date, err := calendar.ParseDate(rawDate)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return availability.Query{}, false
	}
	q.Date = date
	return q, true
}

func (h *BookingHandler) writeAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrInvalidTimezone):
		http.Error(w, "invalid timezone", http.StatusBadRequest)
	case errors.Is(err, slots.ErrInvalidServiceConfig):
		http.Error(w, "invalid service configuration", http.StatusUnprocessableEntity)
	case storage.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error("availability query failed", "err", err)
		http.Error(w, "availability query failed", http.StatusInternalServerError)
	}
}

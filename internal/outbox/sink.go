package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tenantly/bookd/internal/booking"
	"github.com/tenantly/bookd/internal/model"
)

const (
	EventBookingCommitted = "booking.slot.committed.v1"
	EventBookingCancelled = "booking.slot.cancelled.v1"
)

// Sink writes booking lifecycle events into the outbox inside the commit
// transaction, so the event is published iff the booking row lands.
type Sink struct {
	repo *Repository
}

func NewSink(repo *Repository) *Sink {
	return &Sink{repo: repo}
}

func (s *Sink) BookingCommitted(ctx context.Context, tx booking.Tx, b model.Booking) error {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", tx)
	}
	payload, err := json.Marshal(bookingEventPayload(b))
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, t, Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventBookingCommitted,
		Payload:       payload,
	})
}

// InsertCancelled records a cancellation event inside the caller's
// transaction.
func (s *Sink) InsertCancelled(ctx context.Context, tx pgx.Tx, b model.Booking, cancelledAt time.Time, reason string) error {
	body := bookingEventPayload(b)
	body["cancelled_at"] = cancelledAt.UTC().Format(time.RFC3339)
	body["reason"] = reason
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, tx, Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventBookingCancelled,
		Payload:       payload,
	})
}

func bookingEventPayload(b model.Booking) map[string]any {
	return map[string]any{
		"booking_id":   b.ID,
		"business_id":  b.BusinessID,
		"employee_id":  b.EmployeeID,
		"service_id":   b.ServiceID,
		"customer_ref": b.CustomerRef,
		"start_time":   b.Start.UTC().Format(time.RFC3339),
		"end_time":     b.End.UTC().Format(time.RFC3339),
		"status":       b.Status,
	}
}

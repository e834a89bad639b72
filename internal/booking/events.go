package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"autoconnect/pkg/db"
)

const (
	EventQuoteRequested    = "QUOTE_REQUESTED"
	EventBookingChanged    = "BOOKING_CHANGED"
	EventBookingCancelled  = "BOOKING_CANCELLED"
	EventPriceConfirmed    = "PRICE_CONFIRMED"
	EventReceiptUploaded   = "RECEIPT_UPLOADED"
	EventFeedbackSubmitted = "FEEDBACK_SUBMITTED"
)

// Event is one lifecycle action taken through the gateway.
type Event struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"bookingId"`
	EventType  string    `json:"eventType"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// EventLog persists lifecycle events. The backend stays the source of truth
// for booking state; the log only answers "who did what, when".
type EventLog interface {
	Record(ctx context.Context, e Event) error
	ListByBooking(ctx context.Context, bookingID string) ([]Event, error)
}

type PGEventLog struct {
	db *pgxpool.Pool
}

func NewPGEventLog(pool *pgxpool.Pool) *PGEventLog {
	return &PGEventLog{db: pool}
}

func (l *PGEventLog) Record(ctx context.Context, e Event) error {
	return InsertEvent(ctx, l.db, e)
}

func InsertEvent(ctx context.Context, q db.Querier, e Event) error {
	var s *string
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		str := string(b)
		s = &str
	}
	const stmt = `
INSERT INTO booking_events (booking_id, event_type, actor, occurred_at, data)
VALUES ($1, $2, $3, $4, CAST($5 AS jsonb))
`
	_, err := q.Exec(ctx, stmt, e.BookingID, e.EventType, e.Actor, e.OccurredAt, s)
	return err
}

func (l *PGEventLog) ListByBooking(ctx context.Context, bookingID string) ([]Event, error) {
	const q = `
SELECT id::text, booking_id, event_type, actor, occurred_at, COALESCE(data, '{}'::jsonb)
FROM booking_events
WHERE booking_id = $1
ORDER BY occurred_at ASC, id ASC
`
	rows, err := l.db.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var data map[string]any
		if err := rows.Scan(&e.ID, &e.BookingID, &e.EventType, &e.Actor, &e.OccurredAt, &data); err != nil {
			return nil, err
		}
		e.Data = data
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryEventLog keeps events in process. Used when no database is configured.
type MemoryEventLog struct {
	mu     sync.Mutex
	nextID int
	events []Event
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) Record(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	e.ID = strconv.Itoa(l.nextID)
	l.events = append(l.events, e)
	return nil
}

func (l *MemoryEventLog) ListByBooking(ctx context.Context, bookingID string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

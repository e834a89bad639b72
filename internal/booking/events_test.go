package booking

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingQuerier struct {
	execs []string
	args  [][]any
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	q.args = append(q.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("unexpected QueryRow")
}

func TestInsertEvent_StoresJSONData(t *testing.T) {
	q := &recordingQuerier{}
	err := InsertEvent(context.Background(), q, Event{
		BookingID: "12", EventType: EventBookingChanged, Actor: "user:7",
		OccurredAt: time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
		Data:       map[string]any{"toCarId": "5"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(q.args) != 1 {
		t.Fatalf("expected one insert, got %d", len(q.args))
	}
	data, ok := q.args[0][4].(*string)
	if !ok || data == nil || *data != `{"toCarId":"5"}` {
		t.Fatalf("unexpected data arg %#v", q.args[0][4])
	}
}

func TestInsertEvent_UnencodableDataFails(t *testing.T) {
	q := &recordingQuerier{}
	err := InsertEvent(context.Background(), q, Event{
		BookingID: "12", EventType: EventBookingChanged, Actor: "user:7",
		OccurredAt: time.Now(),
		Data:       map[string]any{"ch": make(chan int)},
	})
	if err == nil {
		t.Fatalf("expected a marshal error")
	}
	if len(q.execs) != 0 {
		t.Fatalf("nothing should be written: %v", q.execs)
	}
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"autoconnect/internal/apperr"
	"autoconnect/pkg/autoconnect"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Price Notification.": CategoryPrice,
		"price notification":  CategoryPrice,
		" Payment Method. ":   CategoryPayment,
		"Booking Created.":    CategoryCreated,
		"BOOKING FINISHED.":   CategoryFinished,
		"Booking Cancelled.":  CategoryOther,
		"":                    CategoryOther,
	}
	for in, want := range cases {
		if got := ParseCategory(in); got != want {
			t.Fatalf("ParseCategory(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestRoute(t *testing.T) {
	loaded := BookingFacts{Loaded: true}
	cases := []struct {
		name      string
		category  Category
		facts     BookingFacts
		action    Action
		available bool
	}{
		{"price pending", CategoryPrice, loaded, ActionConfirmPrice, true},
		{"price accepted", CategoryPrice, BookingFacts{Loaded: true, PriceAccepted: true}, ActionConfirmPrice, false},
		{"price without booking", CategoryPrice, BookingFacts{}, ActionNone, false},
		{"payment open", CategoryPayment, loaded, ActionSubmitPayment, true},
		{"payment done", CategoryPayment, BookingFacts{Loaded: true, HasReceipt: true}, ActionSubmitPayment, false},
		{"created", CategoryCreated, BookingFacts{}, ActionViewBooking, true},
		{"finished", CategoryFinished, loaded, ActionOpenFeedback, true},
		{"finished rated", CategoryFinished, BookingFacts{Loaded: true, HasFeedback: true}, ActionOpenFeedback, false},
		{"finished without booking", CategoryFinished, BookingFacts{}, ActionNone, false},
		{"other", CategoryOther, loaded, ActionNone, false},
	}
	for _, c := range cases {
		got := Route(c.category, c.facts)
		if got.Action != c.action || got.Available != c.available {
			t.Fatalf("%s: expected %s/%v, got %+v", c.name, c.action, c.available, got)
		}
	}
}

func TestCache_MarkReadRevertsOnFailure(t *testing.T) {
	c := NewCache()
	c.Merge("7", []Notification{{ID: "1"}, {ID: "2", Read: true}})

	var seenRead bool
	err := c.MarkRead(context.Background(), "7", "1", func(ctx context.Context) error {
		n, _ := c.Get("7", "1")
		seenRead = n.Read
		return errors.New("backend down")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !seenRead {
		t.Fatalf("expected optimistic read while in flight")
	}
	if n, _ := c.Get("7", "1"); n.Read {
		t.Fatalf("expected read mark to be reverted")
	}

	if err := c.MarkRead(context.Background(), "7", "1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := c.Get("7", "1"); !n.Read {
		t.Fatalf("expected read")
	}
	if Unread(c.List("7")) != 0 {
		t.Fatalf("expected no unread")
	}
}

func TestCache_MergeKeepsPendingReads(t *testing.T) {
	c := NewCache()
	c.Merge("7", []Notification{{ID: "1"}})

	err := c.MarkRead(context.Background(), "7", "1", func(context.Context) error {
		// A refresh lands while the PATCH is in flight and still says unread.
		items := c.Merge("7", []Notification{{ID: "1"}})
		if !items[0].Read {
			t.Errorf("refresh dropped the pending read mark")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := c.Get("7", "1"); !n.Read {
		t.Fatalf("expected read")
	}
}

type fakeBackend struct {
	messages []autoconnect.Message
	booking  *autoconnect.Booking
	feedback bool
	markErr  error
	marked   []autoconnect.ID
}

func (f *fakeBackend) ListUserMessages(ctx context.Context, userID autoconnect.ID) ([]autoconnect.Message, error) {
	return f.messages, nil
}

func (f *fakeBackend) MarkMessageRead(ctx context.Context, id autoconnect.ID) error {
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeBackend) BookingDetails(ctx context.Context, id autoconnect.ID) (*autoconnect.Booking, error) {
	if f.booking == nil {
		return nil, &autoconnect.APIError{StatusCode: 404, Message: "Booking not found"}
	}
	return f.booking, nil
}

func (f *fakeBackend) HasFeedback(ctx context.Context, bookingID autoconnect.ID) (bool, error) {
	return f.feedback, nil
}

func testBooking(priceAccepted bool, receipt string) *autoconnect.Booking {
	d, _ := autoconnect.ParseDate("2024-03-10")
	b := &autoconnect.Booking{
		BookingID: "12", CarID: "3", UserID: "7", PickupDate: d, ReturnDate: d,
		Status: "Pending", PriceAccepted: priceAccepted,
	}
	if receipt != "" {
		b.Receipt = json.RawMessage(receipt)
	}
	return b
}

func TestService_OpenRoutesAndMarksRead(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fakeBackend{
		messages: []autoconnect.Message{
			{ID: "1", Title: "Price Notification.", UserID: "7", BookingID: "12", CreatedAt: now},
			{ID: "2", Title: "Payment Method.", UserID: "7", BookingID: "12", CreatedAt: now.Add(time.Hour)},
			{ID: "3", Title: "Booking Created.", UserID: "99", BookingID: "13", CreatedAt: now},
		},
		booking: testBooking(false, `null`),
	}
	s := NewService(f, nil, nil)

	inbox, err := s.List(context.Background(), "7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inbox.Items) != 2 || inbox.Unread != 2 || inbox.Items[0].ID != "2" {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	out, err := s.Open(context.Background(), "7", "1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.Offer.Action != ActionConfirmPrice || !out.Offer.Available || !out.Notification.Read {
		t.Fatalf("unexpected open %+v", out)
	}
	if len(f.marked) != 1 || f.marked[0] != "1" {
		t.Fatalf("expected PATCH for 1, got %v", f.marked)
	}

	out, err = s.Open(context.Background(), "7", "2")
	if err != nil || out.Offer.Action != ActionSubmitPayment || !out.Offer.Available {
		t.Fatalf("payment offer: %+v %v", out, err)
	}

	if _, err := s.Open(context.Background(), "7", "3"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected other user's notification to be hidden, got %v", err)
	}
}

func TestService_MarkReadFailureSurfaces(t *testing.T) {
	f := &fakeBackend{
		messages: []autoconnect.Message{{ID: "1", Title: "Booking Created.", UserID: "7"}},
		markErr:  &autoconnect.NetworkError{Op: "PATCH", Err: errors.New("connection refused")},
	}
	s := NewService(f, nil, nil)

	err := s.MarkRead(context.Background(), "7", "1")
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	inbox, _ := s.List(context.Background(), "7")
	if inbox.Unread != 1 {
		t.Fatalf("expected the notification to stay unread, got %+v", inbox)
	}
}

func TestService_OpenHidesBookingWithoutOwner(t *testing.T) {
	b := testBooking(false, `null`)
	b.UserID = ""
	f := &fakeBackend{
		messages: []autoconnect.Message{
			{ID: "1", Title: "Price Notification.", UserID: "7", BookingID: "12"},
			{ID: "2", Title: "BOOKING FINISHED.", UserID: "7", BookingID: "12"},
		},
		booking: b,
	}
	s := NewService(f, nil, nil)

	for _, id := range []string{"1", "2"} {
		out, err := s.Open(context.Background(), "7", id)
		if err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
		if out.Offer.Action != ActionNone || out.Offer.Available || out.Booking != nil {
			t.Fatalf("open %s: expected no offer, got %+v", id, out)
		}
	}
}

package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autoconnect/internal/apperr"
	"autoconnect/pkg/autoconnect"
)

type fakeBackend struct {
	occupied map[autoconnect.ID][]autoconnect.OccupiedRange
	bookings map[autoconnect.ID]*autoconnect.Booking
	feedback map[autoconnect.ID]bool

	calls     []string
	created   *autoconnect.CreateBookingRequest
	updated   *autoconnect.UpdateBookingRequest
	cancelled *autoconnect.CancelBookingRequest
	confirmed *autoconnect.ConfirmPriceRequest
	uploaded  *autoconnect.ReceiptUpload
	rated     *autoconnect.FeedbackRequest

	failWith error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		occupied: map[autoconnect.ID][]autoconnect.OccupiedRange{},
		bookings: map[autoconnect.ID]*autoconnect.Booking{},
		feedback: map[autoconnect.ID]bool{},
	}
}

func (f *fakeBackend) OccupiedDates(ctx context.Context, carID autoconnect.ID) ([]autoconnect.OccupiedRange, error) {
	f.calls = append(f.calls, "occupied:"+carID.String())
	return f.occupied[carID], nil
}

func (f *fakeBackend) CreateBooking(ctx context.Context, req autoconnect.CreateBookingRequest) (*autoconnect.Booking, error) {
	f.calls = append(f.calls, "create")
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.created = &req
	return &autoconnect.Booking{
		BookingID: "100", CarID: req.CarID, UserID: req.UserID,
		PickupDate: mustDate(req.PickupDate), ReturnDate: mustDate(req.ReturnDate),
		PickupTime: req.PickupTime + ":00", Status: "Pending", Name: req.Name,
	}, nil
}

func (f *fakeBackend) UpdateBooking(ctx context.Context, id autoconnect.ID, req autoconnect.UpdateBookingRequest) (*autoconnect.Booking, error) {
	f.calls = append(f.calls, "update")
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.updated = &req
	return nil, nil
}

func (f *fakeBackend) CancelBooking(ctx context.Context, id autoconnect.ID, req autoconnect.CancelBookingRequest) error {
	f.calls = append(f.calls, "cancel")
	if f.failWith != nil {
		return f.failWith
	}
	f.cancelled = &req
	return nil
}

func (f *fakeBackend) ConfirmPrice(ctx context.Context, id autoconnect.ID, req autoconnect.ConfirmPriceRequest) error {
	f.calls = append(f.calls, "confirm")
	f.confirmed = &req
	return nil
}

func (f *fakeBackend) UploadReceipt(ctx context.Context, id autoconnect.ID, up autoconnect.ReceiptUpload) error {
	f.calls = append(f.calls, "upload")
	f.uploaded = &up
	return nil
}

func (f *fakeBackend) GetBooking(ctx context.Context, id autoconnect.ID) (*autoconnect.Booking, error) {
	f.calls = append(f.calls, "get")
	b, ok := f.bookings[id]
	if !ok {
		return nil, &autoconnect.APIError{StatusCode: 404, Message: "Booking not found"}
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBackend) ListUserBookings(ctx context.Context, userID autoconnect.ID) ([]autoconnect.Booking, error) {
	var out []autoconnect.Booking
	for _, b := range f.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBackend) HasFeedback(ctx context.Context, bookingID autoconnect.ID) (bool, error) {
	return f.feedback[bookingID], nil
}

func (f *fakeBackend) SubmitFeedback(ctx context.Context, req autoconnect.FeedbackRequest) error {
	f.calls = append(f.calls, "feedback")
	f.rated = &req
	return nil
}

func mustDate(s string) autoconnect.Date {
	d, err := autoconnect.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

var alice = Actor{UserID: "7", Email: "alice@example.ph"}

func newTestEngine(f *fakeBackend) (*Engine, *MemoryEventLog) {
	ev := NewMemoryEventLog()
	e := NewEngine(f, ev, nil)
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, autoconnect.DayZone) }
	return e, ev
}

func seedBooking(f *fakeBackend, id, car, status, from, to string) *autoconnect.Booking {
	b := &autoconnect.Booking{
		BookingID: autoconnect.ID(id), CarID: autoconnect.ID(car), UserID: "7",
		PickupDate: mustDate(from), ReturnDate: mustDate(to),
		PickupTime: "09:00:00", ReturnTime: "17:00:00",
		Name: "Alice", Email: "alice@example.ph", Phone: "0917",
		PickupLocation: "Makati", ReturnLocation: "Makati",
		RentalType: "personal", Status: status,
	}
	f.bookings[b.BookingID] = b
	return b
}

func validQuote() QuoteInput {
	return QuoteInput{
		CarID: "3", PickupLocation: "Makati", ReturnLocation: "BGC",
		PickupDate: "2024-03-16", ReturnDate: "2024-03-18",
		PickupTime: "09:00", ReturnTime: "17:00",
		Name: "Alice", Email: "alice@example.ph", Phone: "09171234567",
		RentalType: "personal",
	}
}

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	return apperr.KindOf(err)
}

func TestCreate_AnonymousNeverReachesBackend(t *testing.T) {
	f := newFakeBackend()
	e, _ := newTestEngine(f)

	_, err := e.Create(context.Background(), Actor{}, validQuote())
	if kindOf(t, err) != apperr.KindAuthRequired {
		t.Fatalf("expected auth required, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("backend called: %v", f.calls)
	}
}

func TestCreate_RejectsOverlap(t *testing.T) {
	f := newFakeBackend()
	f.occupied["3"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-15")}}
	e, _ := newTestEngine(f)

	in := validQuote()
	in.PickupDate, in.ReturnDate = "2024-03-12", "2024-03-14"
	_, err := e.Create(context.Background(), alice, in)
	if kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.created != nil {
		t.Fatalf("create must not be sent on conflict")
	}
}

func TestCreate_AcceptsFreeRange(t *testing.T) {
	f := newFakeBackend()
	f.occupied["3"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-15")}}
	e, ev := newTestEngine(f)

	b, err := e.Create(context.Background(), alice, validQuote())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != StatusPending || b.ID != "100" || b.PickupTime != "09:00" {
		t.Fatalf("unexpected booking: %+v", b)
	}
	req := f.created
	if req.PickupTime != "09:00" || req.ReturnTime != "17:00" || req.RentalType != RentalPersonal || req.AdditionalRequest != "None" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.UserID != "7" || req.CarID != "3" {
		t.Fatalf("ids: %+v", req)
	}
	if len(ev.events) != 1 || ev.events[0].EventType != EventQuoteRequested {
		t.Fatalf("events: %+v", ev.events)
	}
}

func TestCreate_ValidationBeforeNetwork(t *testing.T) {
	f := newFakeBackend()
	e, _ := newTestEngine(f)

	in := validQuote()
	in.Email = "not-an-email"
	in.PickupTime = "9am"
	_, err := e.Create(context.Background(), alice, in)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation || ae.Fields["email"] == "" || ae.Fields["pickupTime"] == "" {
		t.Fatalf("expected field errors, got %v", err)
	}

	in = validQuote()
	in.PickupDate, in.ReturnDate = "2024-02-20", "2024-02-22"
	if _, err := e.Create(context.Background(), alice, in); kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected past pickup to be rejected, got %v", err)
	}

	in = validQuote()
	in.PickupDate, in.ReturnDate = "2024-03-18", "2024-03-16"
	if _, err := e.Create(context.Background(), alice, in); kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected inverted range to be rejected, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("backend called: %v", f.calls)
	}
}

func TestCreate_RequiresTimesAndRentalType(t *testing.T) {
	cases := []struct {
		field string
		clear func(*QuoteInput)
	}{
		{"pickupTime", func(in *QuoteInput) { in.PickupTime = "" }},
		{"returnTime", func(in *QuoteInput) { in.ReturnTime = "" }},
		{"rentalType", func(in *QuoteInput) { in.RentalType = "" }},
	}
	for _, c := range cases {
		f := newFakeBackend()
		e, _ := newTestEngine(f)

		in := validQuote()
		c.clear(&in)
		_, err := e.Create(context.Background(), alice, in)
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation || ae.Fields[c.field] == "" {
			t.Fatalf("%s: expected field error, got %v", c.field, err)
		}
		if len(f.calls) != 0 {
			t.Fatalf("%s: backend called: %v", c.field, f.calls)
		}
	}
}

func TestCreate_BackendConflictSurfacesAsConflict(t *testing.T) {
	f := newFakeBackend()
	f.failWith = &autoconnect.APIError{StatusCode: 409, Message: "Car already booked"}
	e, _ := newTestEngine(f)

	_, err := e.Create(context.Background(), alice, validQuote())
	if kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEdit_OwnIntervalDoesNotConflict(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Confirmed", "2024-03-10", "2024-03-12")
	f.occupied["3"] = []autoconnect.OccupiedRange{
		{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-12")},
		{StartDate: mustDate("2024-03-20"), EndDate: mustDate("2024-03-22")},
	}
	e, _ := newTestEngine(f)

	b, err := e.Edit(context.Background(), alice, "12", EditInput{PickupDate: "2024-03-11", ReturnDate: "2024-03-13"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.updated.PickupDate != "2024-03-11" || f.updated.ReturnDate != "2024-03-13" || f.updated.CarID != "3" {
		t.Fatalf("unexpected update: %+v", f.updated)
	}
	if b.Period.Days() != 3 {
		t.Fatalf("period: %+v", b.Period)
	}

	_, err = e.Edit(context.Background(), alice, "12", EditInput{PickupDate: "2024-03-12", ReturnDate: "2024-03-20"})
	if kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict with the other booking, got %v", err)
	}
}

func TestEdit_ReturnDateOnly(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "1", "3", "Pending", "2024-03-10", "2024-03-12")
	f.occupied["3"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-12")}}
	e, ev := newTestEngine(f)

	b, err := e.Edit(context.Background(), alice, "1", EditInput{ReturnDate: "2024-03-20"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.updated.PickupDate != "2024-03-10" || f.updated.ReturnDate != "2024-03-20" {
		t.Fatalf("unexpected update: %+v", f.updated)
	}
	if b.Period.End.Format(time.DateOnly) != "2024-03-20" {
		t.Fatalf("period: %+v", b.Period)
	}
	if len(ev.events) != 1 || ev.events[0].Data.(map[string]any)["returnDate"] != "2024-03-20" {
		t.Fatalf("events: %+v", ev.events)
	}
}

func TestEdit_ReturnDateOnlyConflicts(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "1", "3", "Pending", "2024-03-10", "2024-03-12")
	f.occupied["3"] = []autoconnect.OccupiedRange{
		{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-12")},
		{StartDate: mustDate("2024-03-15"), EndDate: mustDate("2024-03-16")},
	}
	e, ev := newTestEngine(f)

	_, err := e.Edit(context.Background(), alice, "1", EditInput{ReturnDate: "2024-03-20"})
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict || ae.Code != "DATES_UNAVAILABLE" {
		t.Fatalf("expected DATES_UNAVAILABLE, got %v", err)
	}
	if f.updated != nil || len(ev.events) != 0 {
		t.Fatalf("nothing should be sent: %+v %+v", f.updated, ev.events)
	}

	_, err = e.Edit(context.Background(), alice, "1", EditInput{ReturnDate: "2024-03-09"})
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected return before pickup to be rejected, got %v", err)
	}
}

func TestEdit_StartedBookingCanBeExtended(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "1", "3", "Confirmed", "2024-02-28", "2024-03-02")
	f.occupied["3"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-02-28"), EndDate: mustDate("2024-03-02")}}
	e, _ := newTestEngine(f)

	if _, err := e.Edit(context.Background(), alice, "1", EditInput{ReturnDate: "2024-03-04"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.updated.PickupDate != "2024-02-28" || f.updated.ReturnDate != "2024-03-04" {
		t.Fatalf("unexpected update: %+v", f.updated)
	}

	f.updated = nil
	_, err := e.Edit(context.Background(), alice, "1", EditInput{PickupDate: "2024-02-29", ReturnDate: "2024-03-04"})
	if kindOf(t, err) != apperr.KindValidation || f.updated != nil {
		t.Fatalf("expected a moved past pickup to be rejected, got %v", err)
	}
}

func TestEdit_CarChangeResetsToNearestAvailable(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	f.occupied["5"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-03-01"), EndDate: mustDate("2024-03-04")}}
	e, ev := newTestEngine(f)

	_, err := e.Edit(context.Background(), alice, "12", EditInput{CarID: "5"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.updated.CarID != "5" || f.updated.PickupDate != "2024-03-05" || f.updated.ReturnDate != "2024-03-07" {
		t.Fatalf("unexpected update: %+v", f.updated)
	}
	if len(ev.events) != 1 || ev.events[0].EventType != EventBookingChanged {
		t.Fatalf("events: %+v", ev.events)
	}
}

func TestEdit_CarChangeDoesNotExemptOldDates(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	f.occupied["5"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-03-10"), EndDate: mustDate("2024-03-12")}}
	e, _ := newTestEngine(f)

	_, err := e.Edit(context.Background(), alice, "12", EditInput{CarID: "5", PickupDate: "2024-03-10", ReturnDate: "2024-03-12"})
	if kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict on the new car, got %v", err)
	}
}

func TestEdit_TerminalBookingsAreLocked(t *testing.T) {
	for _, status := range []string{"Finished", "Cancelled"} {
		f := newFakeBackend()
		seedBooking(f, "12", "3", status, "2024-03-10", "2024-03-12")
		e, _ := newTestEngine(f)

		_, err := e.Edit(context.Background(), alice, "12", EditInput{PickupLocation: "Pasay"})
		if !errors.Is(err, ErrTerminalState) || kindOf(t, err) != apperr.KindConflict {
			t.Fatalf("%s: expected terminal conflict, got %v", status, err)
		}
		if f.updated != nil {
			t.Fatalf("%s: update sent", status)
		}
	}
}

func TestPlanCarChange(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	f.occupied["5"] = []autoconnect.OccupiedRange{{StartDate: mustDate("2024-02-25"), EndDate: mustDate("2024-03-02")}}
	e, _ := newTestEngine(f)

	iv, err := e.PlanCarChange(context.Background(), alice, "12", "5")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if iv.Start.Format(time.DateOnly) != "2024-03-03" || iv.End.Format(time.DateOnly) != "2024-03-05" {
		t.Fatalf("unexpected plan %s..%s", iv.Start, iv.End)
	}

	iv, err = e.PlanCarChange(context.Background(), alice, "12", "3")
	if err != nil || iv.Start.Format(time.DateOnly) != "2024-03-10" {
		t.Fatalf("same car should keep dates, got %v %v", iv, err)
	}
}

func TestCancel_EmptyReasonSkipsBackend(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	_, err := e.Cancel(context.Background(), alice, "12", "   ")
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("backend called: %v", f.calls)
	}
}

func TestCancel_PendingAndConfirmed(t *testing.T) {
	for _, status := range []string{"Pending", "Confirmed"} {
		f := newFakeBackend()
		seedBooking(f, "12", "3", status, "2024-03-10", "2024-03-12")
		e, ev := newTestEngine(f)

		b, err := e.Cancel(context.Background(), alice, "12", "  change of plans ")
		if err != nil {
			t.Fatalf("%s: cancel: %v", status, err)
		}
		if b.Status != StatusCancelled || b.Editable {
			t.Fatalf("%s: unexpected booking %+v", status, b)
		}
		want := autoconnect.CancelBookingRequest{CancelReason: "change of plans", UserID: "7", ClientEmail: "alice@example.ph"}
		if *f.cancelled != want {
			t.Fatalf("%s: body %+v", status, f.cancelled)
		}
		if len(ev.events) != 1 || ev.events[0].EventType != EventBookingCancelled {
			t.Fatalf("%s: events %+v", status, ev.events)
		}
	}
}

func TestCancel_TerminalIsConflict(t *testing.T) {
	for _, status := range []string{"Finished", "Cancelled"} {
		f := newFakeBackend()
		seedBooking(f, "12", "3", status, "2024-03-10", "2024-03-12")
		e, _ := newTestEngine(f)

		_, err := e.Cancel(context.Background(), alice, "12", "reason")
		if !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: expected ErrTerminalState, got %v", status, err)
		}
		if f.cancelled != nil {
			t.Fatalf("%s: cancel sent", status)
		}
	}
}

func TestGet_OtherUsersBookingIsHidden(t *testing.T) {
	f := newFakeBackend()
	b := seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	b.UserID = "99"
	e, _ := newTestEngine(f)

	if _, err := e.Get(context.Background(), alice, "12"); kindOf(t, err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoad_BookingWithoutOwnerIsHidden(t *testing.T) {
	f := newFakeBackend()
	b := seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	b.UserID = ""
	e, ev := newTestEngine(f)
	bob := Actor{UserID: "99", Email: "bob@example.ph"}

	if _, err := e.Get(context.Background(), bob, "12"); kindOf(t, err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := e.Cancel(context.Background(), bob, "12", "reason"); kindOf(t, err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.cancelled != nil || len(ev.events) != 0 {
		t.Fatalf("cancel reached the backend: %v", f.calls)
	}
}

func TestConfirmPrice(t *testing.T) {
	f := newFakeBackend()
	b := seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	if _, err := e.ConfirmPrice(context.Background(), alice, "12"); kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected unquoted booking to be rejected, got %v", err)
	}

	b.Price = decimal.NewNullDecimal(decimal.RequireFromString("4500.00"))
	got, err := e.ConfirmPrice(context.Background(), alice, "12")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !got.PriceAccepted {
		t.Fatalf("expected accepted")
	}
	want := autoconnect.ConfirmPriceRequest{UserID: "7", ClientEmail: "alice@example.ph", BookingID: "12"}
	if *f.confirmed != want {
		t.Fatalf("body: %+v", f.confirmed)
	}

	// Already accepted: nothing is sent.
	b.PriceAccepted = true
	f.confirmed = nil
	if _, err := e.ConfirmPrice(context.Background(), alice, "12"); err != nil || f.confirmed != nil {
		t.Fatalf("expected no-op, got %v %+v", err, f.confirmed)
	}
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestSubmitPayment_RejectsNonJPEGBeforeNetwork(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Confirmed", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	_, err := e.SubmitPayment(context.Background(), alice, "12", Receipt{ContentType: "image/png", Data: png})
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	// Declared JPEG but not actually one.
	_, err = e.SubmitPayment(context.Background(), alice, "12", Receipt{ContentType: "image/jpeg", Data: png})
	if kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("backend called: %v", f.calls)
	}
}

func TestSubmitPayment_UploadsOnceOnly(t *testing.T) {
	f := newFakeBackend()
	b := seedBooking(f, "12", "3", "Confirmed", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	data := jpegBytes(t, 40, 30)
	got, err := e.SubmitPayment(context.Background(), alice, "12", Receipt{Filename: "gcash.jpg", ContentType: "image/jpeg", Data: data})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !got.HasReceipt || f.uploaded == nil || !bytes.Equal(f.uploaded.Data, data) || f.uploaded.ClientEmail != "alice@example.ph" {
		t.Fatalf("unexpected upload: %+v", f.uploaded)
	}

	b.Receipt = json.RawMessage(`"uploads/receipts/12.jpg"`)
	_, err = e.SubmitPayment(context.Background(), alice, "12", Receipt{ContentType: "image/jpeg", Data: data})
	if !errors.Is(err, ErrReceiptExists) {
		t.Fatalf("expected ErrReceiptExists, got %v", err)
	}
}

func TestPrepareReceipt_DownscalesLargeImages(t *testing.T) {
	data := jpegBytes(t, MaxReceiptSide+400, 100)
	out, err := PrepareReceipt(Receipt{ContentType: "image/jpeg", Data: data})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != MaxReceiptSide {
		t.Fatalf("expected width %d, got %d", MaxReceiptSide, cfg.Width)
	}
}

func TestSubmitFeedback_OnlyFinishedOnce(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Confirmed", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	in := FeedbackInput{Rating: 5, Description: "Clean car"}
	if err := e.SubmitFeedback(context.Background(), alice, "12", in); kindOf(t, err) != apperr.KindConflict {
		t.Fatalf("expected conflict before finish, got %v", err)
	}

	f.bookings["12"].Status = "Finished"
	if err := e.SubmitFeedback(context.Background(), alice, "12", FeedbackInput{Rating: 6, Description: "x"}); kindOf(t, err) != apperr.KindValidation {
		t.Fatalf("expected rating validation, got %v", err)
	}
	if err := e.SubmitFeedback(context.Background(), alice, "12", in); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if f.rated.CarID != "3" || f.rated.Rating != 5 {
		t.Fatalf("body: %+v", f.rated)
	}

	f.feedback["12"] = true
	if err := e.SubmitFeedback(context.Background(), alice, "12", in); !errors.Is(err, ErrFeedbackExists) {
		t.Fatalf("expected ErrFeedbackExists, got %v", err)
	}
}

func TestEvents_ListsRecordedHistory(t *testing.T) {
	f := newFakeBackend()
	seedBooking(f, "12", "3", "Pending", "2024-03-10", "2024-03-12")
	e, _ := newTestEngine(f)

	if _, err := e.Cancel(context.Background(), alice, "12", "sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	items, err := e.Events(context.Background(), alice, "12")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(items) != 1 || items[0].Actor != "user:7" {
		t.Fatalf("unexpected events: %+v", items)
	}
}

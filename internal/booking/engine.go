package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autoconnect/internal/apperr"
	"autoconnect/internal/availability"
	"autoconnect/internal/validation"
	"autoconnect/pkg/autoconnect"
)

var (
	ErrTerminalState  = errors.New("booking is finished or cancelled")
	ErrReceiptExists  = errors.New("receipt already uploaded")
	ErrFeedbackExists = errors.New("feedback already submitted")
)

// Backend is the slice of the AutoConnect API the engine drives.
type Backend interface {
	OccupiedDates(ctx context.Context, carID autoconnect.ID) ([]autoconnect.OccupiedRange, error)
	CreateBooking(ctx context.Context, req autoconnect.CreateBookingRequest) (*autoconnect.Booking, error)
	UpdateBooking(ctx context.Context, id autoconnect.ID, req autoconnect.UpdateBookingRequest) (*autoconnect.Booking, error)
	CancelBooking(ctx context.Context, id autoconnect.ID, req autoconnect.CancelBookingRequest) error
	ConfirmPrice(ctx context.Context, id autoconnect.ID, req autoconnect.ConfirmPriceRequest) error
	UploadReceipt(ctx context.Context, id autoconnect.ID, up autoconnect.ReceiptUpload) error
	GetBooking(ctx context.Context, id autoconnect.ID) (*autoconnect.Booking, error)
	ListUserBookings(ctx context.Context, userID autoconnect.ID) ([]autoconnect.Booking, error)
	HasFeedback(ctx context.Context, bookingID autoconnect.ID) (bool, error)
	SubmitFeedback(ctx context.Context, req autoconnect.FeedbackRequest) error
}

type Engine struct {
	backend  Backend
	events   EventLog
	log      *slog.Logger
	validate *validation.Validator

	// Now is the clock used for "today"; tests pin it.
	Now func() time.Time
}

// NewEngine wires an engine. events may be nil, in which case nothing is
// recorded.
func NewEngine(backend Backend, events EventLog, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		backend:  backend,
		events:   events,
		log:      log,
		validate: validation.New(),
		Now:      time.Now,
	}
}

func (e *Engine) today() time.Time {
	return availability.Day(e.Now().In(autoconnect.DayZone))
}

type QuoteInput struct {
	CarID             string `json:"carId" validate:"required"`
	PickupLocation    string `json:"pickupLocation" validate:"required,max=255"`
	ReturnLocation    string `json:"returnLocation" validate:"required,max=255"`
	PickupDate        string `json:"pickupDate" validate:"required,datetime=2006-01-02"`
	ReturnDate        string `json:"returnDate" validate:"omitempty,datetime=2006-01-02"`
	PickupTime        string `json:"pickupTime" validate:"required,datetime=15:04"`
	ReturnTime        string `json:"returnTime" validate:"required,datetime=15:04"`
	Name              string `json:"name" validate:"required,max=120"`
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone" validate:"required,max=32"`
	RentalType        string `json:"rentalType" validate:"required,oneof=personal company"`
	AdditionalRequest string `json:"additionalRequest" validate:"max=1000"`
}

// EditInput carries the fields to change. Empty strings keep the current
// value, except that a car change with no dates picks a fresh period. A
// single date is paired with the other end of the current period.
type EditInput struct {
	CarID             string `json:"carId"`
	PickupLocation    string `json:"pickupLocation" validate:"max=255"`
	ReturnLocation    string `json:"returnLocation" validate:"max=255"`
	PickupDate        string `json:"pickupDate" validate:"omitempty,datetime=2006-01-02"`
	ReturnDate        string `json:"returnDate" validate:"omitempty,datetime=2006-01-02"`
	PickupTime        string `json:"pickupTime" validate:"omitempty,datetime=15:04"`
	ReturnTime        string `json:"returnTime" validate:"omitempty,datetime=15:04"`
	Name              string `json:"name" validate:"max=120"`
	Email             string `json:"email" validate:"omitempty,email"`
	Phone             string `json:"phone" validate:"max=32"`
	RentalType        string `json:"rentalType" validate:"omitempty,oneof=personal company"`
	AdditionalRequest string `json:"additionalRequest" validate:"max=1000"`
}

type FeedbackInput struct {
	Rating      int    `json:"rating" validate:"required,min=1,max=5"`
	Description string `json:"description" validate:"required,max=2000"`
}

// List returns the actor's bookings, newest data as the backend orders it.
func (e *Engine) List(ctx context.Context, actor Actor) ([]Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	rows, err := e.backend.ListUserBookings(ctx, autoconnect.ID(actor.UserID))
	if err != nil {
		return nil, apperr.FromBackend(err, "load bookings")
	}
	out := make([]Booking, 0, len(rows))
	for i := range rows {
		b, err := FromWire(&rows[i])
		if err != nil {
			e.log.Warn("skipping unreadable booking", "booking_id", rows[i].BookingID.String(), "err", err)
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	return e.load(ctx, actor, id)
}

// load fetches a booking and hides other users' bookings as not found.
func (e *Engine) load(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("VALIDATION_FAILED", "missing booking id")
	}
	w, err := e.backend.GetBooking(ctx, autoconnect.ID(id))
	if err != nil {
		return nil, apperr.FromBackend(err, "load booking")
	}
	b, err := FromWire(w)
	if err != nil {
		return nil, apperr.Internal("booking data is unreadable", err)
	}
	if b.Requester.UserID == "" || b.Requester.UserID != actor.UserID {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (e *Engine) occupied(ctx context.Context, carID string) (availability.OccupiedSet, error) {
	ranges, err := e.backend.OccupiedDates(ctx, autoconnect.ID(carID))
	if err != nil {
		return nil, apperr.FromBackend(err, "load occupied dates")
	}
	return OccupiedFromWire(ranges), nil
}

// period parses a requested range. A pickup before today is rejected unless
// it equals keep, the start of the period being edited.
func (e *Engine) period(pickup, ret string, keep time.Time) (availability.Interval, error) {
	start, err := parseDay("pickupDate", pickup)
	if err != nil {
		return availability.Interval{}, apperr.ValidationFields("invalid dates", map[string]string{"pickupDate": "must be a date like 2024-03-10"})
	}
	end := start
	if strings.TrimSpace(ret) != "" {
		if end, err = parseDay("returnDate", ret); err != nil {
			return availability.Interval{}, apperr.ValidationFields("invalid dates", map[string]string{"returnDate": "must be a date like 2024-03-10"})
		}
	}
	iv, err := availability.NewInterval(start, end)
	if err != nil {
		return availability.Interval{}, apperr.ValidationFields("return date is before pickup date", map[string]string{"returnDate": "must not be before the pickup date"})
	}
	if iv.Start.Before(e.today()) && !iv.Start.Equal(keep) {
		return availability.Interval{}, apperr.ValidationFields("pickup date is in the past", map[string]string{"pickupDate": "must be today or later"})
	}
	return iv, nil
}

func conflictError(hit availability.Interval) error {
	return apperr.Conflict("DATES_UNAVAILABLE",
		fmt.Sprintf("the car is already booked from %s to %s", hit.Start.Format(time.DateOnly), hit.End.Format(time.DateOnly)), nil)
}

func terminalError(b *Booking) error {
	return apperr.Conflict("BOOKING_LOCKED", fmt.Sprintf("booking is %s and can no longer be changed", strings.ToLower(string(b.Status))), ErrTerminalState)
}

// Create requests a quote. The booking starts Pending with no price.
func (e *Engine) Create(ctx context.Context, actor Actor, in QuoteInput) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	if err := e.validate.Struct(in); err != nil {
		return nil, err
	}
	iv, err := e.period(in.PickupDate, in.ReturnDate, time.Time{})
	if err != nil {
		return nil, err
	}

	occ, err := e.occupied(ctx, in.CarID)
	if err != nil {
		return nil, err
	}
	if hit, found := availability.Conflict(occ, iv, nil); found {
		return nil, conflictError(hit)
	}

	req := autoconnect.CreateBookingRequest{
		PickupLocation:    strings.TrimSpace(in.PickupLocation),
		ReturnLocation:    strings.TrimSpace(in.ReturnLocation),
		PickupDate:        iv.Start.Format(time.DateOnly),
		ReturnDate:        iv.End.Format(time.DateOnly),
		PickupTime:        in.PickupTime,
		ReturnTime:        in.ReturnTime,
		Name:              strings.TrimSpace(in.Name),
		Email:             strings.TrimSpace(in.Email),
		Phone:             strings.TrimSpace(in.Phone),
		RentalType:        rentalType(in.RentalType),
		CarID:             autoconnect.ID(in.CarID),
		UserID:            autoconnect.ID(actor.UserID),
		AdditionalRequest: orDefault(in.AdditionalRequest, "None"),
	}
	w, err := e.backend.CreateBooking(ctx, req)
	if err != nil {
		return nil, apperr.FromBackend(err, "create booking")
	}

	var b *Booking
	if w != nil {
		if b, err = FromWire(w); err != nil {
			e.log.Warn("create booking: unreadable echo", "err", err)
			b = nil
		}
	}
	if b == nil {
		b = &Booking{
			CarID:             in.CarID,
			Requester:         Requester{UserID: actor.UserID, Name: req.Name, Email: req.Email, Phone: req.Phone},
			Period:            iv,
			PickupTime:        req.PickupTime,
			ReturnTime:        req.ReturnTime,
			PickupLocation:    req.PickupLocation,
			ReturnLocation:    req.ReturnLocation,
			RentalType:        req.RentalType,
			Status:            StatusPending,
			AdditionalRequest: req.AdditionalRequest,
			Editable:          true,
		}
	}

	e.record(ctx, b.ID, actor, EventQuoteRequested, map[string]any{
		"carId": in.CarID, "pickupDate": req.PickupDate, "returnDate": req.ReturnDate,
	})
	return b, nil
}

// PlanCarChange returns the period to preselect when the renter picks
// carID for an existing booking. Keeping the car keeps the booked dates.
func (e *Engine) PlanCarChange(ctx context.Context, actor Actor, id, carID string) (availability.Interval, error) {
	if actor.IsZero() {
		return availability.Interval{}, apperr.AuthRequired()
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return availability.Interval{}, err
	}
	if !cur.Status.IsEditable() {
		return availability.Interval{}, terminalError(cur)
	}
	if carID == "" || carID == cur.CarID {
		return cur.Period, nil
	}
	occ, err := e.occupied(ctx, carID)
	if err != nil {
		return availability.Interval{}, err
	}
	iv, ok := availability.SuggestPeriod(occ, e.today())
	if !ok {
		return availability.Interval{}, apperr.Conflict("NO_AVAILABILITY", "the selected car has no free dates in the next year", nil)
	}
	return iv, nil
}

// Edit changes an editable booking. The booking's own dates never block it
// while the car stays the same.
func (e *Engine) Edit(ctx context.Context, actor Actor, id string, in EditInput) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	if err := e.validate.Struct(in); err != nil {
		return nil, err
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsEditable() {
		return nil, terminalError(cur)
	}

	carID := cur.CarID
	carChanged := in.CarID != "" && in.CarID != cur.CarID
	if carChanged {
		carID = in.CarID
	}
	pickup, ret := strings.TrimSpace(in.PickupDate), strings.TrimSpace(in.ReturnDate)
	datesGiven := pickup != "" || ret != ""

	next := *cur
	next.CarID = carID
	if carChanged {
		next.CarName = ""
	}

	switch {
	case datesGiven:
		pickup = orDefault(pickup, cur.Period.Start.Format(time.DateOnly))
		ret = orDefault(ret, cur.Period.End.Format(time.DateOnly))
		iv, err := e.period(pickup, ret, cur.Period.Start)
		if err != nil {
			return nil, err
		}
		occ, err := e.occupied(ctx, carID)
		if err != nil {
			return nil, err
		}
		var exempt *availability.Interval
		if !carChanged {
			own := cur.Period
			exempt = &own
		}
		if hit, found := availability.Conflict(occ, iv, exempt); found {
			return nil, conflictError(hit)
		}
		next.Period = iv
	case carChanged:
		occ, err := e.occupied(ctx, carID)
		if err != nil {
			return nil, err
		}
		iv, ok := availability.SuggestPeriod(occ, e.today())
		if !ok {
			return nil, apperr.Conflict("NO_AVAILABILITY", "the selected car has no free dates in the next year", nil)
		}
		next.Period = iv
	}

	next.PickupLocation = orDefault(strings.TrimSpace(in.PickupLocation), cur.PickupLocation)
	next.ReturnLocation = orDefault(strings.TrimSpace(in.ReturnLocation), cur.ReturnLocation)
	next.PickupTime = orDefault(in.PickupTime, cur.PickupTime)
	next.ReturnTime = orDefault(in.ReturnTime, cur.ReturnTime)
	next.Requester.Name = orDefault(strings.TrimSpace(in.Name), cur.Requester.Name)
	next.Requester.Email = orDefault(strings.TrimSpace(in.Email), cur.Requester.Email)
	next.Requester.Phone = orDefault(strings.TrimSpace(in.Phone), cur.Requester.Phone)
	if in.RentalType != "" {
		next.RentalType = rentalType(in.RentalType)
	}
	next.AdditionalRequest = orDefault(strings.TrimSpace(in.AdditionalRequest), cur.AdditionalRequest)

	req := autoconnect.UpdateBookingRequest{
		PickupLocation:    next.PickupLocation,
		ReturnLocation:    next.ReturnLocation,
		PickupDate:        next.Period.Start.Format(time.DateOnly),
		PickupTime:        next.PickupTime,
		ReturnDate:        next.Period.End.Format(time.DateOnly),
		ReturnTime:        next.ReturnTime,
		Name:              next.Requester.Name,
		Email:             next.Requester.Email,
		Phone:             next.Requester.Phone,
		CarID:             autoconnect.ID(carID),
		RentalType:        next.RentalType,
		AdditionalRequest: next.AdditionalRequest,
		UserID:            autoconnect.ID(actor.UserID),
	}
	w, err := e.backend.UpdateBooking(ctx, autoconnect.ID(cur.ID), req)
	if err != nil {
		return nil, apperr.FromBackend(err, "update booking")
	}
	if w != nil {
		if echoed, err := FromWire(w); err == nil {
			next = *echoed
		}
	}

	e.record(ctx, cur.ID, actor, EventBookingChanged, map[string]any{
		"fromCarId": cur.CarID, "toCarId": carID,
		"pickupDate": req.PickupDate, "returnDate": req.ReturnDate,
	})
	return &next, nil
}

// Cancel moves a Pending or Confirmed booking to Cancelled. The reason is
// required and is checked before anything is sent.
func (e *Engine) Cancel(ctx context.Context, actor Actor, id, reason string) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.ValidationFields("a cancellation reason is required", map[string]string{"reason": "is required"})
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, StatusCancelled) {
		return nil, terminalError(cur)
	}

	err = e.backend.CancelBooking(ctx, autoconnect.ID(cur.ID), autoconnect.CancelBookingRequest{
		CancelReason: reason,
		UserID:       autoconnect.ID(actor.UserID),
		ClientEmail:  clientEmail(actor, cur),
	})
	if err != nil {
		return nil, apperr.FromBackend(err, "cancel booking")
	}

	from := cur.Status
	cur.Status = StatusCancelled
	cur.CancelReason = reason
	cur.Editable = false
	e.record(ctx, cur.ID, actor, EventBookingCancelled, map[string]any{"from": from, "reason": reason})
	return cur, nil
}

// ConfirmPrice accepts the quoted price. Accepting twice is a no-op.
func (e *Engine) ConfirmPrice(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if cur.PriceAccepted {
		return cur, nil
	}
	if !cur.Status.IsEditable() {
		return nil, terminalError(cur)
	}
	if !cur.Price.Valid {
		return nil, apperr.Validation("PRICE_NOT_QUOTED", "this booking has not been quoted yet")
	}

	err = e.backend.ConfirmPrice(ctx, autoconnect.ID(cur.ID), autoconnect.ConfirmPriceRequest{
		UserID:      autoconnect.ID(actor.UserID),
		ClientEmail: clientEmail(actor, cur),
		BookingID:   autoconnect.ID(cur.ID),
	})
	if err != nil {
		return nil, apperr.FromBackend(err, "confirm price")
	}

	cur.PriceAccepted = true
	e.record(ctx, cur.ID, actor, EventPriceConfirmed, map[string]any{"price": cur.Price.Decimal.String()})
	return cur, nil
}

// SubmitPayment uploads the payment proof. The image is validated before
// the booking is even loaded.
func (e *Engine) SubmitPayment(ctx context.Context, actor Actor, id string, r Receipt) (*Booking, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	data, err := PrepareReceipt(r)
	if err != nil {
		return nil, err
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsEditable() {
		return nil, terminalError(cur)
	}
	if cur.HasReceipt {
		return nil, apperr.Conflict("RECEIPT_EXISTS", "a receipt was already uploaded for this booking", ErrReceiptExists)
	}

	err = e.backend.UploadReceipt(ctx, autoconnect.ID(cur.ID), autoconnect.ReceiptUpload{
		BookingID:   autoconnect.ID(cur.ID),
		UserID:      autoconnect.ID(actor.UserID),
		ClientEmail: clientEmail(actor, cur),
		Filename:    r.Filename,
		Data:        data,
	})
	if err != nil {
		return nil, apperr.FromBackend(err, "upload receipt")
	}

	cur.HasReceipt = true
	e.record(ctx, cur.ID, actor, EventReceiptUploaded, map[string]any{"bytes": len(data)})
	return cur, nil
}

// FeedbackAllowed reports whether the actor can still rate this booking.
func (e *Engine) FeedbackAllowed(ctx context.Context, actor Actor, id string) (bool, error) {
	if actor.IsZero() {
		return false, apperr.AuthRequired()
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return false, err
	}
	if cur.Status != StatusFinished {
		return false, nil
	}
	has, err := e.backend.HasFeedback(ctx, autoconnect.ID(cur.ID))
	if err != nil {
		return false, apperr.FromBackend(err, "check feedback")
	}
	return !has, nil
}

// SubmitFeedback rates a finished rental once.
func (e *Engine) SubmitFeedback(ctx context.Context, actor Actor, id string, in FeedbackInput) error {
	if actor.IsZero() {
		return apperr.AuthRequired()
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := e.validate.Struct(in); err != nil {
		return err
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if cur.Status != StatusFinished {
		return apperr.Conflict("FEEDBACK_NOT_ALLOWED", "feedback opens once the rental is finished", nil)
	}
	has, err := e.backend.HasFeedback(ctx, autoconnect.ID(cur.ID))
	if err != nil {
		return apperr.FromBackend(err, "check feedback")
	}
	if has {
		return apperr.Conflict("FEEDBACK_EXISTS", "feedback was already submitted for this booking", ErrFeedbackExists)
	}

	err = e.backend.SubmitFeedback(ctx, autoconnect.FeedbackRequest{
		UserID:      autoconnect.ID(actor.UserID),
		CarID:       autoconnect.ID(cur.CarID),
		BookingID:   autoconnect.ID(cur.ID),
		Rating:      in.Rating,
		Description: in.Description,
	})
	if err != nil {
		return apperr.FromBackend(err, "submit feedback")
	}
	e.record(ctx, cur.ID, actor, EventFeedbackSubmitted, map[string]any{"rating": in.Rating})
	return nil
}

// Events lists the recorded lifecycle events of one of the actor's bookings.
func (e *Engine) Events(ctx context.Context, actor Actor, id string) ([]Event, error) {
	if actor.IsZero() {
		return nil, apperr.AuthRequired()
	}
	cur, err := e.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if e.events == nil {
		return []Event{}, nil
	}
	items, err := e.events.ListByBooking(ctx, cur.ID)
	if err != nil {
		return nil, apperr.Internal("failed to load booking history", err)
	}
	if items == nil {
		items = []Event{}
	}
	return items, nil
}

func (e *Engine) record(ctx context.Context, bookingID string, actor Actor, eventType string, data map[string]any) {
	if e.events == nil || bookingID == "" {
		return
	}
	ev := Event{
		BookingID:  bookingID,
		EventType:  eventType,
		Actor:      "user:" + actor.UserID,
		OccurredAt: e.Now().UTC(),
		Data:       data,
	}
	// Best effort: the backend has already applied the change.
	if err := e.events.Record(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Error("record booking event", "booking_id", bookingID, "event", eventType, "err", err)
	}
}

func clientEmail(actor Actor, b *Booking) string {
	if actor.Email != "" {
		return actor.Email
	}
	return b.Requester.Email
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// Package booking owns the rental booking lifecycle: quoting, changing,
// cancelling, accepting the quoted price, uploading payment proof and leaving
// feedback once a rental is finished. The AutoConnect backend stores the
// bookings; this package decides which of those requests are allowed.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autoconnect/internal/availability"
	"autoconnect/pkg/autoconnect"
)

const (
	DefaultPickupTime = "09:00"
	DefaultReturnTime = "17:00"

	RentalPersonal = "personal"
	RentalCompany  = "company"
)

type Requester struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type Booking struct {
	ID                string                `json:"id"`
	CarID             string                `json:"carId"`
	CarName           string                `json:"carName,omitempty"`
	Requester         Requester             `json:"requester"`
	Period            availability.Interval `json:"period"`
	PickupTime        string                `json:"pickupTime"`
	ReturnTime        string                `json:"returnTime"`
	PickupLocation    string                `json:"pickupLocation"`
	ReturnLocation    string                `json:"returnLocation"`
	RentalType        string                `json:"rentalType"`
	Status            Status                `json:"status"`
	Price             decimal.NullDecimal   `json:"price"`
	PriceAccepted     bool                  `json:"priceAccepted"`
	HasReceipt        bool                  `json:"hasReceipt"`
	AdditionalRequest string                `json:"additionalRequest,omitempty"`
	CancelReason      string                `json:"cancelReason,omitempty"`
	Editable          bool                  `json:"editable"`
}

// Actor is the signed-in user an operation runs for.
type Actor struct {
	UserID string
	Email  string
}

func (a Actor) IsZero() bool { return a.UserID == "" }

// FromWire converts a backend booking into the domain shape.
func FromWire(w *autoconnect.Booking) (*Booking, error) {
	status, err := ParseStatus(w.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", w.BookingID, err)
	}

	ret := w.ReturnDate.Time
	if ret.IsZero() {
		ret = w.PickupDate.Time
	}
	period, err := availability.NewInterval(w.PickupDate.Time, ret)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", w.BookingID, err)
	}

	b := &Booking{
		ID:    w.BookingID.String(),
		CarID: w.CarID.String(),
		Requester: Requester{
			UserID: w.UserID.String(),
			Name:   w.Name,
			Email:  w.Email,
			Phone:  w.Phone,
		},
		Period:            period,
		PickupTime:        clockTime(w.PickupTime, DefaultPickupTime),
		ReturnTime:        clockTime(w.ReturnTime, DefaultReturnTime),
		PickupLocation:    w.PickupLocation,
		ReturnLocation:    w.ReturnLocation,
		RentalType:        rentalType(w.RentalType),
		Status:            status,
		Price:             w.Price,
		PriceAccepted:     w.PriceAccepted,
		HasReceipt:        w.HasReceipt(),
		AdditionalRequest: w.AdditionalRequest,
		CancelReason:      w.CancelReason,
		Editable:          status.IsEditable(),
	}
	if name := strings.TrimSpace(w.Brand + " " + w.Model); name != "" {
		b.CarName = name
	}
	return b, nil
}

// clockTime trims "09:00:00" style values to HH:MM.
func clockTime(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if len(v) > 5 {
		v = v[:5]
	}
	return v
}

func rentalType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case RentalCompany:
		return RentalCompany
	default:
		return RentalPersonal
	}
}

// OccupiedFromWire converts the backend's occupied ranges for one car.
func OccupiedFromWire(ranges []autoconnect.OccupiedRange) availability.OccupiedSet {
	out := make(availability.OccupiedSet, 0, len(ranges))
	for _, r := range ranges {
		end := r.EndDate.Time
		if end.IsZero() {
			end = r.StartDate.Time
		}
		iv, err := availability.NewInterval(r.StartDate.Time, end)
		if err != nil {
			// Keep inverted rows rather than silently freeing those days.
			iv = availability.Interval{Start: availability.Day(end), End: availability.Day(r.StartDate.Time)}
		}
		out = append(out, iv)
	}
	return out
}

func parseDay(field, v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

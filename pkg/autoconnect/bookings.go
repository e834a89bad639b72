package autoconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

type Booking struct {
	BookingID         ID                  `json:"booking_id"`
	CarID             ID                  `json:"car_id"`
	UserID            ID                  `json:"user_id"`
	PickupLocation    string              `json:"pickup_location"`
	ReturnLocation    string              `json:"return_location"`
	PickupDate        Date                `json:"pickup_date"`
	ReturnDate        Date                `json:"return_date"`
	PickupTime        string              `json:"pickup_time"`
	ReturnTime        string              `json:"return_time"`
	Name              string              `json:"name"`
	Email             string              `json:"email"`
	Phone             string              `json:"phone"`
	RentalType        string              `json:"rental_type"`
	AdditionalRequest string              `json:"additionalrequest"`
	Status            string              `json:"status"`
	PriceAccepted     bool                `json:"priceaccepted"`
	Price             decimal.NullDecimal `json:"price"`
	CancelReason      string              `json:"cancel_reason,omitempty"`

	// Receipt is whatever the backend stores for the payment proof (a path,
	// base64 text or a serialised buffer). Only its presence matters here.
	Receipt json.RawMessage `json:"receipt,omitempty"`

	// Joined car details, present on some read endpoints.
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
}

// HasReceipt reports whether a payment proof is on file.
func (b Booking) HasReceipt() bool {
	r := bytes.TrimSpace(b.Receipt)
	return len(r) > 0 && !bytes.Equal(r, []byte("null")) && !bytes.Equal(r, []byte(`""`))
}

// CreateBookingRequest is the quote payload. Field names follow the
// backend's create endpoint, which differs from its update endpoint.
type CreateBookingRequest struct {
	PickupLocation    string `json:"pickupLocation"`
	ReturnLocation    string `json:"returnLocation"`
	PickupDate        string `json:"pickupDate"`
	ReturnDate        string `json:"returnDate"`
	PickupTime        string `json:"pickupTime"`
	ReturnTime        string `json:"returnTime"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	RentalType        string `json:"rentalType"`
	CarID             ID     `json:"carId"`
	UserID            ID     `json:"user_id"`
	AdditionalRequest string `json:"additionalrequest"`
}

type UpdateBookingRequest struct {
	PickupLocation    string `json:"pickup_location"`
	ReturnLocation    string `json:"return_location"`
	PickupDate        string `json:"pickup_date"`
	PickupTime        string `json:"pickup_time"`
	ReturnDate        string `json:"return_date"`
	ReturnTime        string `json:"return_time"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	CarID             ID     `json:"car_id"`
	RentalType        string `json:"rental_type"`
	AdditionalRequest string `json:"additionalrequest"`
	UserID            ID     `json:"user_id"`
}

type CancelBookingRequest struct {
	CancelReason string `json:"cancel_reason"`
	UserID       ID     `json:"user_id"`
	ClientEmail  string `json:"clientEmail"`
}

type ConfirmPriceRequest struct {
	UserID      ID     `json:"user_id"`
	ClientEmail string `json:"clientEmail"`
	BookingID   ID     `json:"booking_id"`
}

type ReceiptUpload struct {
	BookingID   ID
	UserID      ID
	ClientEmail string
	Filename    string
	Data        []byte
}

// decodeBooking accepts a bare booking object or one wrapped as
// {"booking": {...}}. An empty or message-only body yields nil.
func decodeBooking(raw json.RawMessage) (*Booking, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var wrapped struct {
		Booking *Booking `json:"booking"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Booking != nil {
		return wrapped.Booking, nil
	}
	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.BookingID == "" {
		return nil, nil
	}
	return &b, nil
}

func bookingPath(prefix string, id ID, suffix string) string {
	return prefix + url.PathEscape(id.String()) + suffix
}

// CreateBooking posts a quote request. The returned booking may be nil
// when the backend only acknowledges with a message.
func (c Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodPost, "api/bookings", req, &raw); err != nil {
		return nil, err
	}
	return decodeBooking(raw)
}

func (c Client) UpdateBooking(ctx context.Context, id ID, req UpdateBookingRequest) (*Booking, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodPut, bookingPath("api/booking/update/", id, ""), req, &raw); err != nil {
		return nil, err
	}
	return decodeBooking(raw)
}

func (c Client) CancelBooking(ctx context.Context, id ID, req CancelBookingRequest) error {
	_, err := c.doJSON(ctx, http.MethodPut, bookingPath("api/bookings/cancel/", id, ""), req, nil)
	return err
}

func (c Client) ConfirmPrice(ctx context.Context, id ID, req ConfirmPriceRequest) error {
	_, err := c.doJSON(ctx, http.MethodPut, bookingPath("api/bookings/", id, "/confirm-price"), req, nil)
	return err
}

// UploadReceipt sends the payment proof as multipart/form-data with the
// image under the "receipt" field.
func (c Client) UploadReceipt(ctx context.Context, id ID, up ReceiptUpload) error {
	fields := map[string]string{
		"booking_id":  up.BookingID.String(),
		"user_id":     up.UserID.String(),
		"clientEmail": up.ClientEmail,
	}
	filename := up.Filename
	if filename == "" {
		filename = "receipt.jpg"
	}
	file := &FilePart{Field: "receipt", Filename: filename, ContentType: "image/jpeg", Data: up.Data}
	_, err := c.doMultipart(ctx, http.MethodPut, bookingPath("api/upload-receipt/", id, ""), fields, file, nil)
	return err
}

func (c Client) GetBooking(ctx context.Context, id ID) (*Booking, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodGet, bookingPath("api/bookings/", id, ""), nil, &raw); err != nil {
		return nil, err
	}
	return requireBooking(raw, id)
}

// BookingDetails reads the notification detail view of a booking, which
// joins car information.
func (c Client) BookingDetails(ctx context.Context, id ID) (*Booking, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodGet, bookingPath("api/booking/data-retrieve/", id, ""), nil, &raw); err != nil {
		return nil, err
	}
	return requireBooking(raw, id)
}

func (c Client) ListUserBookings(ctx context.Context, userID ID) ([]Booking, error) {
	var out []Booking
	if _, err := c.doJSON(ctx, http.MethodGet, bookingPath("api/bookings/user/", userID, ""), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func requireBooking(raw json.RawMessage, id ID) (*Booking, error) {
	raw = bytes.TrimSpace(raw)
	// Some read endpoints answer with a one-element array.
	if len(raw) > 0 && raw[0] == '[' {
		var list []Booking
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, &APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "booking " + id.String(), Message: "booking not found"}
		}
		return fillID(&list[0], id), nil
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, &APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "booking " + id.String(), Message: "booking not found"}
	}
	var wrapped struct {
		Booking *Booking `json:"booking"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Booking != nil {
		return fillID(wrapped.Booking, id), nil
	}
	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.BookingID == "" && b.Status == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "booking " + id.String(), Message: "booking not found"}
	}
	return fillID(&b, id), nil
}

func fillID(b *Booking, id ID) *Booking {
	if b.BookingID == "" {
		b.BookingID = id
	}
	return b
}

// Package notification lists a user's backend messages and decides which
// booking action each one leads to.
package notification

import (
	"strings"
	"time"

	"autoconnect/pkg/autoconnect"
)

type Category string

const (
	CategoryPrice    Category = "Price Notification"
	CategoryPayment  Category = "Payment Method"
	CategoryCreated  Category = "Booking Created"
	CategoryFinished Category = "Booking Finished"
	CategoryOther    Category = ""
)

var knownCategories = []Category{CategoryPrice, CategoryPayment, CategoryCreated, CategoryFinished}

// ParseCategory matches a message title ignoring case, surrounding space and
// the trailing dot the backend appends ("Price Notification.").
func ParseCategory(title string) Category {
	t := strings.TrimSpace(title)
	t = strings.TrimSpace(strings.TrimRight(t, "."))
	for _, c := range knownCategories {
		if strings.EqualFold(t, string(c)) {
			return c
		}
	}
	return CategoryOther
}

type Action string

const (
	ActionConfirmPrice  Action = "confirm_price"
	ActionSubmitPayment Action = "submit_payment"
	ActionViewBooking   Action = "view_booking"
	ActionOpenFeedback  Action = "open_feedback"
	ActionNone          Action = "none"
)

// BookingFacts are the booking fields the router looks at. Loaded is false
// when the booking could not be read.
type BookingFacts struct {
	Loaded        bool
	PriceAccepted bool
	HasReceipt    bool
	HasFeedback   bool
}

// Offer is the action a notification leads to. Available is false when the
// action applies but has already been taken, e.g. the price is accepted.
type Offer struct {
	Action    Action `json:"action"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Route maps a category and the booking's current facts to an Offer.
func Route(c Category, f BookingFacts) Offer {
	switch c {
	case CategoryPrice:
		if !f.Loaded {
			return Offer{Action: ActionNone}
		}
		if f.PriceAccepted {
			return Offer{Action: ActionConfirmPrice, Reason: "price already confirmed"}
		}
		return Offer{Action: ActionConfirmPrice, Available: true}
	case CategoryPayment:
		if !f.Loaded {
			return Offer{Action: ActionNone}
		}
		if f.HasReceipt {
			return Offer{Action: ActionSubmitPayment, Reason: "payment already submitted"}
		}
		return Offer{Action: ActionSubmitPayment, Available: true}
	case CategoryCreated:
		return Offer{Action: ActionViewBooking, Available: true}
	case CategoryFinished:
		if !f.Loaded {
			return Offer{Action: ActionNone}
		}
		if f.HasFeedback {
			return Offer{Action: ActionOpenFeedback, Reason: "feedback already submitted"}
		}
		return Offer{Action: ActionOpenFeedback, Available: true}
	default:
		return Offer{Action: ActionNone}
	}
}

type Notification struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
	BookingID string    `json:"bookingId,omitempty"`
}

func FromWire(m autoconnect.Message) Notification {
	return Notification{
		ID:        m.ID.String(),
		Category:  ParseCategory(m.Title),
		Title:     m.Title,
		Message:   m.Message,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
		UserID:    m.UserID.String(),
		BookingID: m.BookingID.String(),
	}
}

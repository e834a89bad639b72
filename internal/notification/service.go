package notification

import (
	"context"
	"log/slog"

	"autoconnect/internal/apperr"
	"autoconnect/internal/booking"
	"autoconnect/pkg/autoconnect"
)

type Backend interface {
	ListUserMessages(ctx context.Context, userID autoconnect.ID) ([]autoconnect.Message, error)
	MarkMessageRead(ctx context.Context, id autoconnect.ID) error
	BookingDetails(ctx context.Context, id autoconnect.ID) (*autoconnect.Booking, error)
	HasFeedback(ctx context.Context, bookingID autoconnect.ID) (bool, error)
}

type Service struct {
	backend Backend
	cache   *Cache
	log     *slog.Logger
}

func NewService(backend Backend, cache *Cache, log *slog.Logger) *Service {
	if cache == nil {
		cache = NewCache()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{backend: backend, cache: cache, log: log}
}

type Inbox struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// List fetches the user's messages and merges them into the cache.
func (s *Service) List(ctx context.Context, userID string) (Inbox, error) {
	if userID == "" {
		return Inbox{}, apperr.AuthRequired()
	}
	msgs, err := s.backend.ListUserMessages(ctx, autoconnect.ID(userID))
	if err != nil {
		return Inbox{}, apperr.FromBackend(err, "load notifications")
	}
	items := make([]Notification, 0, len(msgs))
	for _, m := range msgs {
		n := FromWire(m)
		if n.UserID != "" && n.UserID != userID {
			continue
		}
		items = append(items, n)
	}
	merged := s.cache.Merge(userID, items)
	return Inbox{Items: merged, Unread: Unread(merged)}, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperr.AuthRequired()
	}
	if _, err := s.lookup(ctx, userID, id); err != nil {
		return err
	}
	err := s.cache.MarkRead(ctx, userID, id, func(ctx context.Context) error {
		return s.backend.MarkMessageRead(ctx, autoconnect.ID(id))
	})
	if err != nil {
		return apperr.FromBackend(err, "mark notification read")
	}
	return nil
}

// Opened is a notification together with what the user can do about it.
type Opened struct {
	Notification Notification     `json:"notification"`
	Offer        Offer            `json:"offer"`
	Booking      *booking.Booking `json:"booking,omitempty"`
}

// Open marks the notification read and routes it. A failed read mark is
// logged; the notification still opens.
func (s *Service) Open(ctx context.Context, userID, id string) (*Opened, error) {
	if userID == "" {
		return nil, apperr.AuthRequired()
	}
	n, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !n.Read {
		err := s.cache.MarkRead(ctx, userID, id, func(ctx context.Context) error {
			return s.backend.MarkMessageRead(ctx, autoconnect.ID(id))
		})
		if err != nil {
			s.log.Warn("mark notification read", "notification_id", id, "err", err)
		} else {
			n.Read = true
		}
	}

	out := &Opened{Notification: n}
	facts := BookingFacts{}
	if n.BookingID != "" && n.Category != CategoryOther {
		b, err := s.backend.BookingDetails(ctx, autoconnect.ID(n.BookingID))
		switch {
		case err != nil:
			if err := apperr.FromBackend(err, "load booking"); apperr.Is(err, apperr.KindNetwork) {
				return nil, err
			}
			s.log.Warn("notification booking unavailable", "booking_id", n.BookingID, "err", err)
		case b.UserID == "" || b.UserID.String() != userID:
			s.log.Warn("notification booking not owned by user", "booking_id", n.BookingID)
		default:
			facts.Loaded = true
			facts.PriceAccepted = b.PriceAccepted
			facts.HasReceipt = b.HasReceipt()
			if out.Booking, err = booking.FromWire(b); err != nil {
				s.log.Warn("notification booking unreadable", "booking_id", n.BookingID, "err", err)
			}
		}
	}
	if n.Category == CategoryFinished && facts.Loaded {
		has, err := s.backend.HasFeedback(ctx, autoconnect.ID(n.BookingID))
		if err != nil {
			return nil, apperr.FromBackend(err, "check feedback")
		}
		facts.HasFeedback = has
	}

	out.Offer = Route(n.Category, facts)
	return out, nil
}

// lookup finds id in the cache, refreshing once from the backend on a miss.
func (s *Service) lookup(ctx context.Context, userID, id string) (Notification, error) {
	if n, ok := s.cache.Get(userID, id); ok {
		return n, nil
	}
	if _, err := s.List(ctx, userID); err != nil {
		return Notification{}, err
	}
	if n, ok := s.cache.Get(userID, id); ok {
		return n, nil
	}
	return Notification{}, apperr.NotFound("notification not found")
}

// Package session keeps the signed-in user and the search handoff on the
// server. Clients hold only a signed token that names a session row.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Search is what the landing page hands over to the booking form.
type Search struct {
	Location  string `json:"location"`
	VehicleID string `json:"vehicleId,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	Search    *Search   `json:"search,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	SaveSearch(ctx context.Context, id string, search *Search) error
	Delete(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type ctxKey string

const ctxKeySession ctxKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// FromContext returns the request's session, or nil for anonymous requests.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKeySession).(*Session)
	return s
}

// UserFromContext returns the signed-in user. ok is false when anonymous.
func UserFromContext(ctx context.Context) (User, bool) {
	s := FromContext(ctx)
	if s == nil || s.User.ID == "" {
		return User{}, false
	}
	return s.User, true
}

package autoconnect

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Message is a user notification as stored by the backend.
type Message struct {
	ID        ID        `json:"m_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UserID    ID        `json:"user_id"`
	BookingID ID        `json:"booking_id"`
}

func (c Client) ListUserMessages(ctx context.Context, userID ID) ([]Message, error) {
	var out []Message
	if _, err := c.doJSON(ctx, http.MethodGet, "api/messages/user/"+url.PathEscape(userID.String()), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c Client) MarkMessageRead(ctx context.Context, id ID) error {
	_, err := c.doJSON(ctx, http.MethodPatch, "api/messages/"+url.PathEscape(id.String())+"/read", nil, nil)
	return err
}

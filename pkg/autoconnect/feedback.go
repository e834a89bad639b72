package autoconnect

import (
	"context"
	"net/http"
	"net/url"
)

type FeedbackRequest struct {
	UserID      ID     `json:"user_id"`
	CarID       ID     `json:"car_id"`
	BookingID   ID     `json:"booking_id"`
	Rating      int    `json:"rating"`
	Description string `json:"description"`
}

func (c Client) HasFeedback(ctx context.Context, bookingID ID) (bool, error) {
	var out struct {
		HasFeedback bool `json:"hasFeedback"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, "api/feedback/check/"+url.PathEscape(bookingID.String()), nil, &out); err != nil {
		return false, err
	}
	return out.HasFeedback, nil
}

func (c Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) error {
	_, err := c.doJSON(ctx, http.MethodPost, "api/feedback/submit", req, nil)
	return err
}

package autoconnect

import (
	"context"
	"net/http"
)

type ContactMessage struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Inquiry         string `json:"inquiry"`
	CaptchaSolution string `json:"captchaSolution"`
}

func (c Client) SendContactEmail(ctx context.Context, msg ContactMessage) error {
	_, err := c.doJSON(ctx, http.MethodPost, "api/send-email", msg, nil)
	return err
}

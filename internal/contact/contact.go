// Package contact handles the public inquiry form.
package contact

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/internal/validation"
	"autoconnect/pkg/autoconnect"
	"autoconnect/pkg/captcha"
)

type Verifier interface {
	Verify(ctx context.Context, solution string) error
}

type Sender interface {
	SendContactEmail(ctx context.Context, msg autoconnect.ContactMessage) error
}

type Inquiry struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,max=32"`
	Inquiry         string `json:"inquiry" validate:"required,max=4000"`
	CaptchaSolution string `json:"captchaSolution" validate:"required"`
}

type Service struct {
	captcha  Verifier
	sender   Sender
	validate *validation.Validator
	log      *slog.Logger
}

func NewService(v Verifier, s Sender, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{captcha: v, sender: s, validate: validation.New(), log: log}
}

// Send checks the captcha and only then forwards the inquiry.
func (s *Service) Send(ctx context.Context, in Inquiry) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Inquiry = strings.TrimSpace(in.Inquiry)
	if err := s.validate.Struct(in); err != nil {
		return err
	}

	if err := s.captcha.Verify(ctx, in.CaptchaSolution); err != nil {
		var rejected *captcha.RejectedError
		if errors.As(err, &rejected) {
			return &apperr.Error{
				Kind:    apperr.KindValidation,
				Code:    "CAPTCHA_REJECTED",
				Message: "the captcha could not be verified, try again",
				Fields:  map[string]string{"captchaSolution": "was not accepted"},
				Err:     err,
			}
		}
		s.log.Error("captcha verify failed", "err", err)
		return &apperr.Error{Kind: apperr.KindNetwork, Code: "CAPTCHA_UNAVAILABLE", Message: "could not verify the captcha", Err: err}
	}

	err := s.sender.SendContactEmail(ctx, autoconnect.ContactMessage{
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Inquiry:         in.Inquiry,
		CaptchaSolution: in.CaptchaSolution,
	})
	if err != nil {
		return apperr.FromBackend(err, "send message")
	}
	return nil
}

type Handlers struct {
	Service *Service
}

func (h Handlers) Send(w http.ResponseWriter, r *http.Request) {
	var in Inquiry
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.Send(r.Context(), in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/internal/validation"
	"autoconnect/pkg/autoconnect"
)

// Authenticator checks credentials against the backend.
type Authenticator interface {
	Login(ctx context.Context, req autoconnect.LoginRequest) (*autoconnect.User, error)
}

type Handlers struct {
	Provider *Provider
	Auth     Authenticator
	Validate *validation.Validator
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	ExpiresAt string `json:"expiresAt"`
}

func (h Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.Validate.Struct(req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}

	u, err := h.Auth.Login(r.Context(), autoconnect.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		err = apperr.FromBackend(err, "sign in")
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindValidation, apperr.KindAuthRequired:
			err = &apperr.Error{Kind: apperr.KindAuthRequired, Code: "INVALID_CREDENTIALS", Message: "email or password is incorrect", Err: err}
		}
		api.WriteAppError(w, r, err)
		return
	}

	user := User{ID: u.ID.String(), Name: u.Name, Email: u.Email, Phone: u.PhoneNumber}
	if user.Email == "" {
		user.Email = req.Email
	}
	s, tok, err := h.Provider.Begin(r.Context(), w, user)
	if err != nil {
		api.WriteAppError(w, r, apperr.Internal("failed to start session", err))
		return
	}

	api.LoggerFromContext(r.Context()).Info("signed in", "user_id", user.ID, "session_id", s.ID)
	api.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     tok,
		User:      user,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	})
}

func (h Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Provider.End(r.Context(), w, FromContext(r.Context())); err != nil {
		api.WriteAppError(w, r, apperr.Internal("failed to end session", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me reports the auth state. Anonymous callers get {"signedIn": false}.
func (h Handlers) Me(w http.ResponseWriter, r *http.Request) {
	s := FromContext(r.Context())
	if s == nil {
		api.WriteJSON(w, http.StatusOK, map[string]any{"signedIn": false})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"signedIn":  true,
		"user":      s.User,
		"expiresAt": s.ExpiresAt,
	})
}

func (h Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	s := FromContext(r.Context())
	if s == nil {
		api.WriteAppError(w, r, apperr.AuthRequired())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"search": s.Search})
}

type searchRequest struct {
	Location  string `json:"location" validate:"max=255"`
	VehicleID string `json:"vehicleId"`
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// PutSearch replaces the search handoff. An empty body clears it.
func (h Handlers) PutSearch(w http.ResponseWriter, r *http.Request) {
	s := FromContext(r.Context())
	if s == nil {
		api.WriteAppError(w, r, apperr.AuthRequired())
		return
	}
	var req searchRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}

	var search *Search
	if req != (searchRequest{}) {
		search = &Search{
			Location:  strings.TrimSpace(req.Location),
			VehicleID: req.VehicleID,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		}
	}
	if err := h.Provider.Store.SaveSearch(r.Context(), s.ID, search); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.WriteAppError(w, r, apperr.AuthRequired())
			return
		}
		api.WriteAppError(w, r, apperr.Internal("failed to save search", err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"search": search})
}

package notification

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"autoconnect/internal/api"
	"autoconnect/internal/session"
)

type Handlers struct {
	Service *Service
}

func userID(r *http.Request) string {
	u, _ := session.UserFromContext(r.Context())
	return u.ID
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	inbox, err := h.Service.List(r.Context(), userID(r))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, inbox)
}

func (h Handlers) Open(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.Open(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, out)
}

func (h Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.MarkRead(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

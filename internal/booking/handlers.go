package booking

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/internal/session"
)

type Handlers struct {
	Engine *Engine
}

func actor(r *http.Request) Actor {
	u, ok := session.UserFromContext(r.Context())
	if !ok {
		return Actor{}
	}
	return Actor{UserID: u.ID, Email: u.Email}
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.List(r.Context(), actor(r))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var in QuoteInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	b, err := h.Engine.Create(r.Context(), actor(r), in)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"booking": b})
}

func (h Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	var in EditInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	b, err := h.Engine.Edit(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Plan(w http.ResponseWriter, r *http.Request) {
	iv, err := h.Engine.PlanCarChange(r.Context(), actor(r), chi.URLParam(r, "id"), r.URL.Query().Get("car_id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"period": iv})
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	b, err := h.Engine.Cancel(r.Context(), actor(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) ConfirmPrice(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.ConfirmPrice(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

// UploadReceipt accepts multipart/form-data with the image under "receipt".
func (h Handlers) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxReceiptBytes+(1<<20))
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			api.WriteAppError(w, r, apperr.Validation("RECEIPT_TOO_LARGE", "receipt must be 10 MB or smaller"))
			return
		}
		api.WriteAppError(w, r, apperr.Validation("VALIDATION_FAILED", "expected multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, fh, err := r.FormFile("receipt")
	if err != nil {
		api.WriteAppError(w, r, apperr.Validation("RECEIPT_REQUIRED", "select a receipt image to upload"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		api.WriteAppError(w, r, apperr.Validation("RECEIPT_UNREADABLE", "the receipt could not be read"))
		return
	}

	b, err := h.Engine.SubmitPayment(r.Context(), actor(r), chi.URLParam(r, "id"), Receipt{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Events(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.Events(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) FeedbackStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Engine.FeedbackAllowed(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"allowed": ok})
}

func (h Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var in FeedbackInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Engine.SubmitFeedback(r.Context(), actor(r), chi.URLParam(r, "id"), in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package fleet

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/internal/availability"
)

type Handlers struct {
	Service *Service
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	cars, err := h.Service.Cars(r.Context())
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": cars})
}

func (h Handlers) Catalog(w http.ResponseWriter, r *http.Request) {
	cars, err := h.Service.Catalog(r.Context())
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": cars})
}

func (h Handlers) Featured(w http.ResponseWriter, r *http.Request) {
	cars, err := h.Service.Featured(r.Context())
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": cars})
}

func (h Handlers) Occupied(w http.ResponseWriter, r *http.Request) {
	occ, err := h.Service.Occupied(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": occ})
}

// Calendar serves ?month=YYYY-MM (default: this month), optionally with
// ?exempt_start=&exempt_end= for the booking being edited.
func (h Handlers) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := h.Service.today()
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := time.Parse("2006-01", v)
		if err != nil {
			api.WriteAppError(w, r, apperr.ValidationFields("invalid month", map[string]string{"month": "must look like 2024-03"}))
			return
		}
		month = m
	}
	exempt, err := exemptFromQuery(r)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}

	days, err := h.Service.Calendar(r.Context(), chi.URLParam(r, "id"), month, exempt)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"month": month.Format("2006-01"), "days": days})
}

func (h Handlers) Nearest(w http.ResponseWriter, r *http.Request) {
	var from time.Time
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			api.WriteAppError(w, r, apperr.ValidationFields("invalid date", map[string]string{"from": "must be a date like 2024-03-10"}))
			return
		}
		from = t
	}
	exempt, err := exemptFromQuery(r)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}

	d, err := h.Service.Nearest(r.Context(), chi.URLParam(r, "id"), from, exempt)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"date": d.Format(time.DateOnly)})
}

func exemptFromQuery(r *http.Request) (*availability.Interval, error) {
	q := r.URL.Query()
	start, end := strings.TrimSpace(q.Get("exempt_start")), strings.TrimSpace(q.Get("exempt_end"))
	if start == "" && end == "" {
		return nil, nil
	}
	if end == "" {
		end = start
	}
	s, err1 := time.Parse(time.DateOnly, start)
	e, err2 := time.Parse(time.DateOnly, end)
	if err1 != nil || err2 != nil {
		return nil, apperr.ValidationFields("invalid exempt period", map[string]string{"exempt_start": "must be a date like 2024-03-10"})
	}
	iv, err := availability.NewInterval(s, e)
	if err != nil {
		return nil, apperr.ValidationFields("invalid exempt period", map[string]string{"exempt_end": "must not be before exempt_start"})
	}
	return &iv, nil
}

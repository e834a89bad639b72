// Package location serves pickup and return address suggestions.
package location

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/pkg/mapbox"
)

// MinQueryLen matches the autocomplete input, which waits for three characters.
const MinQueryLen = 3

type Geocoder interface {
	Suggest(ctx context.Context, query string) ([]mapbox.Suggestion, error)
}

type Handlers struct {
	Geocoder Geocoder
}

func (h Handlers) Suggest(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(q) < MinQueryLen {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": []mapbox.Suggestion{}})
		return
	}
	if utf8.RuneCountInString(q) > 200 {
		api.WriteAppError(w, r, apperr.ValidationFields("query too long", map[string]string{"q": "must be at most 200 characters"}))
		return
	}

	items, err := h.Geocoder.Suggest(r.Context(), q)
	if err != nil {
		api.LoggerFromContext(r.Context()).Warn("address suggest failed", "err", err)
		api.WriteAppError(w, r, &apperr.Error{Kind: apperr.KindNetwork, Code: "GEOCODER_UNAVAILABLE", Message: "address suggestions are unavailable", Err: err})
		return
	}
	if items == nil {
		items = []mapbox.Suggestion{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

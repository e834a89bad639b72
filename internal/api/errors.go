package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"autoconnect/internal/apperr"
)

// SignInPath is where clients send users whose session is missing or expired.
const SignInPath = "/signin"

const maxJSONBody = 1 << 20

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Kind     apperr.Kind       `json:"kind,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, APIError{Code: code, Message: message})
}

func writeEnvelope(w http.ResponseWriter, status int, e APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: e})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNetwork:
		return http.StatusBadGateway
	case apperr.KindAuthRequired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err using its kind. Internal and network causes are
// logged but never echoed to the client.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("internal error", err)
	}

	status := StatusFor(ae.Kind)
	if status >= http.StatusInternalServerError {
		LoggerFromContext(r.Context()).Error("request failed",
			"code", ae.Code, "kind", ae.Kind, "err", err)
	}

	e := APIError{Code: ae.Code, Message: ae.Message, Kind: ae.Kind, Fields: ae.Fields}
	if ae.Kind == apperr.KindAuthRequired {
		e.Redirect = SignInPath
	}
	writeEnvelope(w, status, e)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a single JSON object from the request body. An empty body
// leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("VALIDATION_FAILED", "invalid json")
	}
	return nil
}

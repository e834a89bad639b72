package profile

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/internal/session"
)

type Handlers struct {
	Service *Service
}

func userID(r *http.Request) string {
	u, _ := session.UserFromContext(r.Context())
	return u.ID
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), userID(r))
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"profile": p})
}

// Update takes JSON, or multipart/form-data when a new picture is attached
// under "picture".
func (h Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	var pic *Picture

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		var err error
		in, pic, err = readMultipart(w, r)
		if err != nil {
			api.WriteAppError(w, r, err)
			return
		}
	} else if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}

	p, err := h.Service.Update(r.Context(), userID(r), in, pic)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"profile": p})
}

func readMultipart(w http.ResponseWriter, r *http.Request) (UpdateInput, *Picture, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPictureBytes+(1<<20))
	if err := r.ParseMultipartForm(2 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return UpdateInput{}, nil, apperr.Validation("PICTURE_TOO_LARGE", "picture must be 5 MB or smaller")
		}
		return UpdateInput{}, nil, apperr.Validation("VALIDATION_FAILED", "expected multipart form data")
	}
	defer r.MultipartForm.RemoveAll()

	in := UpdateInput{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		PhoneNumber: r.FormValue("phoneNumber"),
		Gender:      r.FormValue("gender"),
	}
	f, fh, err := r.FormFile("picture")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, apperr.Validation("PICTURE_UNREADABLE", "the picture could not be read")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return in, nil, apperr.Validation("PICTURE_UNREADABLE", "the picture could not be read")
	}
	return in, &Picture{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

// UploadPicture takes multipart/form-data with the image under "picture".
func (h Handlers) UploadPicture(w http.ResponseWriter, r *http.Request) {
	_, pic, err := readMultipart(w, r)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if pic == nil {
		api.WriteAppError(w, r, apperr.Validation("PICTURE_REQUIRED", "select a picture to upload"))
		return
	}
	p, err := h.Service.UploadPicture(r.Context(), userID(r), *pic)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"profile": p})
}

func (h Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in PasswordInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.ChangePassword(r.Context(), userID(r), in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.SendOTP(r.Context(), req.Email); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h Handlers) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.CheckOTP(r.Context(), req.Email, req.OTP); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in SignupInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	p, err := h.Service.Signup(r.Context(), in)
	if err != nil {
		api.WriteAppError(w, r, err)
		return
	}
	api.LoggerFromContext(r.Context()).Info("signed up", "user_id", p.ID)
	api.WriteJSON(w, http.StatusCreated, map[string]any{"profile": p})
}

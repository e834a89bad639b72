package autoconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

type User struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber"`
	Gender      string `json:"gender"`
}

type ProfileUpdate struct {
	Name        string
	Email       string
	PhoneNumber string
	Gender      string

	// Picture is an optional JPEG sent under the "userspfp" field.
	Picture *FilePart
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type SignupRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobileNumber"`
	Password     string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userPath(prefix string, id ID) string {
	return prefix + url.PathEscape(id.String())
}

func (c Client) GetUser(ctx context.Context, id ID) (*User, error) {
	var u User
	if _, err := c.doJSON(ctx, http.MethodGet, userPath("api/user/", id), nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = id
	}
	return &u, nil
}

// ProfilePicture returns the picture reference the backend stores for the
// user (usually a URL or base64 data). Empty means none.
func (c Client) ProfilePicture(ctx context.Context, id ID) (string, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodGet, userPath("api/profilepicture/", id), nil, &raw); err != nil {
		return "", err
	}
	var obj struct {
		ProfilePicture string `json:"profilePicture"`
		URL            string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.ProfilePicture != "" {
			return obj.ProfilePicture, nil
		}
		return obj.URL, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return "", nil
}

func (c Client) UpdateProfile(ctx context.Context, id ID, up ProfileUpdate) error {
	fields := map[string]string{
		"id":          id.String(),
		"name":        up.Name,
		"email":       up.Email,
		"phonenumber": up.PhoneNumber,
		"gender":      up.Gender,
	}
	var file *FilePart
	if up.Picture != nil {
		p := *up.Picture
		p.Field = "userspfp"
		file = &p
	}
	_, err := c.doMultipart(ctx, http.MethodPut, userPath("api/profile/update/", id), fields, file, nil)
	return err
}

func (c Client) UploadProfilePicture(ctx context.Context, id ID, pic FilePart) error {
	pic.Field = "userspfp"
	_, err := c.doMultipart(ctx, http.MethodPost, userPath("api/profile/upload-picture/", id), nil, &pic, nil)
	return err
}

func (c Client) ChangePassword(ctx context.Context, id ID, req ChangePasswordRequest) error {
	_, err := c.doJSON(ctx, http.MethodPut, userPath("api/profile/change-password/", id), req, nil)
	return err
}

func (c Client) SendOTP(ctx context.Context, email string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "api/send-otp", map[string]string{"email": email}, nil)
	return err
}

func (c Client) ValidateOTP(ctx context.Context, email, otp string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "api/validate-otp", map[string]string{"email": email, "otp": otp}, nil)
	return err
}

func (c Client) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodPost, "api/signup", req, &raw); err != nil {
		return nil, err
	}
	return decodeUser(raw), nil
}

// Login exchanges credentials for the user record.
func (c Client) Login(ctx context.Context, req LoginRequest) (*User, error) {
	var raw json.RawMessage
	if _, err := c.doJSON(ctx, http.MethodPost, "api/login", req, &raw); err != nil {
		return nil, err
	}
	u := decodeUser(raw)
	if u == nil {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Method: http.MethodPost, Path: "api/login", Message: "login response carried no user"}
	}
	return u, nil
}

// decodeUser accepts {"user": {...}} or a bare user object.
func decodeUser(raw json.RawMessage) *User {
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil && wrapped.User.ID != "" {
		return wrapped.User
	}
	var u User
	if err := json.Unmarshal(raw, &u); err == nil && u.ID != "" {
		return &u
	}
	return nil
}

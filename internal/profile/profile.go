// Package profile covers the account pages: viewing and editing the
// profile, changing the password and signing up with an emailed OTP.
package profile

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"autoconnect/internal/apperr"
	"autoconnect/internal/validation"
	"autoconnect/pkg/autoconnect"
)

const (
	MaxPictureBytes = 5 << 20
	MaxPictureSide  = 512

	GenderNotSet = "Not Set"
)

type Backend interface {
	GetUser(ctx context.Context, id autoconnect.ID) (*autoconnect.User, error)
	ProfilePicture(ctx context.Context, id autoconnect.ID) (string, error)
	UpdateProfile(ctx context.Context, id autoconnect.ID, up autoconnect.ProfileUpdate) error
	UploadProfilePicture(ctx context.Context, id autoconnect.ID, pic autoconnect.FilePart) error
	ChangePassword(ctx context.Context, id autoconnect.ID, req autoconnect.ChangePasswordRequest) error
	SendOTP(ctx context.Context, email string) error
	ValidateOTP(ctx context.Context, email, otp string) error
	Signup(ctx context.Context, req autoconnect.SignupRequest) (*autoconnect.User, error)
}

type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Gender      string `json:"gender"`
	Picture     string `json:"picture,omitempty"`
}

type UpdateInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=32"`
	Gender      string `json:"gender" validate:"max=32"`
}

type Picture struct {
	Filename    string
	ContentType string
	Data        []byte
}

type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type SignupInput struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobileNumber" validate:"required,max=32"`
	Password     string `json:"password" validate:"required,password"`
	OTP          string `json:"otp" validate:"required,numeric,min=4,max=8"`
	AgreeToTerms bool   `json:"agreeToTerms" validate:"required"`
}

type Service struct {
	backend  Backend
	validate *validation.Validator
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend, validate: validation.New()}
}

func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apperr.AuthRequired()
	}
	u, err := s.backend.GetUser(ctx, autoconnect.ID(userID))
	if err != nil {
		return nil, apperr.FromBackend(err, "load profile")
	}
	p := &Profile{
		ID:          u.ID.String(),
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Gender:      u.Gender,
	}
	if strings.TrimSpace(p.Gender) == "" {
		p.Gender = GenderNotSet
	}
	// The picture is optional; a failure here leaves the profile without one.
	if pic, err := s.backend.ProfilePicture(ctx, autoconnect.ID(userID)); err == nil {
		p.Picture = pic
	}
	return p, nil
}

// Update saves the profile fields and, when pic is set, a new picture.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput, pic *Picture) (*Profile, error) {
	if userID == "" {
		return nil, apperr.AuthRequired()
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.Gender == GenderNotSet {
		in.Gender = ""
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	up := autoconnect.ProfileUpdate{
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Gender:      in.Gender,
	}
	if pic != nil {
		data, err := PreparePicture(*pic)
		if err != nil {
			return nil, err
		}
		up.Picture = &autoconnect.FilePart{Filename: pictureName(pic.Filename), ContentType: "image/jpeg", Data: data}
	}
	if err := s.backend.UpdateProfile(ctx, autoconnect.ID(userID), up); err != nil {
		return nil, apperr.FromBackend(err, "update profile")
	}
	return s.Get(ctx, userID)
}

// UploadPicture replaces only the picture, as done right after a file is picked.
func (s *Service) UploadPicture(ctx context.Context, userID string, pic Picture) (*Profile, error) {
	if userID == "" {
		return nil, apperr.AuthRequired()
	}
	data, err := PreparePicture(pic)
	if err != nil {
		return nil, err
	}
	part := autoconnect.FilePart{Filename: pictureName(pic.Filename), ContentType: "image/jpeg", Data: data}
	if err := s.backend.UploadProfilePicture(ctx, autoconnect.ID(userID), part); err != nil {
		return nil, apperr.FromBackend(err, "upload picture")
	}
	return s.Get(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID string, in PasswordInput) error {
	if userID == "" {
		return apperr.AuthRequired()
	}
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if in.CurrentPassword == in.NewPassword {
		return apperr.ValidationFields("the new password must differ from the current one", map[string]string{"newPassword": "must differ from the current password"})
	}
	err := s.backend.ChangePassword(ctx, autoconnect.ID(userID), autoconnect.ChangePasswordRequest{
		CurrentPassword: in.CurrentPassword,
		NewPassword:     in.NewPassword,
	})
	if err != nil {
		return apperr.FromBackend(err, "change password")
	}
	return nil
}

func (s *Service) SendOTP(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Struct(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return err
	}
	if err := s.backend.SendOTP(ctx, email); err != nil {
		return apperr.FromBackend(err, "send OTP")
	}
	return nil
}

// CheckOTP lets the form confirm a code before the rest is filled in.
func (s *Service) CheckOTP(ctx context.Context, email, otp string) error {
	in := struct {
		Email string `json:"email" validate:"required,email"`
		OTP   string `json:"otp" validate:"required,numeric,min=4,max=8"`
	}{strings.TrimSpace(email), strings.TrimSpace(otp)}
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	return s.validateOTP(ctx, in.Email, in.OTP)
}

func (s *Service) validateOTP(ctx context.Context, email, otp string) error {
	if err := s.backend.ValidateOTP(ctx, email, otp); err != nil {
		err = apperr.FromBackend(err, "validate OTP")
		if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindNotFound) {
			return apperr.ValidationFields("the code is invalid or has expired", map[string]string{"otp": "is invalid or expired"})
		}
		return err
	}
	return nil
}

// Signup validates the OTP and only then creates the account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	if err := s.validateOTP(ctx, in.Email, in.OTP); err != nil {
		return nil, err
	}

	u, err := s.backend.Signup(ctx, autoconnect.SignupRequest{
		Name:         in.Name,
		Email:        in.Email,
		MobileNumber: in.MobileNumber,
		Password:     in.Password,
	})
	if err != nil {
		return nil, apperr.FromBackend(err, "sign up")
	}
	p := &Profile{Name: in.Name, Email: in.Email, PhoneNumber: in.MobileNumber, Gender: GenderNotSet}
	if u != nil {
		p.ID = u.ID.String()
	}
	return p, nil
}

// PreparePicture accepts a JPEG and returns it scaled to MaxPictureSide.
func PreparePicture(p Picture) ([]byte, error) {
	if len(p.Data) == 0 {
		return nil, apperr.Validation("PICTURE_REQUIRED", "select a picture to upload")
	}
	if len(p.Data) > MaxPictureBytes {
		return nil, apperr.Validation("PICTURE_TOO_LARGE", "picture must be 5 MB or smaller")
	}
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(p.ContentType, ";", 2)[0]))
	if declared != "image/jpeg" || http.DetectContentType(p.Data) != "image/jpeg" {
		return nil, apperr.Validation("PICTURE_NOT_JPEG", "only JPEG pictures are accepted")
	}
	img, err := imaging.Decode(bytes.NewReader(p.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "PICTURE_UNREADABLE", Message: "the picture could not be read", Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= MaxPictureSide && b.Dy() <= MaxPictureSide {
		return p.Data, nil
	}
	thumb := imaging.Fill(img, MaxPictureSide, MaxPictureSide, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, apperr.Internal("failed to encode picture", err)
	}
	return buf.Bytes(), nil
}

func pictureName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "profile.jpg"
	}
	return name
}

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"autoconnect/internal/api"
	"autoconnect/internal/booking"
	"autoconnect/internal/contact"
	"autoconnect/internal/fleet"
	"autoconnect/internal/location"
	"autoconnect/internal/notification"
	"autoconnect/internal/profile"
	"autoconnect/internal/session"
	"autoconnect/internal/validation"
	"autoconnect/pkg/autoconnect"
	"autoconnect/pkg/config"
)

type Dependencies struct {
	Cfg config.Config
	Log *slog.Logger

	Backend  autoconnect.Client
	Sessions session.Store
	Events   booking.EventLog
	Captcha  contact.Verifier
	Geocoder location.Geocoder

	// Limiter is shared with the housekeeping job, which prunes idle clients.
	Limiter *api.RateLimiter
}

// NewLimiter returns the gateway's default limits: a generous per-IP bucket
// plus tight ones on the credential and email endpoints.
func NewLimiter() *api.RateLimiter {
	return api.NewRateLimiter(100*time.Millisecond, 40).
		Limit("/auth/login", 12*time.Second, 5).
		Limit("/auth/signup", 30*time.Second, 3).
		Limit("/auth/otp", 30*time.Second, 3).
		Limit("/auth/otp/validate", 6*time.Second, 5).
		Limit("/contact", time.Minute, 3)
}

func NewRouter(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewLimiter()
	}

	provider := &session.Provider{
		Store:        deps.Sessions,
		Tokens:       session.Tokens{Secret: []byte(deps.Cfg.Session.Secret)},
		TTL:          deps.Cfg.Session.TTL,
		CookieName:   deps.Cfg.Session.CookieName,
		SecureCookie: deps.Cfg.AppEnv != "dev",
	}
	sessionHandlers := session.Handlers{Provider: provider, Auth: deps.Backend, Validate: validation.New()}

	engine := booking.NewEngine(deps.Backend, deps.Events, log)
	bookingHandlers := booking.Handlers{Engine: engine}
	fleetHandlers := fleet.Handlers{Service: fleet.NewService(deps.Backend)}
	notificationHandlers := notification.Handlers{Service: notification.NewService(deps.Backend, notification.NewCache(), log)}
	profileHandlers := profile.Handlers{Service: profile.NewService(deps.Backend)}
	contactHandlers := contact.Handlers{Service: contact.NewService(deps.Captcha, deps.Backend, log)}
	locationHandlers := location.Handlers{Geocoder: deps.Geocoder}

	r := chi.NewRouter()
	r.Use(api.AccessLog(log))
	r.Use(api.Recover)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// v1
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.CORSMiddleware(api.CORSOptions{
			AllowedOrigins:   deps.Cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", api.RequestIDHeader},
			AllowCredentials: true,
			MaxAgeSeconds:    600,
		}))
		r.Use(limiter.Middleware)
		r.Use(provider.Middleware)

		// Public
		r.Post("/auth/login", sessionHandlers.Login)
		r.Post("/auth/logout", sessionHandlers.Logout)
		r.Post("/auth/otp", profileHandlers.SendOTP)
		r.Post("/auth/otp/validate", profileHandlers.ValidateOTP)
		r.Post("/auth/signup", profileHandlers.Signup)
		r.Get("/session", sessionHandlers.Me)

		r.Get("/cars", fleetHandlers.List)
		r.Get("/cars/catalog", fleetHandlers.Catalog)
		r.Get("/cars/featured", fleetHandlers.Featured)
		r.Get("/cars/{id}/occupied", fleetHandlers.Occupied)
		r.Get("/cars/{id}/calendar", fleetHandlers.Calendar)
		r.Get("/cars/{id}/nearest", fleetHandlers.Nearest)

		r.Get("/locations/suggest", locationHandlers.Suggest)
		r.Post("/contact", contactHandlers.Send)

		// Signed in
		r.Group(func(r chi.Router) {
			r.Use(session.RequireUser)

			r.Get("/session/search", sessionHandlers.GetSearch)
			r.Put("/session/search", sessionHandlers.PutSearch)

			r.Get("/bookings", bookingHandlers.List)
			r.Post("/bookings", bookingHandlers.Create)
			r.Get("/bookings/{id}", bookingHandlers.Get)
			r.Put("/bookings/{id}", bookingHandlers.Edit)
			r.Get("/bookings/{id}/plan", bookingHandlers.Plan)
			r.Post("/bookings/{id}/cancel", bookingHandlers.Cancel)
			r.Post("/bookings/{id}/confirm-price", bookingHandlers.ConfirmPrice)
			r.Put("/bookings/{id}/receipt", bookingHandlers.UploadReceipt)
			r.Get("/bookings/{id}/events", bookingHandlers.Events)
			r.Get("/bookings/{id}/feedback", bookingHandlers.FeedbackStatus)
			r.Post("/bookings/{id}/feedback", bookingHandlers.SubmitFeedback)

			r.Get("/notifications", notificationHandlers.List)
			r.Post("/notifications/{id}/open", notificationHandlers.Open)
			r.Post("/notifications/{id}/read", notificationHandlers.MarkRead)

			r.Get("/profile", profileHandlers.Get)
			r.Put("/profile", profileHandlers.Update)
			r.Put("/profile/picture", profileHandlers.UploadPicture)
			r.Put("/profile/password", profileHandlers.ChangePassword)
		})
	})

	return r
}

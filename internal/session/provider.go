package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
)

// Provider resolves the caller's session on every request and issues new
// ones at login.
type Provider struct {
	Store        Store
	Tokens       Tokens
	TTL          time.Duration
	CookieName   string
	SecureCookie bool

	Now func() time.Time
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Provider) cookieName() string {
	if p.CookieName == "" {
		return "ac_session"
	}
	return p.CookieName
}

func (p *Provider) token(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if c, err := r.Cookie(p.cookieName()); err == nil {
		return c.Value
	}
	return ""
}

// Middleware attaches the session named by the request token, if any. Bad
// or stale tokens make the request anonymous; they never fail it here.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := p.token(r)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}

		log := api.LoggerFromContext(r.Context())
		id, err := p.Tokens.Verify(tok, p.now())
		if err != nil {
			log.Debug("ignoring session token", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		s, err := p.Store.Get(r.Context(), id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Error("load session", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := WithSession(r.Context(), s)
		ctx = api.WithLogger(ctx, log.With("user_id", s.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects anonymous requests with AUTH_REQUIRED.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			api.WriteAppError(w, r, apperr.AuthRequired())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Begin stores a new session for u, sets the session cookie and returns the
// signed token.
func (p *Provider) Begin(ctx context.Context, w http.ResponseWriter, u User) (*Session, string, error) {
	now := p.now().UTC()
	ttl := p.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	s := &Session{
		ID:        uuid.NewString(),
		User:      u,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	tok, err := p.Tokens.Sign(s)
	if err != nil {
		return nil, "", err
	}
	if err := p.Store.Create(ctx, s); err != nil {
		return nil, "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName(),
		Value:    tok,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   p.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return s, tok, nil
}

// End deletes s and clears the cookie.
func (p *Provider) End(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil {
		return nil
	}
	return p.Store.Delete(ctx, s.ID)
}

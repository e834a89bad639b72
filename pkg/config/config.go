package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often PgBouncer/pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	DB DBConfig

	Backend BackendConfig

	Session SessionConfig

	// AllowedOrigins is a comma-separated allowlist of web UI origins. Example:
	//   https://autoconnect.ph,http://localhost:5173
	AllowedOrigins []string

	MapboxToken string

	Captcha CaptchaConfig
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BackendConfig points at the AutoConnect REST API that owns bookings, cars and users.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration

	// Store is "postgres" or "memory". Memory is only meant for local dev.
	Store string

	CookieName string

	// PurgeSchedule is a cron schedule for deleting expired sessions.
	PurgeSchedule string
}

type CaptchaConfig struct {
	VerifyURL string
	Secret    string
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "autoconnect"),
			User:     env("DB_USER", "autoconnect"),
			Password: env("DB_PASSWORD", "autoconnect"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimSuffix(env("AUTOCONNECT_BASE_URL", "http://localhost:3000"), "/"),
			Timeout: envDuration("AUTOCONNECT_TIMEOUT", 20*time.Second),
		},
		Session: SessionConfig{
			Secret:        os.Getenv("SESSION_SECRET"),
			TTL:           envDuration("SESSION_TTL", 7*24*time.Hour),
			Store:         strings.ToLower(env("SESSION_STORE", "postgres")),
			CookieName:    env("SESSION_COOKIE", "ac_session"),
			PurgeSchedule: env("SESSION_PURGE_SCHEDULE", "@every 15m"),
		},
		AllowedOrigins: envList("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
		MapboxToken:    os.Getenv("MAPBOX_TOKEN"),
		Captcha: CaptchaConfig{
			VerifyURL: env("CAPTCHA_VERIFY_URL", "https://api.friendlycaptcha.com/api/v1/siteverify"),
			Secret:    os.Getenv("CAPTCHA_SECRET"),
		},
	}
}

// UsesDatabase reports whether any component needs a Postgres pool.
func (c Config) UsesDatabase() bool {
	return c.Session.Store != "memory" || c.MigrationsPath != ""
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"testing"
	"time"
)

func TestEnvList_TrimsAndDropsEmpty(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,http://localhost:5173 ")
	got := envList("ALLOWED_ORIGINS", "")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "http://localhost:5173" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestEnvDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	if got := envDuration("SESSION_TTL", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
	t.Setenv("SESSION_TTL", "90m")
	if got := envDuration("SESSION_TTL", time.Hour); got != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", got)
	}
}

func TestLoad_PortFallbackAndBackendURL(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("AUTOCONNECT_BASE_URL", "https://backend.example/")
	t.Setenv("SESSION_STORE", "Memory")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("http addr: %q", cfg.HTTPAddr)
	}
	if cfg.Backend.BaseURL != "https://backend.example" {
		t.Fatalf("base url: %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.Store != "memory" {
		t.Fatalf("store: %q", cfg.Session.Store)
	}
	if cfg.UsesDatabase() && cfg.MigrationsPath == "" {
		t.Fatalf("memory store without migrations should not need a database")
	}
}

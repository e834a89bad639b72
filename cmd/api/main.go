package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"autoconnect/internal/booking"
	"autoconnect/internal/httpapi"
	"autoconnect/internal/jobs"
	"autoconnect/internal/session"
	"autoconnect/pkg/autoconnect"
	"autoconnect/pkg/captcha"
	"autoconnect/pkg/config"
	"autoconnect/pkg/db"
	"autoconnect/pkg/mapbox"
)

func main() {
	cfg := config.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.AppEnv)}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Session.Secret == "" {
		if cfg.AppEnv != "dev" {
			log.Error("SESSION_SECRET is required outside dev")
			os.Exit(1)
		}
		cfg.Session.Secret = randomSecret()
		log.Warn("SESSION_SECRET not set; using a random secret, sessions will not survive a restart")
	}

	var (
		conn     *pgxpool.Pool
		sessions session.Store
		events   booking.EventLog
	)
	if cfg.UsesDatabase() {
		var err error
		conn, err = db.Open(ctx, cfg)
		if err != nil {
			log.Error("db open", "err", err)
			os.Exit(1)
		}
		defer conn.Close()

		if cfg.MigrationsPath != "" {
			if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
				log.Error("migrate", "err", err)
				os.Exit(1)
			}
		}
		sessions = session.NewPGStore(conn)
		events = booking.NewPGEventLog(conn)
	} else {
		log.Warn("running without a database; sessions and booking events are kept in memory")
		sessions = session.NewMemoryStore()
		events = booking.NewMemoryEventLog()
	}

	limiter := httpapi.NewLimiter()
	router := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:      cfg,
		Log:      log,
		Backend:  autoconnect.New(cfg.Backend.BaseURL, cfg.Backend.Timeout),
		Sessions: sessions,
		Events:   events,
		Captcha:  captcha.Verifier{VerifyURL: cfg.Captcha.VerifyURL, Secret: cfg.Captcha.Secret},
		Geocoder: mapbox.Client{AccessToken: cfg.MapboxToken},
		Limiter:  limiter,
	})

	scheduler, err := jobs.Schedule(cfg.Session.PurgeSchedule, jobs.Housekeeping{
		Sessions: sessions,
		Limiter:  limiter,
		Log:      log.With("component", "jobs"),
	})
	if err != nil {
		log.Error("schedule jobs", "err", err)
		os.Exit(1)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	<-scheduler.Stop().Done()
}

func logLevel(env string) slog.Level {
	if env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

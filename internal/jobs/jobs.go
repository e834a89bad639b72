// Package jobs runs the gateway's periodic housekeeping.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Pruner interface {
	Prune() int
}

type Housekeeping struct {
	Sessions SessionPurger
	Limiter  Pruner
	Log      *slog.Logger
	Now      func() time.Time
	Timeout  time.Duration
}

// PurgeSessions deletes sessions past their expiry.
func (h Housekeeping) PurgeSessions(ctx context.Context) (int64, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	n, err := h.Sessions.PurgeExpired(ctx, now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}

func (h Housekeeping) run() {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if h.Sessions != nil {
		n, err := h.PurgeSessions(ctx)
		if err != nil {
			log.Error("housekeeping failed", "job", "purge_sessions", "err", err)
		} else if n > 0 {
			log.Info("expired sessions purged", "count", n)
		}
	}
	if h.Limiter != nil {
		if n := h.Limiter.Prune(); n > 0 {
			log.Debug("idle rate limit buckets dropped", "count", n)
		}
	}
}

// Schedule registers the housekeeping run on schedule (robfig/cron syntax,
// e.g. "@every 15m"). The caller starts and stops the returned scheduler.
func Schedule(schedule string, h Housekeeping) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, h.run); err != nil {
		return nil, fmt.Errorf("schedule housekeeping %q: %w", schedule, err)
	}
	return c, nil
}

package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limit struct {
	every time.Duration
	burst int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles clients per IP. Paths registered with Limit get
// their own, usually stricter, bucket.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	def      limit
	paths    map[string]limit
	idleTTL  time.Duration
	now      func() time.Time
}

func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		def:      limit{every: every, burst: burst},
		paths:    make(map[string]limit),
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Limit sets the bucket for requests whose path ends with suffix.
func (rl *RateLimiter) Limit(suffix string, every time.Duration, burst int) *RateLimiter {
	rl.paths[suffix] = limit{every: every, burst: burst}
	return rl
}

func (rl *RateLimiter) bucket(path string) (string, limit) {
	for suffix, l := range rl.paths {
		if strings.HasSuffix(path, suffix) {
			return suffix, l
		}
	}
	return "", rl.def
}

func (rl *RateLimiter) allow(ip, path string) (bool, time.Duration) {
	key, l := rl.bucket(path)
	key = ip + "|" + key

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, l.every
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Prune drops visitors idle for longer than the idle TTL.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	n := 0
	for k, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, k)
			n++
		}
	}
	return n
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := rl.allow(clientIP(r), r.URL.Path)
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MotorTG/motortg-crud/internal/api/handlers"
	"github.com/MotorTG/motortg-crud/internal/api/problem"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/MotorTG/motortg-crud/internal/realtime"
	"golang.org/x/time/rate"
)

const socketLimiterKey = "rate_limiter"

// EventRateLimit gives every socket its own token bucket of perMinute events.
// Events over the budget are answered with "rate limit exceeded" and never
// reach the handler. perMinute <= 0 disables the limit.
func EventRateLimit(perMinute int) realtime.EventMiddleware {
	return func(next realtime.EventHandler) realtime.EventHandler {
		if perMinute <= 0 {
			return next
		}
		return func(ctx context.Context, socket *realtime.Socket, ev realtime.Event) any {
			if !socketLimiter(socket, perMinute).Allow() {
				metrics.EventsTotal.WithLabelValues(socket.Namespace(), ev.Name, "rate_limited").Inc()
				socket.Logger().Debug().Str("event", ev.Name).Msg("event rate limited")
				return handlers.Fail(problem.RateLimited)
			}
			return next(ctx, socket, ev)
		}
	}
}

// socketLimiter is only called from the socket's own dispatch goroutine, so
// the lookup and store do not race.
func socketLimiter(socket *realtime.Socket, perMinute int) *rate.Limiter {
	if limiter, ok := socket.Value(socketLimiterKey).(*rate.Limiter); ok {
		return limiter
	}
	limiter := newLimiter(perMinute)
	socket.Set(socketLimiterKey, limiter)
	return limiter
}

func newLimiter(perMinute int) *rate.Limiter {
	interval := time.Minute / time.Duration(perMinute)
	return rate.NewLimiter(rate.Every(interval), perMinute)
}

// ConnectionLimiter bounds WebSocket upgrades per client address. Stop ends
// its background cleanup.
type ConnectionLimiter struct {
	store   *limiterStore
	trusted []string
}

// NewConnectionLimiter returns a pass-through limiter when
// cfg.ConnectionsPerMinute <= 0.
func NewConnectionLimiter(cfg config.RateLimitConfig) *ConnectionLimiter {
	l := &ConnectionLimiter{trusted: cfg.TrustedProxyCIDRs}
	if cfg.ConnectionsPerMinute > 0 {
		l.store = newLimiterStore(cfg.ConnectionsPerMinute)
	}
	return l
}

func (l *ConnectionLimiter) Middleware(next http.Handler) http.Handler {
	if l.store == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.store.limiter(clientKey(r, l.trusted)).Allow() {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop is safe to call more than once.
func (l *ConnectionLimiter) Stop() {
	if l.store != nil {
		l.store.stop()
	}
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	perMinute   int
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(perMinute int) *limiterStore {
	store := &limiterStore{
		limiters:    make(map[string]*limiterEntry),
		perMinute:   perMinute,
		stopCleanup: make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

func (s *limiterStore) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[key]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := newLimiter(s.perMinute)
	s.limiters[key] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes limiter entries that haven't been accessed in 15 minutes
func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ttl := 15 * time.Minute

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// clientKey only trusts X-Forwarded-For and X-Real-IP when the immediate peer
// is inside one of the trusted proxy CIDRs.
func clientKey(r *http.Request, trustedProxyCIDRs []string) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxyCIDRs) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	return remoteIP
}

func isTrustedProxy(ip string, trustedCIDRs []string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidrStr := range trustedCIDRs {
		_, cidr, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		if cidr.Contains(parsedIP) {
			return true
		}
	}
	return false
}

package echoapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/perm"
)

var errPermissionDenied = echo.NewHTTPError(http.StatusForbidden, "You do not have permission to view that page.")

// fallbackPredicate grants access a capability check refused. Never called for the Guest.
type fallbackPredicate func(ctx echo.Context, p auth.Principal) bool

// requireCapability lets the request through when the principal holds c or any fallback grants it.
func requireCapability(c perm.Capability, fallbacks ...fallbackPredicate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if allowed(ctx, principalOf(ctx), c, fallbacks...) {
				return next(ctx)
			}
			return errPermissionDenied
		}
	}
}

func allowed(ctx echo.Context, p auth.Principal, c perm.Capability, fallbacks ...fallbackPredicate) bool {
	if p.Can(c) {
		return true
	}
	if p.IsGuest() {
		return false
	}
	for _, fb := range fallbacks {
		if fb(ctx, p) {
			return true
		}
	}
	return false
}

// ownerFallback grants access to the user named by the `:username` route param when they hold self.
func ownerFallback(self perm.Capability) fallbackPredicate {
	return func(ctx echo.Context, p auth.Principal) bool {
		uname := ctx.Param("username")
		return uname != "" && uname == p.Username() && p.Can(self)
	}
}

// landingPath is the first page the principal may see.
func landingPath(p auth.Principal) string {
	switch {
	case p.Can(perm.AccessAdminPanel):
		return "/admin"
	case p.Can(perm.AccessDashboard):
		return "/dashboard"
	case p.Can(perm.ReadLesson):
		return "/lessons"
	default:
		return "/home"
	}
}

// metricsMiddleware labels requests with their registered route, so unknown paths share one series.
func (s *server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		route := ctx.Path()
		if _, ok := s.routes[route]; !ok {
			route = "unmatched"
		}
		done := s.Metrics.RequestStarted(ctx.Request().Method, route)
		err := next(ctx)
		status := ctx.Response().Status
		if err != nil {
			status = http.StatusInternalServerError
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		done(status)
		return err
	}
}

var errTooManyRequests = echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts. Please wait a minute and try again.")

// rateLimiter is a token bucket per client IP, refilled at perMinute tokens a minute.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	ttl       time.Duration
	lastPrune time.Time
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &rateLimiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		ttl:       5 * time.Minute,
		lastPrune: time.Now(),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastPrune) > time.Minute {
		for k, b := range rl.buckets {
			if now.Sub(b.ts) > rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastPrune = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)}
		rl.buckets[ip] = b
	}
	b.ts = now
	return b.lim.Allow()
}

func (rl *rateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ip := ctx.RealIP()
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip) {
			return errTooManyRequests
		}
		return next(ctx)
	}
}

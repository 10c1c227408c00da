package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// ThrottleRecorder observes throttled requests.
type ThrottleRecorder interface {
	RecordThrottle(route string)
}

// Middleware applies per-endpoint rules over a shared Limiter.
type Middleware struct {
	Limiter  *Limiter
	Logger   *slog.Logger
	Recorder ThrottleRecorder
}

// Key builds the counter key client-ip|route|identity. The identity part is
// the authenticated user id, or "anon" before authentication.
func Key(r *http.Request, route string) string {
	ip, err := httprate.KeyByIP(r)
	if err != nil || ip == "" {
		ip = r.RemoteAddr
	}
	identity := "anon"
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.UserID > 0 {
		identity = strconv.FormatInt(p.UserID, 10)
	}
	return ip + "|" + route + "|" + identity
}

func routeName(r *http.Request, rule Rule) string {
	if rule.Name != "" {
		return rule.Name
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

// Limit returns middleware enforcing rule. Store failures let the request
// through and are logged, so a cache outage does not take the API down.
func (m Middleware) Limit(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !rule.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeName(r, rule)
			res, err := m.Limiter.Allow(r.Context(), Key(r, route), rule.Limit, rule.Window)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rate limiter unavailable", slog.String("route", route), slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			if m.Recorder != nil {
				m.Recorder.RecordThrottle(route)
			}
			if m.Logger != nil {
				m.Logger.Warn("request throttled",
					slog.String("route", route),
					slog.String("remote", r.RemoteAddr),
					slog.Duration("retry_after", res.RetryAfter))
			}
			httpx.RespondThrottled(w, res.RetryAfter)
		})
	}
}

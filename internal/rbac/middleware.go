package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// DenialRecorder observes authorization denials.
type DenialRecorder interface {
	RecordDenial(code string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Recorder  DenialRecorder
}

// RequirePermission ensures the current principal satisfies code.
func (m Middleware) RequirePermission(code string) func(http.Handler) http.Handler {
	return m.RequireAny(code)
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			decision := m.Evaluator.AuthorizeAny(r.Context(), principal, normalized...)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			m.recordDenial(r, principal, decision)
			httpx.RespondError(w, decision.Err())
		})
	}
}

func (m Middleware) recordDenial(r *http.Request, p shared.Principal, d Decision) {
	if m.Recorder != nil {
		m.Recorder.RecordDenial(d.Code)
	}
	if m.Logger == nil {
		return
	}
	attrs := []any{
		slog.Int64("user_id", p.UserID),
		slog.String("role", p.RoleCode),
		slog.String("required", d.Code),
		slog.String("path", r.URL.Path),
	}
	if errors.Is(d.Reason, shared.ErrConfiguration) {
		m.Logger.Error("rbac configuration error", append(attrs, slog.Any("error", d.Reason))...)
		return
	}
	m.Logger.Warn("rbac denied", attrs...)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, dup := unique[p]; dup {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Authenticator validates bearer tokens and stores the principal in context.
type Authenticator struct {
	Tokens *TokenService
	Logger *slog.Logger
}

// Middleware rejects requests without a valid access token.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		principal, err := a.Tokens.ValidateAccessToken(raw)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Debug("reject bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

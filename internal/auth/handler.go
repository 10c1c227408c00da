package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// RotationRecorder observes refresh outcomes.
type RotationRecorder interface {
	RecordRotation(result string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authn     Authenticator
	validator *validator.Validate
	recorder  RotationRecorder
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, recorder RotationRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		authn:     Authenticator{Tokens: service.Tokens(), Logger: logger},
		validator: validator.New(),
		recorder:  recorder,
	}
}

// Authenticator returns the bearer middleware bound to this handler's tokens.
func (h *Handler) Authenticator() Authenticator {
	return h.authn
}

// RouteGuards attaches extra middleware to individual auth endpoints, such as
// a stricter rate rule on login.
type RouteGuards struct {
	Login   func(http.Handler) http.Handler
	Refresh func(http.Handler) http.Handler
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router, guards RouteGuards) {
	r.With(orPass(guards.Login)).Post("/login", h.handleLogin)
	r.With(orPass(guards.Refresh)).Post("/refresh", h.handleRefresh)
	r.With(h.authn.Middleware).Post("/logout", h.handleLogout)
}

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed body", httpx.ErrValidation)
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if shared.IsAuthenticationFailure(err) {
			h.logger.Info("login rejected", slog.String("email", req.Email))
		} else {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	h.record(err)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrRotationConflict):
			h.logger.Warn("refresh rotation conflict", slog.String("remote", r.RemoteAddr))
		case !shared.IsAuthenticationFailure(err):
			h.logger.Error("refresh", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Logout(r.Context(), principal.UserID); err != nil {
		h.logger.Error("logout", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) record(err error) {
	if h.recorder == nil {
		return
	}
	switch {
	case err == nil:
		h.recorder.RecordRotation("ok")
	case errors.Is(err, shared.ErrRotationConflict):
		h.recorder.RecordRotation("conflict")
	case IsExpired(err):
		h.recorder.RecordRotation("expired")
	default:
		h.recorder.RecordRotation("invalid")
	}
}

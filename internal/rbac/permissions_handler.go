package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// PermissionsHandler exposes the catalog and the caller's own grants.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	scopes  *datascope.Resolver
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, scopes *datascope.Resolver, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, scopes: scopes, rbac: rbac}
}

// MountRoutes registers permission routes. Callers must already be authenticated.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/mine", h.mine)
	r.Get("/scope", h.scope)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermPermissionList))
		r.Get("/tree", h.tree)
	})
}

type minePayload struct {
	UserID      int64    `json:"user_id"`
	Role        string   `json:"role"`
	SuperAdmin  bool     `json:"super_admin"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.PermissionTree(r.Context())
	if err != nil {
		h.logger.Error("build permission tree", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	payload := minePayload{UserID: principal.UserID, Role: principal.RoleCode}
	evaluator := h.rbac.Evaluator
	if evaluator.IsSuperAdmin(principal) {
		codes, err := h.service.AllCodes(r.Context())
		if err != nil {
			h.logger.Error("list permission codes", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		payload.SuperAdmin = true
		payload.Permissions = shared.NewPermissionSet(codes...).Codes()
	} else {
		payload.Permissions = evaluator.EffectivePermissions(r.Context(), principal).Codes()
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *PermissionsHandler) scope(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	// the token's department is only a hint; a move takes effect immediately
	assignment, err := h.service.Assignment(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Warn("load assignment for scope", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.RoleForUser(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Warn("load role for scope", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	pred, err := h.scopes.Resolve(r.Context(), role.ScopeRule(), datascope.Subject{UserID: principal.UserID, DeptID: assignment.DeptID})
	if err != nil {
		h.logger.Error("resolve data scope", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pred)
}

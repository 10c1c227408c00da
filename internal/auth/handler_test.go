package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	_ "github.com/odyssey-erp/odyssey-admin/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type stubPrincipals struct{}

func (stubPrincipals) LoadPrincipal(_ context.Context, userID int64) (shared.Principal, error) {
	return shared.Principal{UserID: userID, RoleCode: "editor", Permissions: shared.NewPermissionSet("user:list")}, nil
}

type rotationCounter map[string]int

func (r rotationCounter) RecordRotation(result string) { r[result]++ }

func newAuthRouter(t *testing.T) (http.Handler, rotationCounter) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "odyssey-admin",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, auth.NewMemoryRefreshStore(), stubPrincipals{})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	counter := rotationCounter{}
	handler := auth.NewHandler(nil, auth.NewService(repo, stubPrincipals{}, tokens), counter)
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) { handler.MountRoutes(r, auth.RouteGuards{}) })
	return r, counter
}

func postJSON(t *testing.T, h http.Handler, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func login(t *testing.T, h http.Handler) auth.TokenPair {
	t.Helper()
	res := postJSON(t, h, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(res.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	return pair
}

func TestLoginInvalidCredentials(t *testing.T) {
	h, _ := newAuthRouter(t)
	res := postJSON(t, h, "/auth/login", `{"email":"user@test.local","password":"wrongpass"}`, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	h, _ := newAuthRouter(t)
	res := postJSON(t, h, "/auth/login", `{"email":"not-an-email","password":"x"}`, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "email") {
		t.Fatalf("expected field name in problem detail: %s", res.Body.String())
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	h, counter := newAuthRouter(t)
	pair := login(t, h)
	body := `{"refresh_token":"` + pair.RefreshToken + `"}`

	res := postJSON(t, h, "/auth/refresh", body, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	res = postJSON(t, h, "/auth/refresh", body, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", res.Code)
	}
	if counter["ok"] != 1 || counter["conflict"] != 1 {
		t.Fatalf("unexpected rotation counts: %v", counter)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	h, _ := newAuthRouter(t)
	pair := login(t, h)

	res := postJSON(t, h, "/auth/logout", "", "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", res.Code)
	}
	if res.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	res = postJSON(t, h, "/auth/logout", "", pair.AccessToken)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}

	res = postJSON(t, h, "/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.Code)
	}
}

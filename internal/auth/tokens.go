package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// PrincipalLoader resolves the current role assignment of a user.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (shared.Principal, error)
}

// TokenConfig configures signing and lifetimes.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, validates and rotates bearer tokens.
type TokenService struct {
	cfg        TokenConfig
	store      RefreshStore
	principals PrincipalLoader
	now        func() time.Time
}

// NewTokenService validates cfg and wires the refresh store.
func NewTokenService(cfg TokenConfig, store RefreshStore, principals PrincipalLoader) (*TokenService, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("%w: signing secret must be at least 16 bytes", shared.ErrConfiguration)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", shared.ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: refresh store missing", shared.ErrConfiguration)
	}
	return &TokenService{cfg: cfg, store: store, principals: principals, now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// IssueAccessToken signs a short-lived access token for p.
func (s *TokenService) IssueAccessToken(p shared.Principal) (string, time.Time, error) {
	if p.UserID <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: principal without user id", shared.ErrUnauthenticated)
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.cfg.AccessTTL)
	claims := &Claims{
		Kind:             KindAccess,
		Role:             p.RoleCode,
		Dept:             p.DeptID,
		Perms:            p.Permissions.Codes(),
		RegisteredClaims: s.registered(p.UserID, issuedAt, expiresAt),
	}
	token, err := s.sign(claims)
	return token, expiresAt, err
}

// IssueRefreshToken signs a refresh token and makes it the user's only live
// record, superseding any previous one.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID int64) (string, time.Time, error) {
	token, expiresAt, err := s.signRefresh(userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.Put(ctx, userID, token, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: persist refresh token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateAccessToken verifies signature, issuer, audience, expiry and kind.
func (s *TokenService) ValidateAccessToken(token string) (shared.Principal, error) {
	claims, err := s.parse(token)
	if err != nil {
		return shared.Principal{}, err
	}
	if claims.Kind != KindAccess {
		return shared.Principal{}, ErrTokenKind
	}
	userID, err := claims.UserID()
	if err != nil {
		return shared.Principal{}, err
	}
	return shared.Principal{
		UserID:      userID,
		RoleCode:    claims.Role,
		DeptID:      claims.Dept,
		Permissions: shared.NewPermissionSet(claims.Perms...),
	}, nil
}

// RotateRefreshToken exchanges a live refresh token for a new pair. The
// replacement is committed with a per-user compare-and-swap; of two concurrent
// rotations with the same token exactly one succeeds and the other receives
// ErrRefreshUnknown. Once the swap commits, cancelling ctx has no effect.
func (s *TokenService) RotateRefreshToken(ctx context.Context, presented string) (TokenPair, error) {
	claims, err := s.parse(presented)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != KindRefresh {
		return TokenPair{}, ErrTokenKind
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, err
	}
	if s.principals == nil {
		return TokenPair{}, fmt.Errorf("%w: principal loader missing", shared.ErrConfiguration)
	}

	principal, err := s.principals.LoadPrincipal(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := s.IssueAccessToken(principal)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.signRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}

	swapped, err := s.store.CompareAndSwap(context.WithoutCancel(ctx), userID, presented, refresh, refreshExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: swap refresh token: %w", err)
	}
	if !swapped {
		return TokenPair{}, ErrRefreshUnknown
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		TokenType:        "Bearer",
	}, nil
}

// Revoke drops the live refresh record of userID.
func (s *TokenService) Revoke(ctx context.Context, userID int64) error {
	return s.store.Delete(ctx, userID)
}

func (s *TokenService) signRefresh(userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: invalid user id", shared.ErrUnauthenticated)
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.cfg.RefreshTTL)
	token, err := s.sign(&Claims{
		Kind:             KindRefresh,
		RegisteredClaims: s.registered(userID, issuedAt, expiresAt),
	})
	return token, expiresAt, err
}

func (s *TokenService) registered(userID int64, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if s.cfg.Audience != "" {
		rc.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	return rc
}

func (s *TokenService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return claims, nil
}

package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo       Repository
	principals PrincipalLoader
	tokens     *TokenService
}

// NewService constructs a new Service.
func NewService(repo Repository, principals PrincipalLoader, tokens *TokenService) *Service {
	return &Service{repo: repo, principals: principals, tokens: tokens}
}

// Tokens exposes the token service for middleware wiring.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a fresh token pair. Any earlier refresh token
// of the user stops working.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, err
	}
	principal, err := s.principals.LoadPrincipal(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		TokenType:        "Bearer",
	}, nil
}

// Refresh rotates the presented refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.tokens.RotateRefreshToken(ctx, refreshToken)
}

// Logout revokes the user's refresh token.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.tokens.Revoke(ctx, userID)
}

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenKind separates access tokens from refresh tokens sharing one key.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the signed claim set. Role, department and permission codes are
// hints; authorization re-resolves the role on every check.
type Claims struct {
	Kind  TokenKind `json:"typ"`
	Role  string    `json:"role,omitempty"`
	Dept  int64     `json:"dept,omitempty"`
	Perms []string  `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", shared.ErrUnauthenticated, c.Subject)
	}
	return id, nil
}

// TokenPair is returned by login and rotation.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// Typed token failures. All of them surface as 401.
var (
	ErrTokenExpired   = fmt.Errorf("%w: token expired", shared.ErrUnauthenticated)
	ErrTokenMalformed = fmt.Errorf("%w: token malformed", shared.ErrUnauthenticated)
	ErrTokenKind      = fmt.Errorf("%w: wrong token type", shared.ErrUnauthenticated)
	// ErrRefreshUnknown is returned when the presented refresh token is not the
	// live record for its user, including the loser of a concurrent rotation.
	ErrRefreshUnknown = fmt.Errorf("%w: refresh token superseded or unknown", shared.ErrRotationConflict)
)

// IsExpired reports whether err is an expiry failure.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

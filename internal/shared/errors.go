package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated covers bad, expired or malformed credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates a valid principal without the required permission.
	ErrForbidden = errors.New("authorization denied")
	// ErrThrottled indicates the caller exceeded its request budget.
	ErrThrottled = errors.New("throttle exceeded")
	// ErrConfiguration marks operator-side misconfiguration. Checks fail closed.
	ErrConfiguration = errors.New("configuration error")
	// ErrRotationConflict occurs when a stale refresh token is presented.
	ErrRotationConflict = errors.New("refresh token rotation conflict")
)

// IsAuthenticationFailure reports whether err should surface as 401.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrRotationConflict)
}

package shared

import "fmt"

// RefreshTokenKey builds the redis key holding a user's live refresh token.
func RefreshTokenKey(userID int64) string {
	return fmt.Sprintf("auth:refresh:%d", userID)
}

// RateWindowKey builds the redis key holding a fixed-window counter.
func RateWindowKey(key string) string {
	return "ratelimit:window:" + key
}

package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// testDefaults keeps LoadConfig usable in packages that build a full Config.
var testDefaults = map[string]string{
	"ODYSSEY_TEST_MODE": "1",
	"JWT_SECRET":        "test-secret-0123456789abcdef",
	"SUPERADMIN_ROLE":   "superadmin",
	"TOKEN_STORE":       "memory",
	"RATE_STORE":        "memory",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testDefaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

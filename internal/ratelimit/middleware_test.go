package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type throttleCounter map[string]int

func (c throttleCounter) RecordThrottle(route string) { c[route]++ }

func TestLimitMiddleware(t *testing.T) {
	counter := throttleCounter{}
	mw := Middleware{Limiter: NewLimiter(NewMemoryStore()), Recorder: counter}
	handler := mw.Limit(Rule{Name: "login", Limit: 2, Window: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusNoContent, call("10.0.0.1:1000").Code)
	rr := call("10.0.0.1:1001")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = call("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	var body struct {
		Status     int `json:"status"`
		RetryAfter int `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, http.StatusTooManyRequests, body.Status)
	require.GreaterOrEqual(t, body.RetryAfter, 1)
	require.Equal(t, 1, counter["login"])

	require.Equal(t, http.StatusNoContent, call("10.0.0.2:1000").Code)
}

func TestKeyIncludesIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/permissions/mine", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	require.Equal(t, "192.0.2.10|mine|anon", Key(req, "mine"))

	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 42}))
	require.Equal(t, "192.0.2.10|mine|42", Key(req, "mine"))
}

func TestDisabledRuleIsPassThrough(t *testing.T) {
	mw := Middleware{}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := mw.Limit(Rule{Name: "open"})(next)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

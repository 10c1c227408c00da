package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: expired", shared.ErrUnauthenticated), http.StatusUnauthorized},
		{shared.ErrRotationConflict, http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: bad code", shared.ErrConfiguration), http.StatusForbidden},
		{shared.ErrThrottled, http.StatusTooManyRequests},
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		if rr.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
	}
}

func TestRespondErrorHidesConfigurationDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: superadmin role missing", shared.ErrConfiguration))
	if strings.Contains(rr.Body.String(), "superadmin") {
		t.Fatalf("configuration detail leaked: %s", rr.Body.String())
	}
}

func TestRespondThrottledSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondThrottled(rr, 1500*time.Millisecond)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if !strings.Contains(rr.Body.String(), `"retry_after":2`) {
		t.Fatalf("expected retry hint in body, got %s", rr.Body.String())
	}
}

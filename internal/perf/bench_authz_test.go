package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/ratelimit"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type staticRoles map[string]shared.PermissionSet

func (s staticRoles) GetPermissionsForRole(_ context.Context, role string) (shared.PermissionSet, error) {
	return s[role], nil
}

type staticPrincipals struct{}

func (staticPrincipals) LoadPrincipal(_ context.Context, userID int64) (shared.Principal, error) {
	return shared.Principal{UserID: userID, RoleCode: "editor"}, nil
}

func newEvaluator(tb testing.TB) *rbac.Evaluator {
	tb.Helper()
	codes := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		codes = append(codes, fmt.Sprintf("module%d:list", i))
	}
	ev, err := rbac.NewEvaluator("superadmin", rbac.NewPolicyResolver(), staticRoles{"editor": shared.NewPermissionSet(codes...)})
	if err != nil {
		tb.Fatalf("evaluator: %v", err)
	}
	return ev
}

func newTokens(tb testing.TB) *auth.TokenService {
	tb.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "odyssey-admin",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, auth.NewMemoryRefreshStore(), staticPrincipals{})
	if err != nil {
		tb.Fatalf("tokens: %v", err)
	}
	return svc
}

// The per-request path (validate, authorize, throttle) must stay far below
// network latency once policies are warm.
func TestAuthorizationHotPathLatency(t *testing.T) {
	ctx := context.Background()
	ev := newEvaluator(t)
	tokens := newTokens(t)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	token, _, err := tokens.IssueAccessToken(shared.Principal{UserID: 7, RoleCode: "editor"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	samples := make([]time.Duration, 0, 500)
	for i := 0; i < 500; i++ {
		start := time.Now()
		p, err := tokens.ValidateAccessToken(token)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if d := ev.Authorize(ctx, p, fmt.Sprintf("module%d:list", i%200)); !d.Allowed {
			t.Fatalf("expected allow, got %+v", d)
		}
		if _, err := limiter.Allow(ctx, fmt.Sprintf("10.0.0.%d|GET /x|7", i%50), 1000, time.Minute); err != nil {
			t.Fatalf("allow: %v", err)
		}
		samples = append(samples, time.Since(start))
	}

	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("hot path regression: p95=%s threshold=5ms", p95)
	}
}

func BenchmarkAuthorize(b *testing.B) {
	ctx := context.Background()
	ev := newEvaluator(b)
	p := shared.Principal{UserID: 7, RoleCode: "editor"}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			ev.Authorize(ctx, p, fmt.Sprintf("module%d:list", i%200))
			i++
		}
	})
}

func BenchmarkLimiterAllow(b *testing.B) {
	ctx := context.Background()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = limiter.Allow(ctx, fmt.Sprintf("10.0.0.%d|GET /x|anon", i%64), 1<<30, time.Minute)
			i++
		}
	})
}

func BenchmarkValidateAccessToken(b *testing.B) {
	tokens := newTokens(b)
	token, _, err := tokens.IssueAccessToken(shared.Principal{UserID: 7, RoleCode: "editor"})
	if err != nil {
		b.Fatalf("issue: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tokens.ValidateAccessToken(token); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

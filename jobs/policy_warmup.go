package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PolicyWarmer materialises authorization policies and reports how many codes
// were processed.
type PolicyWarmer interface {
	WarmPolicies(ctx context.Context) (int, error)
}

// PolicyWarmupFunc adapts a function to PolicyWarmer.
type PolicyWarmupFunc func(ctx context.Context) (int, error)

// WarmPolicies implements PolicyWarmer.
func (f PolicyWarmupFunc) WarmPolicies(ctx context.Context) (int, error) {
	return f(ctx)
}

// PolicyWarmupJob pre-creates one policy per catalog code so the first
// request for a route does not pay for policy creation. It runs inside the
// process that owns the resolver.
type PolicyWarmupJob struct {
	Warmer  PolicyWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewPolicyWarmupJob wires dependencies for the warmup handler.
func NewPolicyWarmupJob(warmer PolicyWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PolicyWarmupJob {
	return &PolicyWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Run warms the policy cache once and returns how many codes were processed.
func (j *PolicyWarmupJob) Run(ctx context.Context, reason string) (warmed int, resultErr error) {
	if j == nil || j.Warmer == nil {
		return 0, errors.New("policy warmup: not configured")
	}
	tracker := j.metrics().Track(TaskPolicyWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", reason))
	start := time.Now()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	warmed, err := j.Warmer.WarmPolicies(ctx)
	if err != nil {
		logger.Error("warm policies", slog.Any("error", err))
		return 0, err
	}
	logger.Info("completed policy warmup", slog.Int("codes", warmed), slog.Duration("duration", time.Since(start)))
	return warmed, nil
}

func (j *PolicyWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPolicyWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPolicyWarmup))
}

func (j *PolicyWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

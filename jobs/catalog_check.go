package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

// CatalogChecker validates the permission catalog and reports how many
// entries it covered.
type CatalogChecker interface {
	CheckCatalog(ctx context.Context) (int, error)
}

// CatalogCheckFunc adapts a function to CatalogChecker.
type CatalogCheckFunc func(ctx context.Context) (int, error)

// CheckCatalog implements CatalogChecker.
func (f CatalogCheckFunc) CheckCatalog(ctx context.Context) (int, error) {
	return f(ctx)
}

// CatalogCheckJob surfaces malformed codes, orphans and cycles as a failed
// task instead of a 403 at request time.
type CatalogCheckJob struct {
	Checker CatalogChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewCatalogCheckJob wires dependencies for the catalog check handler.
func NewCatalogCheckJob(checker CatalogChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogCheckJob {
	return &CatalogCheckJob{Checker: checker, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes catalog check tasks.
func (j *CatalogCheckJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("catalog check: handler not configured")
	}
	payload, err := decodeTrigger(t)
	if err != nil {
		return err
	}
	return j.Run(ctx, payload.Reason)
}

// Run validates the catalog once.
func (j *CatalogCheckJob) Run(ctx context.Context, reason string) (resultErr error) {
	tracker := j.metrics().Track(TaskCatalogCheck)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", reason))
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	checked, err := j.Checker.CheckCatalog(ctx)
	if err != nil {
		logger.Error("catalog check failed", slog.Any("error", err))
		return err
	}
	logger.Info("catalog check passed", slog.Int("entries", checked))
	return nil
}

func (j *CatalogCheckJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogCheck))
	}
	return slog.Default().With(slog.String("job", TaskCatalogCheck))
}

func (j *CatalogCheckJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

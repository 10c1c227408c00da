package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

// Sweeper removes expired records and reports how many were dropped.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SweepJob runs Sweep over a named set of stores.
type SweepJob struct {
	Targets map[string]Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSweepJob wires the stores to clean.
func NewSweepJob(targets map[string]Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Targets: targets,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskRefreshSweep tasks.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || len(j.Targets) == 0 {
		return errors.New("sweep: handler not configured")
	}
	payload, err := decodeTrigger(t)
	if err != nil {
		return err
	}
	_, err = j.Run(ctx, payload.Reason)
	return err
}

// Run sweeps every target once. A failing target does not stop the others;
// the first error is returned.
func (j *SweepJob) Run(ctx context.Context, reason string) (removed int, resultErr error) {
	tracker := j.metrics().Track(TaskRefreshSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", reason))
	now := j.now()
	names := make([]string, 0, len(j.Targets))
	for name := range j.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n, err := j.Targets[name].Sweep(ctx, now)
		if err != nil {
			logger.Error("sweep store", slog.String("store", name), slog.Any("error", err))
			if resultErr == nil {
				resultErr = err
			}
			continue
		}
		j.metrics().AddSwept(name, n)
		removed += n
	}
	if removed > 0 {
		logger.Info("swept expired records", slog.Int("removed", removed))
	}
	return removed, resultErr
}

// RunSweeper sweeps the targets every interval until ctx is cancelled. It is
// the in-process counterpart of the scheduled task for single-instance
// deployments using memory stores.
func RunSweeper(ctx context.Context, interval time.Duration, job *SweepJob) {
	if interval <= 0 || job == nil || len(job.Targets) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = job.Run(ctx, "ticker")
		}
	}
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRefreshSweep))
	}
	return slog.Default().With(slog.String("job", TaskRefreshSweep))
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

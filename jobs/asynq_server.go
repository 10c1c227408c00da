package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// DefaultCron schedules the maintenance tasks: the refresh sweep hourly and a
// catalog check every night.
func DefaultCron() ([]CronRegistration, error) {
	sweep, err := NewRefreshSweepTask("cron")
	if err != nil {
		return nil, err
	}
	check, err := NewCatalogCheckTask("cron")
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "@hourly", Task: sweep, Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.Unique(time.Hour)}},
		{Spec: "15 2 * * *", Task: check, Options: []asynq.Option{asynq.Queue(QueueDefault)}},
	}, nil
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: newAsynqLogger(cfg.Logger),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueRefreshSweep enqueues a refresh token sweep.
func (c *Client) EnqueueRefreshSweep(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	task, err := NewRefreshSweepTask(reason)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueCatalogCheck enqueues a catalog check.
func (c *Client) EnqueueCatalogCheck(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	task, err := NewCatalogCheckTask(reason)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueuer submits maintenance tasks on demand.
type Enqueuer interface {
	EnqueueRefreshSweep(ctx context.Context, reason string) (*asynq.TaskInfo, error)
	EnqueueCatalogCheck(ctx context.Context, reason string) (*asynq.TaskInfo, error)
}

// HandlerConfig collects the dependencies of the jobs endpoints.
type HandlerConfig struct {
	Inspector *asynq.Inspector
	// Enqueuer may be nil, in which case queued triggers answer 503.
	Enqueuer Enqueuer
	// Served lists the task types a worker of this deployment handles.
	// Triggers for any other type answer 409.
	Served []string
	// Warmup runs in the handler's own process; nil answers 409.
	Warmup *PolicyWarmupJob
	Logger *slog.Logger
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	enqueuer  Enqueuer
	served    map[string]bool
	warmup    *PolicyWarmupJob
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	served := make(map[string]bool, len(cfg.Served))
	for _, taskType := range cfg.Served {
		served[taskType] = true
	}
	return &Handler{inspector: cfg.Inspector, enqueuer: cfg.Enqueuer, served: served, warmup: cfg.Warmup, logger: logger}
}

// RouteGuards carries the authorization middleware for read and trigger routes.
type RouteGuards struct {
	List func(http.Handler) http.Handler
	Run  func(http.Handler) http.Handler
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router, guards RouteGuards) {
	r.With(orPass(guards.List)).Get("/health", h.health)
	r.With(orPass(guards.Run)).Post("/run/{task}", h.run)
}

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

// queuedTriggers maps the route names of queued tasks to their task types.
var queuedTriggers = map[string]string{
	"refresh-sweep": TaskRefreshSweep,
	"catalog-check": TaskCatalogCheck,
}

type enqueued struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

type warmed struct {
	Type  string `json:"type"`
	Codes int    `json:"codes"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "task")
	if name == "policy-warmup" {
		h.runWarmup(w, r)
		return
	}
	taskType, ok := queuedTriggers[name]
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Unknown Task", "")
		return
	}
	if !h.served[taskType] {
		httpx.Problem(w, http.StatusConflict, "Task Not Served", fmt.Sprintf("no worker handles %s in this deployment", taskType))
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	var (
		info *asynq.TaskInfo
		err  error
	)
	switch taskType {
	case TaskRefreshSweep:
		info, err = h.enqueuer.EnqueueRefreshSweep(r.Context(), "http")
	case TaskCatalogCheck:
		info, err = h.enqueuer.EnqueueCatalogCheck(r.Context(), "http")
	}
	if err != nil {
		h.logger.Error("enqueue task", slog.String("task", taskType), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueued{ID: info.ID, Type: info.Type, Queue: info.Queue})
}

func (h *Handler) runWarmup(w http.ResponseWriter, r *http.Request) {
	if h.warmup == nil {
		httpx.Problem(w, http.StatusConflict, "Task Not Served", "policy warmup is not configured in this process")
		return
	}
	codes, err := h.warmup.Run(r.Context(), "http")
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Warmup Failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, warmed{Type: TaskPolicyWarmup, Codes: codes})
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed_today"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	payload := queueHealth{Queue: QueueDefault}
	if info != nil {
		payload = queueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Failed:    info.Failed,
		}
	}
	httpx.JSON(w, http.StatusOK, payload)
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) asynq.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return asynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

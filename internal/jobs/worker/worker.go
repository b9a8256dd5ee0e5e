package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	jobrepo "github.com/getnvoi/aven-sub001/internal/data/repos/jobs"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/jobs/runtime"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/envutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	// StaleRunning is how old a running job's heartbeat may get before another
	// worker reclaims it.
	StaleRunning   time.Duration
	HeartbeatEvery time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:    envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval:   envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		MaxAttempts:    envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		RetryDelay:     envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second),
		StaleRunning:   envutil.Duration("WORKER_STALE_RUNNING", 30*time.Minute),
		HeartbeatEvery: envutil.Duration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
	}
}

func (c Config) normalized() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 30 * time.Minute
	}
	if c.HeartbeatEvery <= 0 || c.HeartbeatEvery >= c.StaleRunning {
		c.HeartbeatEvery = c.StaleRunning / 4
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config
	metrics  *observability.Metrics
	wg       sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.normalized(),
	}
}

// WithMetrics records one sample per finished job.
func (w *Worker) WithMetrics(m *observability.Metrics) *Worker {
	w.metrics = m
	return w
}

// Start launches the poll loops; they exit when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

// Wait blocks until every loop has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain before waiting for the next tick
			for ctx.Err() == nil && w.RunOnce(ctx, workerID) {
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.execute(ctx, workerID, job)
	return true
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.JobRun) {
	jc := runtime.NewContext(ctx, job, w.repo, w.notify)
	log := w.log.With("worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	started := time.Now()
	defer func() { w.metrics.ObserveJob(job.JobType, jc.Job.Status, time.Since(started)) }()

	stop := w.heartbeat(ctx, job)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job handler panic", "panic", r)
			jc.Fail("panic", fmt.Errorf("panic: %v", r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		log.Warn("Job handler returned error", "error", runErr)
		jc.Fail("run", runErr)
		return
	}
	log.Debug("Job handler finished", "status", jc.Job.Status, "elapsed_ms", time.Since(started).Milliseconds())
}

// heartbeat keeps a long-running claim fresh so it is not reclaimed as stale.
func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
					w.log.Warn("Job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

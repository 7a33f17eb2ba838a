package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a recurring background task. Run is invoked once right after
// the scheduler starts and then on every Interval tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives the periodic pipeline work: the twice daily invoice
// batch through a BatchTrigger plus any number of interval jobs
// (ingestion, stock sync, claim sync, tracking refresh). Job outcomes
// are logged here; durable results live in the records the services
// persist themselves.
type Scheduler struct {
	batch  *BatchTrigger
	jobs   []Job
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a scheduler. batch may be nil when the invoice
// batch is disabled.
func NewScheduler(batch *BatchTrigger, jobs []Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		batch:  batch,
		jobs:   jobs,
		logger: logger.Named("scheduler"),
	}
}

// Start launches the trigger loops. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.batch != nil {
		s.wg.Add(1)
		go s.batchLoop(ctx)
	}
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.jobLoop(ctx, job)
	}

	s.logger.Info("scheduler started",
		zap.Bool("batch_enabled", s.batch != nil),
		zap.Int("interval_jobs", len(s.jobs)))
	return nil
}

// Stop cancels the loops and waits for in-flight work, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) batchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.batch.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.batch.check(ctx)
		}
	}
}

func (s *Scheduler) jobLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	s.runJob(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled job finished",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)))
}

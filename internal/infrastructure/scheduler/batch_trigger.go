package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

// BatchRunner executes one invoice batch run
type BatchRunner interface {
	Run(ctx context.Context, batchNumber int) (*fulfillment.BatchRun, error)
}

// BatchTrigger fires the two daily invoice batches at their configured
// local times. The loop ticks once a minute; a run fires when the wall
// clock has passed the slot time and that (date, batch number) pair has
// not fired yet, so a late process start still runs a missed slot the
// same day. Duplicate protection across restarts and across instances
// belongs to the batch processor itself.
type BatchTrigger struct {
	runner     BatchRunner
	runAt      map[int]int // batch number -> minute of day
	runTimeout time.Duration
	logger     *zap.Logger
	now        func() time.Time

	checkInterval time.Duration

	mu      sync.Mutex
	lastRun map[int]string // batch number -> date fired
}

// NewBatchTrigger parses the configured HH:MM slot times. Config
// validation already guarantees the format and ordering.
func NewBatchTrigger(cfg config.BatchConfig, runner BatchRunner, logger *zap.Logger) (*BatchTrigger, error) {
	first, err := minuteOfDay(cfg.FirstRunAt)
	if err != nil {
		return nil, fmt.Errorf("first run time: %w", err)
	}
	second, err := minuteOfDay(cfg.SecondRunAt)
	if err != nil {
		return nil, fmt.Errorf("second run time: %w", err)
	}
	return &BatchTrigger{
		runner:        runner,
		runAt:         map[int]int{1: first, 2: second},
		runTimeout:    cfg.RunTimeout,
		logger:        logger.Named("batch-trigger"),
		now:           time.Now,
		checkInterval: time.Minute,
		lastRun:       make(map[int]string),
	}, nil
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (t *BatchTrigger) check(ctx context.Context) {
	now := t.now()
	date := now.Format("2006-01-02")
	minute := now.Hour()*60 + now.Minute()

	for _, number := range []int{1, 2} {
		if minute < t.runAt[number] {
			continue
		}
		t.mu.Lock()
		fired := t.lastRun[number] == date
		if !fired {
			t.lastRun[number] = date
		}
		t.mu.Unlock()
		if fired {
			continue
		}
		t.fire(ctx, number)
	}
}

func (t *BatchTrigger) fire(ctx context.Context, batchNumber int) {
	t.logger.Info("triggering invoice batch", zap.Int("batch_number", batchNumber))

	runCtx := ctx
	if t.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.runTimeout)
		defer cancel()
	}

	run, err := t.runner.Run(runCtx, batchNumber)
	if err != nil {
		// ErrConflict means another run holds the batch lock. The
		// date is marked either way so the loop stops retrying.
		t.logger.Warn("invoice batch did not run",
			zap.Int("batch_number", batchNumber),
			zap.Error(err))
		return
	}
	t.logger.Info("invoice batch finished",
		zap.Int("batch_number", batchNumber),
		zap.String("batch_date", run.BatchDate),
		zap.Int("total_orders", run.TotalOrders),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed))
}

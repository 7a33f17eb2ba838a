package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []int
	errs []error
}

func (r *fakeRunner) Run(ctx context.Context, batchNumber int) (*fulfillment.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, batchNumber)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fulfillment.BatchRun{BatchNumber: batchNumber, BatchDate: "2026-08-28"}, nil
}

func (r *fakeRunner) fired() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.runs...)
}

func newTestTrigger(t *testing.T, runner *fakeRunner) *BatchTrigger {
	t.Helper()
	trigger, err := NewBatchTrigger(config.BatchConfig{
		FirstRunAt:  "10:00",
		SecondRunAt: "16:00",
		RunTimeout:  time.Minute,
	}, runner, zap.NewNop())
	require.NoError(t, err)
	return trigger
}

func at(t *testing.T, clock string) func() time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", clock)
	require.NoError(t, err)
	return func() time.Time { return ts }
}

func TestBatchTriggerFiresEachSlotOncePerDay(t *testing.T) {
	runner := &fakeRunner{}
	trigger := newTestTrigger(t, runner)
	ctx := context.Background()

	trigger.now = at(t, "2026-08-28 09:59")
	trigger.check(ctx)
	assert.Empty(t, runner.fired())

	trigger.now = at(t, "2026-08-28 10:00")
	trigger.check(ctx)
	trigger.check(ctx)
	assert.Equal(t, []int{1}, runner.fired())

	trigger.now = at(t, "2026-08-28 16:03")
	trigger.check(ctx)
	assert.Equal(t, []int{1, 2}, runner.fired())

	// Next day both slots arm again.
	trigger.now = at(t, "2026-08-29 10:00")
	trigger.check(ctx)
	assert.Equal(t, []int{1, 2, 1}, runner.fired())
}

func TestBatchTriggerRunsMissedSlotLate(t *testing.T) {
	runner := &fakeRunner{}
	trigger := newTestTrigger(t, runner)

	// Process started after both slot times have passed.
	trigger.now = at(t, "2026-08-28 17:30")
	trigger.check(context.Background())
	assert.Equal(t, []int{1, 2}, runner.fired())
}

func TestBatchTriggerDoesNotRetryFailedSlot(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("already ran")}}
	trigger := newTestTrigger(t, runner)
	ctx := context.Background()

	trigger.now = at(t, "2026-08-28 10:01")
	trigger.check(ctx)
	trigger.check(ctx)
	assert.Equal(t, []int{1}, runner.fired())
}

func TestBatchTriggerRejectsBadTime(t *testing.T) {
	_, err := NewBatchTrigger(config.BatchConfig{
		FirstRunAt:  "25:00",
		SecondRunAt: "16:00",
	}, &fakeRunner{}, zap.NewNop())
	assert.Error(t, err)
}

func TestSchedulerRunsIntervalJobs(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	ran := make(chan struct{}, 16)

	sched := NewScheduler(nil, []Job{{
		Name:     "ingestion",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	}}, zap.NewNop())

	require.NoError(t, sched.Start(context.Background()))

	// One immediate run plus at least one tick.
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("job did not run in time")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, runs, 2)
}

func TestSchedulerStartStopAreIdempotent(t *testing.T) {
	sched := NewScheduler(nil, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Stop(ctx))
	require.NoError(t, sched.Stop(ctx))
}

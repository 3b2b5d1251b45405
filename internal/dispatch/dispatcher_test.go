package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExecutor struct {
	mu     sync.Mutex
	counts map[string]int
	panics map[string]bool
	delay  time.Duration
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{counts: map[string]int{}, panics: map[string]bool{}}
}

func (executor *countingExecutor) Execute(_ context.Context, job call.CallJob) error {
	if executor.delay > 0 {
		time.Sleep(executor.delay)
	}

	executor.mu.Lock()
	executor.counts[job.ListingID]++
	shouldPanic := executor.panics[job.ListingID]
	executor.mu.Unlock()

	if shouldPanic {
		panic("boom")
	}

	return nil
}

func (executor *countingExecutor) snapshot() map[string]int {
	executor.mu.Lock()
	defer executor.mu.Unlock()

	counts := make(map[string]int, len(executor.counts))
	for listingID, count := range executor.counts {
		counts[listingID] = count
	}

	return counts
}

type recordingRecorder struct {
	mu      sync.Mutex
	jobs    []call.CallJob
	reasons []string
}

func (recorder *recordingRecorder) RecordFailure(_ context.Context, job call.CallJob, reason string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	recorder.jobs = append(recorder.jobs, job)
	recorder.reasons = append(recorder.reasons, reason)
}

type denyFirst struct {
	remaining atomic.Int64
}

func (limiter *denyFirst) TryAcquire(float64) bool {
	return limiter.remaining.Add(-1) < 0
}

type denyAll struct{}

func (denyAll) TryAcquire(float64) bool {
	return false
}

func jobs(count int) []call.CallJob {
	result := make([]call.CallJob, 0, count)
	for i := range count {
		result = append(result, call.CallJob{ListingID: fmt.Sprintf("L%d", i)})
	}

	return result
}

func waitWithTimeout(t *testing.T, dispatcher *Dispatcher) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain in time")
	}
}

func TestDispatcherExecutesEveryJobExactlyOnce(t *testing.T) {
	executor := newCountingExecutor()
	limiter := ratelimit.NewTokenBucket(2000, 5)
	dispatcher := New(limiter, executor, nil, 4, time.Millisecond, 0)

	require.NoError(t, dispatcher.Start(context.Background()))
	t.Cleanup(dispatcher.Stop)

	submitted := jobs(60)
	require.NoError(t, dispatcher.Submit(submitted...))
	waitWithTimeout(t, dispatcher)

	counts := executor.snapshot()
	require.Len(t, counts, len(submitted))

	for _, job := range submitted {
		assert.Equal(t, 1, counts[job.ListingID], job.ListingID)
	}
}

func TestDispatcherRequeuesDeniedJobs(t *testing.T) {
	executor := newCountingExecutor()
	limiter := &denyFirst{}
	limiter.remaining.Store(7)
	dispatcher := New(limiter, executor, nil, 2, time.Millisecond, 0)

	require.NoError(t, dispatcher.Submit(jobs(3)...))
	require.NoError(t, dispatcher.Start(context.Background()))
	t.Cleanup(dispatcher.Stop)

	waitWithTimeout(t, dispatcher)

	assert.Equal(t, map[string]int{"L0": 1, "L1": 1, "L2": 1}, executor.snapshot())
	assert.Equal(t, 0, dispatcher.Queue.Len())
}

func TestDispatcherSurvivesPanickingJob(t *testing.T) {
	executor := newCountingExecutor()
	executor.panics["L1"] = true
	dispatcher := New(ratelimit.NewTokenBucket(1000, 10), executor, nil, 2, time.Millisecond, 0)

	require.NoError(t, dispatcher.Start(context.Background()))
	t.Cleanup(dispatcher.Stop)

	require.NoError(t, dispatcher.Submit(jobs(5)...))
	waitWithTimeout(t, dispatcher)

	assert.Len(t, executor.snapshot(), 5)
}

func TestDispatcherGivesUpAfterMaxAdmissionAttempts(t *testing.T) {
	executor := newCountingExecutor()
	recorder := &recordingRecorder{}
	dispatcher := New(denyAll{}, executor, recorder, 1, time.Millisecond, 2)

	require.NoError(t, dispatcher.Start(context.Background()))
	t.Cleanup(dispatcher.Stop)

	require.NoError(t, dispatcher.Submit(call.CallJob{ListingID: "L9"}))
	waitWithTimeout(t, dispatcher)

	assert.Empty(t, executor.snapshot())
	require.Len(t, recorder.jobs, 1)
	assert.Equal(t, "L9", recorder.jobs[0].ListingID)
	assert.Equal(t, reasonAdmissionExhausted, recorder.reasons[0])
}

func TestDispatcherStopHandsOverUnadmittedJobs(t *testing.T) {
	executor := newCountingExecutor()
	recorder := &recordingRecorder{}
	dispatcher := New(denyAll{}, executor, recorder, 1, time.Millisecond, 0)

	require.NoError(t, dispatcher.Start(context.Background()))
	require.NoError(t, dispatcher.Submit(jobs(3)...))

	time.Sleep(20 * time.Millisecond)
	dispatcher.Stop()
	waitWithTimeout(t, dispatcher)

	assert.Empty(t, executor.snapshot())
	assert.Len(t, recorder.jobs, 3)
	require.ErrorIs(t, dispatcher.Submit(jobs(1)...), ErrDispatcherStopped)
}

func TestDispatcherSubmitRacingStopLosesNoJob(t *testing.T) {
	for _, started := range []bool{false, true} {
		t.Run(fmt.Sprintf("started=%t", started), func(t *testing.T) {
			executor := newCountingExecutor()
			recorder := &recordingRecorder{}
			dispatcher := New(ratelimit.NewTokenBucket(1000, 5), executor, recorder, 2, time.Millisecond, 0)

			if started {
				require.NoError(t, dispatcher.Start(context.Background()))
			}

			var (
				accepted  atomic.Int64
				waitGroup sync.WaitGroup
			)

			for submitter := range 8 {
				waitGroup.Add(1)

				go func() {
					defer waitGroup.Done()

					for batch := range 20 {
						batchJobs := make([]call.CallJob, 0, 5)
						for i := range 5 {
							batchJobs = append(batchJobs, call.CallJob{ListingID: fmt.Sprintf("S%d-%d-%d", submitter, batch, i)})
						}

						if dispatcher.Submit(batchJobs...) == nil {
							accepted.Add(int64(len(batchJobs)))
						}
					}
				}()
			}

			time.Sleep(time.Millisecond)
			dispatcher.Stop()
			waitGroup.Wait()
			waitWithTimeout(t, dispatcher)

			executed := 0
			for _, count := range executor.snapshot() {
				executed += count
			}

			recorder.mu.Lock()
			recorded := len(recorder.jobs)
			recorder.mu.Unlock()

			assert.Equal(t, int(accepted.Load()), executed+recorded)
			assert.Equal(t, 0, dispatcher.Queue.Len())
		})
	}
}

func TestDispatcherStopWaitsForInFlightJobs(t *testing.T) {
	executor := newCountingExecutor()
	executor.delay = 100 * time.Millisecond
	dispatcher := New(ratelimit.NewTokenBucket(1000, 10), executor, nil, 2, time.Millisecond, 0)

	require.NoError(t, dispatcher.Start(context.Background()))
	require.NoError(t, dispatcher.Submit(jobs(2)...))

	time.Sleep(30 * time.Millisecond)
	dispatcher.Stop()

	assert.Len(t, executor.snapshot(), 2)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	jobQueue := NewQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := jobQueue.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		jobQueue.Push(call.CallJob{ListingID: "L1"})
		jobQueue.Push(call.CallJob{ListingID: "L2"})
	}()

	first, err := jobQueue.Pop(context.Background())
	require.NoError(t, err)
	second, err := jobQueue.Pop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "L1", first.ListingID)
	assert.Equal(t, "L2", second.ListingID)
	assert.Equal(t, 0, jobQueue.Len())
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	reasonAdmissionExhausted = "admission attempts exhausted"
	reasonDispatcherStopped  = "dispatcher stopped before admission"
	reasonPoolRejected       = "worker pool rejected job"
)

var (
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
	ErrAlreadyStarted    = errors.New("dispatcher already started")
)

type Limiter interface {
	TryAcquire(cost float64) bool
}

type JobExecutor interface {
	Execute(ctx context.Context, job call.CallJob) error
}

// FailureRecorder receives jobs the dispatcher gives up on without executing.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, job call.CallJob, reason string)
}

// Dispatcher admits queued call jobs through a rate limiter and runs them on
// a fixed worker pool. A denied job goes to the back of the queue.
type Dispatcher struct {
	Queue                *Queue
	Limiter              Limiter
	Executor             JobExecutor
	Recorder             FailureRecorder
	Workers              int
	DenyBackoff          time.Duration
	MaxAdmissionAttempts int

	mu          sync.Mutex
	idle        *sync.Cond
	outstanding int
	stopped     bool

	pool     *ants.Pool
	inFlight sync.WaitGroup
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewDispatcher(
	cfg *config.Config,
	limiter Limiter,
	executor JobExecutor,
	recorder FailureRecorder,
) *Dispatcher {
	return New(limiter, executor, recorder, cfg.DispatchWorkers,
		time.Duration(cfg.DispatchDenyBackoffMs)*time.Millisecond,
		cfg.DispatchMaxAdmissionAttempts,
	)
}

// New builds a dispatcher. maxAdmissionAttempts of zero never gives up on a
// denied job.
func New(
	limiter Limiter,
	executor JobExecutor,
	recorder FailureRecorder,
	workers int,
	denyBackoff time.Duration,
	maxAdmissionAttempts int,
) *Dispatcher {
	dispatcher := &Dispatcher{
		Queue:                NewQueue(),
		Limiter:              limiter,
		Executor:             executor,
		Recorder:             recorder,
		Workers:              workers,
		DenyBackoff:          denyBackoff,
		MaxAdmissionAttempts: maxAdmissionAttempts,
	}
	dispatcher.idle = sync.NewCond(&dispatcher.mu)

	return dispatcher
}

// Submit enqueues jobs in order. Every job stays outstanding until it has
// been executed or given up on.
func (dispatcher *Dispatcher) Submit(jobs ...call.CallJob) error {
	dispatcher.mu.Lock()
	if dispatcher.stopped {
		dispatcher.mu.Unlock()
		return ErrDispatcherStopped
	}

	// pushed under mu so Stop drains every job counted as outstanding
	dispatcher.outstanding += len(jobs)
	for _, job := range jobs {
		dispatcher.Queue.Push(job)
	}
	dispatcher.mu.Unlock()

	prometheusOutreach.QueueDepth.Set(float64(dispatcher.Queue.Len()))

	return nil
}

func (dispatcher *Dispatcher) Start(ctx context.Context) error {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if dispatcher.stopped {
		return ErrDispatcherStopped
	}

	if dispatcher.pool != nil {
		return ErrAlreadyStarted
	}

	pool, err := ants.NewPool(dispatcher.Workers, ants.WithPreAlloc(true))
	if err != nil {
		return fmt.Errorf("create dispatcher pool: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	dispatcher.pool = pool
	dispatcher.cancel = cancel
	dispatcher.loopDone = make(chan struct{})

	logging.Logger.Info("[Start] dispatcher started",
		zap.Int("workers", dispatcher.Workers),
		zap.Duration("deny_backoff", dispatcher.DenyBackoff),
		zap.Int("max_admission_attempts", dispatcher.MaxAdmissionAttempts),
	)

	go dispatcher.admit(loopCtx, context.WithoutCancel(ctx))

	return nil
}

// Wait blocks until every submitted job has been executed or given up on.
func (dispatcher *Dispatcher) Wait() {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	for dispatcher.outstanding > 0 {
		dispatcher.idle.Wait()
	}
}

// Stop ends admission, lets in-flight jobs finish and hands jobs that were
// never admitted to the failure recorder.
func (dispatcher *Dispatcher) Stop() {
	dispatcher.mu.Lock()
	if dispatcher.stopped {
		dispatcher.mu.Unlock()
		return
	}

	dispatcher.stopped = true
	cancel := dispatcher.cancel
	loopDone := dispatcher.loopDone
	pool := dispatcher.pool
	dispatcher.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loopDone
	}

	dispatcher.inFlight.Wait()

	if pool != nil {
		pool.Release()
	}

	pending := dispatcher.Queue.Drain()
	for _, job := range pending {
		dispatcher.giveUp(context.Background(), job, reasonDispatcherStopped)
	}

	logging.Logger.Info("[Stop] dispatcher stopped", zap.Int("unadmitted_jobs", len(pending)))
}

func (dispatcher *Dispatcher) admit(loopCtx, jobCtx context.Context) {
	defer close(dispatcher.loopDone)

	for loopCtx.Err() == nil {
		job, err := dispatcher.Queue.Pop(loopCtx)
		if err != nil {
			return
		}

		prometheusOutreach.QueueDepth.Set(float64(dispatcher.Queue.Len()))

		if !dispatcher.Limiter.TryAcquire(1) {
			dispatcher.deny(loopCtx, jobCtx, job)
			continue
		}

		dispatcher.run(jobCtx, job)
	}
}

func (dispatcher *Dispatcher) deny(loopCtx, jobCtx context.Context, job call.CallJob) {
	prometheusOutreach.AdmissionDenied.Inc()

	requeued := job.Requeued()
	if dispatcher.MaxAdmissionAttempts > 0 && requeued.Attempt > dispatcher.MaxAdmissionAttempts {
		prometheusOutreach.AdmissionRejected.Inc()

		logging.Logger.Warn("[deny] giving up on job after repeated admission denials",
			zap.String("listing_id", job.ListingID),
			zap.String("search_id", job.SearchID),
			zap.Int("attempts", requeued.Attempt),
		)

		dispatcher.giveUp(jobCtx, job, reasonAdmissionExhausted)

		return
	}

	dispatcher.Queue.Push(requeued)

	logging.Logger.Debug("[deny] rate limited, job requeued",
		zap.String("listing_id", job.ListingID),
		zap.Int("attempt", requeued.Attempt),
	)

	timer := time.NewTimer(dispatcher.DenyBackoff)
	defer timer.Stop()

	select {
	case <-loopCtx.Done():
	case <-timer.C:
	}
}

func (dispatcher *Dispatcher) run(ctx context.Context, job call.CallJob) {
	dispatcher.inFlight.Add(1)

	err := dispatcher.pool.Submit(func() {
		defer dispatcher.inFlight.Done()
		defer dispatcher.finish()

		dispatcher.execute(ctx, job)
	})
	if err != nil {
		dispatcher.inFlight.Done()

		logging.Logger.Error("[run] failed to submit job to worker pool",
			zap.String("listing_id", job.ListingID),
			zap.String("error", err.Error()),
		)

		dispatcher.giveUp(ctx, job, reasonPoolRejected)
	}
}

func (dispatcher *Dispatcher) execute(ctx context.Context, job call.CallJob) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logging.Logger.Error("[execute] call job panicked",
				zap.String("listing_id", job.ListingID),
				zap.Any("panic", recovered),
			)
		}
	}()

	err := dispatcher.Executor.Execute(ctx, job)
	if err != nil {
		logging.Logger.Error("[execute] call job failed",
			zap.String("listing_id", job.ListingID),
			zap.String("search_id", job.SearchID),
			zap.String("error", err.Error()),
		)
	}
}

func (dispatcher *Dispatcher) giveUp(ctx context.Context, job call.CallJob, reason string) {
	defer dispatcher.finish()

	if dispatcher.Recorder != nil {
		dispatcher.Recorder.RecordFailure(ctx, job, reason)
	}
}

func (dispatcher *Dispatcher) finish() {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	dispatcher.outstanding--
	if dispatcher.outstanding <= 0 {
		dispatcher.outstanding = 0
		dispatcher.idle.Broadcast()
	}
}

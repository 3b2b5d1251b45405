package dispatch

import (
	"context"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"github.com/eapache/queue"
)

// Queue is an unbounded FIFO of call jobs. Pop blocks until a job is
// available or ctx is done.
type Queue struct {
	mu     sync.Mutex
	items  *queue.Queue
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		items:  queue.New(),
		signal: make(chan struct{}, 1),
	}
}

func (jobQueue *Queue) Push(job call.CallJob) {
	jobQueue.mu.Lock()
	jobQueue.items.Add(job)
	jobQueue.mu.Unlock()

	jobQueue.notify()
}

func (jobQueue *Queue) Pop(ctx context.Context) (call.CallJob, error) {
	for {
		jobQueue.mu.Lock()
		if jobQueue.items.Length() > 0 {
			job, _ := jobQueue.items.Remove().(call.CallJob)
			remaining := jobQueue.items.Length()
			jobQueue.mu.Unlock()

			// pass the wakeup on so another waiting Pop sees the rest
			if remaining > 0 {
				jobQueue.notify()
			}

			return job, nil
		}
		jobQueue.mu.Unlock()

		select {
		case <-ctx.Done():
			return call.CallJob{}, ctx.Err()
		case <-jobQueue.signal:
		}
	}
}

// Drain removes and returns every queued job.
func (jobQueue *Queue) Drain() []call.CallJob {
	jobQueue.mu.Lock()
	defer jobQueue.mu.Unlock()

	jobs := make([]call.CallJob, 0, jobQueue.items.Length())
	for jobQueue.items.Length() > 0 {
		job, _ := jobQueue.items.Remove().(call.CallJob)
		jobs = append(jobs, job)
	}

	return jobs
}

func (jobQueue *Queue) Len() int {
	jobQueue.mu.Lock()
	defer jobQueue.mu.Unlock()

	return jobQueue.items.Length()
}

func (jobQueue *Queue) notify() {
	select {
	case jobQueue.signal <- struct{}{}:
	default:
	}
}

package worker

import (
	"log/slog"
	"sync"

	"github.com/herderhub/herderhub-api/internal/metrics"
)

type task func()

// Pool runs fire-and-forget side work (audit writes) off the request path.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan task
	mu     sync.RWMutex
	closed bool
}

func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{jobs: make(chan task, 1024)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				run(job)
			}
		}()
	}
	return p
}

// Submit queues f. It reports false when the pool is stopped or the queue is
// full; the job is not queued in either case.
func (p *Pool) Submit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	metrics.WorkerQueueDepth.Inc()
	select {
	case p.jobs <- f:
		return true
	default:
		metrics.WorkerQueueDepth.Dec()
		slog.Warn("worker queue full")
		return false
	}
}

// Stop drains queued jobs and waits for them to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func run(job task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker job panicked", "panic", r)
		}
	}()
	job()
}

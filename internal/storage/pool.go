package storage

import (
	"errors"
	"sync"

	"github.com/atmx/gts-market/internal/metrics"
)

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("storage: closed")

// Pool runs storage jobs on a fixed set of workers. Jobs are never
// abandoned once dequeued.
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines sharing a queue of the given depth.
func NewPool(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan func(), queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.StorageQueueDepth.Dec()
		job()
	}
}

// submit enqueues job. It reports false when the pool is closed.
func (p *Pool) submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	metrics.StorageQueueDepth.Inc()
	p.jobs <- job
	return true
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
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

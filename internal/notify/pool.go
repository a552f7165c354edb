package notify

import "sync"

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	jobs    chan func()
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	wp := &WorkerPool{
		workers: workers,
		jobs:    make(chan func(), workers*2),
	}

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for job := range wp.jobs {
		job()
	}
}

// Submit queues a job. It returns false once the pool is closed.
func (wp *WorkerPool) Submit(job func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return false
	}

	wp.jobs <- job

	return true
}

// Wait stops accepting jobs and blocks until every queued job has run.
func (wp *WorkerPool) Wait() {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
	wp.mu.Unlock()

	wp.wg.Wait()
}

// Package workers provides the worker pool for background task processing.
// The transfer hot path hands journal writes and other post-transfer work
// to the pool so it never blocks on SQLite.
package workers

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Task is a unit of background work.
type Task struct {
	Name string
	Run  func() error
}

// Pool manages a fixed set of worker goroutines draining a bounded queue.
type Pool struct {
	tasks      chan Task
	quit       chan struct{}
	wg         sync.WaitGroup
	numWorkers int
}

// NewPool creates a pool. Non-positive numWorkers defaults to the CPU
// count; non-positive queueSize defaults to 64.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		tasks:      make(chan Task, queueSize),
		quit:       make(chan struct{}),
		numWorkers: numWorkers,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Infof("Worker pool started with %d workers", p.numWorkers)
}

// Stop signals all workers to stop and waits for in-flight tasks to
// finish. Queued tasks that have not started are discarded.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
	log.Info("Worker pool stopped")
}

// Submit queues a task. If the queue is full the task is dropped with a
// warning rather than blocking the caller.
func (p *Pool) Submit(task Task) {
	select {
	case p.tasks <- task:
	default:
		log.Warnf("Worker pool queue full, dropping task %s", task.Name)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			if err := task.Run(); err != nil {
				log.Errorf("Worker %d: task %s failed: %v", id, task.Name, err)
			}
		case <-p.quit:
			return
		}
	}
}

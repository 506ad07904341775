package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TaskKind selects the handler a task is dispatched to
type TaskKind string

// Task kinds
const (
	TaskAcceptance TaskKind = "acceptance"
	TaskArtifact   TaskKind = "artifact"
)

// Task is one queued analysis job
type Task struct {
	Kind     TaskKind
	TargetID uuid.UUID // analysis or artifact ID
	UserID   uuid.UUID
	Stage    string
	FileURLs []string
}

// Handler executes one task. The context carries the per-task timeout;
// handlers own their failure handling (flip the record to failed etc.).
type Handler func(ctx context.Context, task Task)

// Pool is a bounded worker pool for external AI calls. Concurrency caps the
// number of in-flight calls; the queue absorbs bursts.
type Pool struct {
	tasks       chan Task
	handlers    map[TaskKind]Handler
	concurrency int
	taskTimeout time.Duration
	logger      *logrus.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a worker pool with the given concurrency, queue size and
// per-task timeout
func NewPool(concurrency, queueSize int, taskTimeout time.Duration, logger *logrus.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 8
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{
		tasks:       make(chan Task, queueSize),
		handlers:    make(map[TaskKind]Handler),
		concurrency: concurrency,
		taskTimeout: taskTimeout,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (p *Pool) Register(kind TaskKind, handler Handler) {
	p.handlers[kind] = handler
}

// Start launches the workers
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.WithFields(logrus.Fields{
		"concurrency": p.concurrency,
		"queue_size":  cap(p.tasks),
	}).Info("Analysis worker pool started")
}

// Submit enqueues a task without blocking. Returns an error when the queue is
// full or the pool is stopped; callers surface that as a retriable failure.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is stopped")
	}
	p.mu.Unlock()

	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("analysis queue is full")
	}
}

// Stop drains the workers and waits up to 30s for in-flight tasks
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Analysis worker pool stopped")
	case <-time.After(30 * time.Second):
		p.logger.Warn("Analysis worker pool stop timeout")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.tasks:
			p.execute(id, task)
		}
	}
}

func (p *Pool) execute(workerID int, task Task) {
	handler, ok := p.handlers[task.Kind]
	if !ok {
		p.logger.WithField("kind", task.Kind).Error("No handler registered for task kind")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"worker": workerID,
				"kind":   task.Kind,
				"target": task.TargetID,
				"panic":  r,
			}).Error("Analysis task panicked")
		}
	}()

	start := time.Now()
	handler(ctx, task)
	p.logger.WithFields(logrus.Fields{
		"worker":   workerID,
		"kind":     task.Kind,
		"target":   task.TargetID,
		"duration": time.Since(start),
	}).Debug("Analysis task finished")
}

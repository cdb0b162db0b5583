// Package executor generalizes the teacher's ConsensusEngine Start/Stop
// shape (internal/consensus/consensus_engine.go) into a reusable
// single-threaded worker abstraction: the vote_process and
// proposal_processing executors in internal/node run on it, each running
// one loop goroutine under a cancellable context.
package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/consensuserr"
)

// Task is a unit of work queued onto an Executor's single worker goroutine.
type Task func(ctx context.Context)

// Executor runs queued Tasks one at a time, in submission order, on a
// single goroutine, matching the "named single-threaded executor" model
// spec.md's concurrency section requires for each consensus stage.
type Executor struct {
	name   string
	log    *zap.SugaredLogger
	queue  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a named Executor with the given queue depth.
func New(name string, queueDepth int, log *zap.SugaredLogger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		name:   name,
		log:    log.Named(name),
		queue:  make(chan Task, queueDepth),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutine. Calling Start twice returns
// ErrAlreadyRunning.
func (e *Executor) Start() error {
	err := consensuserr.ErrAlreadyRunning
	e.startOnce.Do(func() {
		if e.running.Load() {
			return
		}
		err = nil
		e.running.Store(true)
		e.wg.Add(1)
		go e.run()
		e.log.Debug("executor started")
	})
	return err
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.queue:
			task(e.ctx)
		}
	}
}

// Submit enqueues a task for execution. It returns ErrNotRunning if the
// executor has already been stopped, and blocks if the queue is full.
func (e *Executor) Submit(task Task) error {
	if !e.running.Load() {
		return consensuserr.ErrNotRunning
	}
	select {
	case e.queue <- task:
		return nil
	case <-e.ctx.Done():
		return consensuserr.ErrNotRunning
	}
}

// Stop cancels the worker context and waits for the in-flight task, if
// any, to return.
func (e *Executor) Stop() error {
	err := consensuserr.ErrNotRunning
	e.stopOnce.Do(func() {
		if !e.running.Load() {
			return
		}
		err = nil
		e.cancel()
		e.wg.Wait()
		e.running.Store(false)
		e.log.Debug("executor stopped")
	})
	return err
}

// Name returns the executor's configured name, used for metrics labels.
func (e *Executor) Name() string { return e.name }

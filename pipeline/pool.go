// Package pipeline orchestrates post-commit propagation: synchronous cache
// apply and cluster broadcast on the committing thread, listener dispatch and
// index updates on a bounded background worker pool.
package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/telemetry"
)

// ErrQueueFull reports a submission rejected by the reject policy.
var ErrQueueFull = errors.New("pipeline: background task queue full")

// ErrPoolStopped reports a submission after the pool stopped.
var ErrPoolStopped = errors.New("pipeline: worker pool stopped")

// Task is one unit of background work. Drop is invoked instead of Run when
// the queue-full policy discards the task, so its owner can settle the
// commit handle.
type Task struct {
	Run  func()
	Drop func(err error)
}

// Pool is a fixed-size worker pool over a bounded queue. Submission from the
// commit path never costs more than the configured queue-full policy allows.
type Pool struct {
	tasks   chan Task
	policy  cfg.QueueFullPolicy
	wg      sync.WaitGroup
	stopped atomic.Bool

	// stopMu pairs the stopped check with the channel send: Submit holds the
	// read lock across both, Stop closes the channel under the write lock,
	// so a commit-path send can never hit a closed channel.
	stopMu sync.RWMutex

	// dropMu serializes drop-oldest evictions so two producers cannot both
	// evict for one slot.
	dropMu sync.Mutex
}

// NewPool creates a pool with the given worker count, queue capacity and
// queue-full policy.
func NewPool(workers, queueSize int, policy cfg.QueueFullPolicy) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{
		tasks:  make(chan Task, queueSize),
		policy: policy,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		telemetry.BackgroundQueueDepth.Dec()
		task.Run()
	}
}

// Submit enqueues a task according to the queue-full policy. On block the
// committing thread waits for a slot; on drop_oldest the oldest pending task
// is discarded (its Drop hook runs); on reject the submission fails with
// ErrQueueFull and the task's Drop hook runs.
func (p *Pool) Submit(task Task) error {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()

	if p.stopped.Load() {
		task.drop(ErrPoolStopped)
		return ErrPoolStopped
	}

	switch p.policy {
	case cfg.QueueFullReject:
		select {
		case p.tasks <- task:
			telemetry.BackgroundQueueDepth.Inc()
			return nil
		default:
			telemetry.BackgroundTasksDropped.With(string(p.policy)).Inc()
			task.drop(ErrQueueFull)
			return ErrQueueFull
		}

	case cfg.QueueFullDropOldest:
		for {
			select {
			case p.tasks <- task:
				telemetry.BackgroundQueueDepth.Inc()
				return nil
			default:
			}

			p.dropMu.Lock()
			select {
			case old := <-p.tasks:
				telemetry.BackgroundQueueDepth.Dec()
				telemetry.BackgroundTasksDropped.With(string(p.policy)).Inc()
				log.Warn().Msg("Background queue full, dropping oldest task")
				old.drop(ErrQueueFull)
			default:
				// A worker drained the queue between the two selects.
			}
			p.dropMu.Unlock()
		}

	default: // cfg.QueueFullBlock
		// Stop cannot close the channel while the read lock is held, and
		// workers keep draining until it does, so this send always returns.
		p.tasks <- task
		telemetry.BackgroundQueueDepth.Inc()
		return nil
	}
}

// Stop closes the queue and waits for in-flight tasks to finish. Pending
// queued tasks still run; only new submissions fail.
func (p *Pool) Stop() {
	p.stopMu.Lock()
	if !p.stopped.CompareAndSwap(false, true) {
		p.stopMu.Unlock()
		return
	}
	close(p.tasks)
	p.stopMu.Unlock()
	p.wg.Wait()
}

// QueueDepth returns the number of tasks currently waiting.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

func (t Task) drop(err error) {
	if t.Drop != nil {
		t.Drop(err)
	}
}

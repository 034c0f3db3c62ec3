package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"

	future "github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/cache"
	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/change"
	"github.com/beandb/fanout/cluster"
	"github.com/beandb/fanout/index"
	"github.com/beandb/fanout/listener"
	"github.com/beandb/fanout/telemetry"
)

// State tracks a commit's progress through the pipeline.
type State int32

const (
	StateCreated State = iota
	StateCacheApplied
	StateBroadcastSent
	StateListenersQueued
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCacheApplied:
		return "cache_applied"
	case StateBroadcastSent:
		return "broadcast_sent"
	case StateListenersQueued:
		return "listeners_queued"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// CommittedTransaction is what the transaction manager hands the pipeline
// after a local transaction commits durably.
type CommittedTransaction struct {
	Set                *change.Set
	IndexMode          cfg.IndexMode // per-transaction index policy
	IndexBulkBatchSize int           // 0 = doc store default
}

// Commit is the handle returned for one pipeline run. The commit path
// returns as soon as cache apply and broadcast are done; Done resolves when
// the background listener/index task finishes. Its error is informational:
// the transaction committed durably long before, so nothing is rolled back.
type Commit struct {
	state atomic.Int32
	done  *future.Future[error]
}

// State returns the commit's current pipeline state.
func (c *Commit) State() State { return State(c.state.Load()) }

// Done returns the future for the background task.
func (c *Commit) Done() *future.Future[error] { return c.done }

// setState advances the handle. Complete is terminal: a fast worker can
// finish the background task before the committing thread records
// ListenersQueued, and that late store must not regress the handle.
func (c *Commit) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateComplete {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Stats are cumulative pipeline counters for the admin surface.
type Stats struct {
	LocalCommits    uint64 `json:"local_commits"`
	ExternalCommits uint64 `json:"external_commits"`
	TasksCompleted  uint64 `json:"tasks_completed"`
	TasksFailed     uint64 `json:"tasks_failed"`
	TasksDropped    uint64 `json:"tasks_dropped"`
	QueueDepth      int    `json:"queue_depth"`
}

// Coordinator runs the post-commit pipeline: synchronous cache apply, cheap
// synchronous cluster broadcast, then listener dispatch and index updates on
// the background pool. Failures past the commit point are logged, never
// resurfaced to the transaction's caller.
type Coordinator struct {
	serverName  string
	notifier    *cache.Notifier
	dispatcher  *listener.Dispatcher
	collector   *index.Collector
	processor   *index.Processor // nil when no index service is configured
	broadcaster *cluster.Broadcaster
	pool        *Pool

	localCommits    atomic.Uint64
	externalCommits atomic.Uint64
	tasksCompleted  atomic.Uint64
	tasksFailed     atomic.Uint64
	tasksDropped    atomic.Uint64
}

// Config wires a coordinator.
type Config struct {
	ServerName  string
	Notifier    *cache.Notifier
	Dispatcher  *listener.Dispatcher
	Collector   *index.Collector
	Processor   *index.Processor // nil disables index updates entirely
	Broadcaster *cluster.Broadcaster
	Pool        *Pool
}

// NewCoordinator creates the coordinator.
func NewCoordinator(c Config) (*Coordinator, error) {
	if c.Notifier == nil {
		return nil, fmt.Errorf("cache notifier is required")
	}
	if c.Dispatcher == nil {
		return nil, fmt.Errorf("listener dispatcher is required")
	}
	if c.Broadcaster == nil {
		return nil, fmt.Errorf("cluster broadcaster is required")
	}
	if c.Pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	if c.Processor != nil && c.Collector == nil {
		return nil, fmt.Errorf("index processor requires a collector")
	}

	return &Coordinator{
		serverName:  c.ServerName,
		notifier:    c.Notifier,
		dispatcher:  c.Dispatcher,
		collector:   c.Collector,
		processor:   c.Processor,
		broadcaster: c.Broadcaster,
		pool:        c.Pool,
	}, nil
}

// CommitLocal runs the pipeline for a locally committed transaction. Cache
// apply and broadcast complete before it returns; listener dispatch and
// index updates run on the background pool, tracked by the returned handle.
func (co *Coordinator) CommitLocal(txn CommittedTransaction) *Commit {
	co.localCommits.Add(1)
	telemetry.CommitsProcessedTotal.With("local").Inc()
	return co.run(txn.Set, txn.IndexMode, txn.IndexBulkBatchSize)
}

// CommitExternal runs the pipeline for an externally sourced modification
// (raw SQL, external tools). Bean-level listeners never fire because the set
// carries only table events, and the index mode is forced to ignore: without
// bean identity there is nothing to upsert.
func (co *Coordinator) CommitExternal(set *change.Set) *Commit {
	co.externalCommits.Add(1)
	telemetry.CommitsProcessedTotal.With("external").Inc()
	return co.run(set, cfg.IndexIgnore, 0)
}

func (co *Coordinator) run(set *change.Set, mode cfg.IndexMode, bulkBatchSize int) *Commit {
	commit := &Commit{}
	commit.setState(StateCreated)

	// The envelope is built eagerly, while the set is still exclusively
	// owned by the committing thread. Sets that arrived from the cluster are
	// never re-serialized.
	var evt *change.RemoteTransactionEvent
	if co.broadcaster.IsClustering() && !set.FromCluster() {
		evt = change.NewRemoteTransactionEvent(co.serverName, set)
	}

	// Cache apply is mandatory and synchronous: readers right after commit
	// expect coherence.
	start := time.Now()
	co.notifier.ApplyChangeSet(set)
	telemetry.CacheApplySeconds.Observe(time.Since(start).Seconds())
	commit.setState(StateCacheApplied)

	// Broadcast is commit-path work too, but it is a fire-and-forget send,
	// not a round trip.
	co.broadcaster.Broadcast(evt)
	commit.setState(StateBroadcastSent)

	promise := future.NewPromise[error]()
	commit.done = promise.Future()

	task := Task{
		Run: func() {
			err := co.runBackground(set, mode, bulkBatchSize)
			commit.setState(StateComplete)
			if err != nil {
				co.tasksFailed.Add(1)
			} else {
				co.tasksCompleted.Add(1)
			}
			promise.Set(err, nil)
		},
		Drop: func(err error) {
			co.tasksDropped.Add(1)
			commit.setState(StateComplete)
			log.Warn().Err(err).Msg("Post-commit background task dropped, listeners and index skipped")
			promise.Set(err, nil)
		},
	}

	if err := co.pool.Submit(task); err != nil {
		// Drop already settled the handle; the commit itself is unaffected.
		return commit
	}
	commit.setState(StateListenersQueued)

	return commit
}

// runBackground dispatches listeners and processes index updates for one
// committed set. Never panics; its error is logged by the caller of Done at
// most, never propagated to the original transaction.
func (co *Coordinator) runBackground(set *change.Set, mode cfg.IndexMode, bulkBatchSize int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-commit background task panic: %v", r)
			log.Error().Interface("panic", r).Msg("Post-commit background task panicked")
		}
	}()

	start := time.Now()
	defer func() {
		telemetry.BackgroundTaskSeconds.Observe(time.Since(start).Seconds())
	}()

	co.dispatcher.Dispatch(set)

	if co.processor != nil && mode != cfg.IndexIgnore {
		updates := co.collector.Collect(set, mode)
		if !updates.IsEmpty() {
			if perr := co.processor.Process(updates, bulkBatchSize); perr != nil {
				// The transaction already committed; the index service
				// reconciles on its own schedule.
				telemetry.IndexErrorsTotal.With("async").Inc()
				log.Warn().Err(perr).Msg("Post-commit index updates failed, absorbed")
			}
		}
	}

	return nil
}

// Stats returns a snapshot of the pipeline counters.
func (co *Coordinator) Stats() Stats {
	return Stats{
		LocalCommits:    co.localCommits.Load(),
		ExternalCommits: co.externalCommits.Load(),
		TasksCompleted:  co.tasksCompleted.Load(),
		TasksFailed:     co.tasksFailed.Load(),
		TasksDropped:    co.tasksDropped.Load(),
		QueueDepth:      co.pool.QueueDepth(),
	}
}

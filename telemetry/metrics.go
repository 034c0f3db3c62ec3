package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// CommitPathBuckets for synchronous commit-path work (cache apply, broadcast send)
	CommitPathBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	// BackgroundBuckets for background listener/index tasks
	BackgroundBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// BulkOpBuckets for index bulk request sizes
	BulkOpBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Commit pipeline metrics
var (
	// CommitsProcessedTotal counts committed change sets entering the pipeline by origin (local, external, cluster)
	CommitsProcessedTotal CounterVec = noopCounterVec{}

	// CacheApplySeconds measures synchronous cache apply latency
	CacheApplySeconds Histogram = NoopStat{}

	// CacheInvalidationsTotal counts identities evicted from cache buckets
	CacheInvalidationsTotal Counter = NoopStat{}

	// CacheBucketFlushesTotal counts wholesale per-type bucket flushes from table events
	CacheBucketFlushesTotal Counter = NoopStat{}

	// CacheApplyErrors counts recovered cache backend failures
	CacheApplyErrors Counter = NoopStat{}

	// BackgroundTaskSeconds measures listener+index background task duration
	BackgroundTaskSeconds Histogram = NoopStat{}

	// BackgroundTasksDropped counts tasks dropped by the queue-full policy
	BackgroundTasksDropped CounterVec = noopCounterVec{}

	// BackgroundQueueDepth tracks tasks waiting in the worker pool queue
	BackgroundQueueDepth Gauge = NoopStat{}
)

// Listener metrics
var (
	// ListenerNotificationsTotal counts listener invocations by kind (bean, table)
	ListenerNotificationsTotal CounterVec = noopCounterVec{}

	// ListenerErrorsTotal counts recovered listener failures
	ListenerErrorsTotal Counter = NoopStat{}
)

// Cluster metrics
var (
	// BroadcastsTotal counts cluster broadcasts by result (sent, skipped_empty, failed)
	BroadcastsTotal CounterVec = noopCounterVec{}

	// BroadcastMemberErrorsTotal counts per-member send failures
	BroadcastMemberErrorsTotal Counter = NoopStat{}

	// RemoteEventsTotal counts inbound remote events by result (applied, duplicate, decode_error)
	RemoteEventsTotal CounterVec = noopCounterVec{}
)

// Index metrics
var (
	// IndexOpsTotal counts collected index operations by kind (upsert, delete) and path (bulk, queued)
	IndexOpsTotal CounterVec = noopCounterVec{}

	// IndexBulkFlushSize measures ops per bulk flush
	IndexBulkFlushSize Histogram = NoopStat{}

	// IndexErrorsTotal counts index failures by path (sync, async, queue)
	IndexErrorsTotal CounterVec = noopCounterVec{}

	// IndexQueueDepth tracks queued ops awaiting out-of-band delivery
	IndexQueueDepth Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics. Call after
// InitializeTelemetry; without a registry every metric stays a no-op.
func InitMetrics() {
	CommitsProcessedTotal = NewCounterVec(
		"commits_processed_total",
		"Committed change sets entering the pipeline by origin",
		[]string{"origin"},
	)
	CacheApplySeconds = NewHistogramWithBuckets(
		"cache_apply_seconds",
		"Synchronous cache apply latency in seconds",
		CommitPathBuckets,
	)
	CacheInvalidationsTotal = NewCounter(
		"cache_invalidations_total",
		"Identities evicted from cache buckets",
	)
	CacheBucketFlushesTotal = NewCounter(
		"cache_bucket_flushes_total",
		"Wholesale per-type bucket flushes from table events",
	)
	CacheApplyErrors = NewCounter(
		"cache_apply_errors_total",
		"Recovered cache backend failures",
	)
	BackgroundTaskSeconds = NewHistogramWithBuckets(
		"background_task_seconds",
		"Listener and index background task duration in seconds",
		BackgroundBuckets,
	)
	BackgroundTasksDropped = NewCounterVec(
		"background_tasks_dropped_total",
		"Background tasks dropped by queue-full policy",
		[]string{"policy"},
	)
	BackgroundQueueDepth = NewGauge(
		"background_queue_depth",
		"Tasks waiting in the worker pool queue",
	)
	ListenerNotificationsTotal = NewCounterVec(
		"listener_notifications_total",
		"Listener invocations by kind",
		[]string{"kind"},
	)
	ListenerErrorsTotal = NewCounter(
		"listener_errors_total",
		"Recovered listener failures",
	)
	BroadcastsTotal = NewCounterVec(
		"broadcasts_total",
		"Cluster broadcasts by result",
		[]string{"result"},
	)
	BroadcastMemberErrorsTotal = NewCounter(
		"broadcast_member_errors_total",
		"Per-member broadcast send failures",
	)
	RemoteEventsTotal = NewCounterVec(
		"remote_events_total",
		"Inbound remote events by result",
		[]string{"result"},
	)
	IndexOpsTotal = NewCounterVec(
		"index_ops_total",
		"Collected index operations by kind and path",
		[]string{"kind", "path"},
	)
	IndexBulkFlushSize = NewHistogramWithBuckets(
		"index_bulk_flush_size",
		"Operations per index bulk flush",
		BulkOpBuckets,
	)
	IndexErrorsTotal = NewCounterVec(
		"index_errors_total",
		"Index failures by path",
		[]string{"path"},
	)
	IndexQueueDepth = NewGauge(
		"index_queue_depth",
		"Queued index operations awaiting out-of-band delivery",
	)
}

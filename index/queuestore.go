package index

// QueueBackedStore is a DocStore that routes every operation through the
// durable queue log for out-of-band delivery by a Worker. The daemon uses it
// when no direct doc store client is wired in: bulk ops lose nothing, they
// just arrive at the index via the sink instead of a bulk API call.
type QueueBackedStore struct {
	queue *QueueLog
}

// NewQueueBackedStore creates the store over an open queue log.
func NewQueueBackedStore(queue *QueueLog) *QueueBackedStore {
	return &QueueBackedStore{queue: queue}
}

// ApplyBulk appends the ops to the queue log. The whole batch shares one
// outcome: the log append is atomic.
func (s *QueueBackedStore) ApplyBulk(ops []Op) []OpResult {
	err := s.queue.Append(ops)
	results := make([]OpResult, len(ops))
	for i, op := range ops {
		results[i] = OpResult{Op: op, Err: err}
	}
	return results
}

// Enqueue appends the ops to the queue log.
func (s *QueueBackedStore) Enqueue(ops []Op) error {
	return s.queue.Append(ops)
}

// CreateQueryUpdate is unsupported: reindex-by-query needs a direct store.
func (s *QueueBackedStore) CreateQueryUpdate(beanType string, bulkBatchSize int) (QueryUpdate, error) {
	return nil, ErrNotSupported
}

// GetDocSource is unsupported: the queue is write-only.
func (s *QueueBackedStore) GetDocSource(beanType string, id interface{}) (interface{}, error) {
	return nil, ErrNotSupported
}

package index

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/telemetry"
)

// Processor delivers collected updates: bulk ops go to the doc store's bulk
// API in FIFO batches, queued ops into the durable queue log (or the store's
// own queue when no log is configured).
type Processor struct {
	store DocStore
	queue *QueueLog // optional; nil routes queued ops to store.Enqueue
}

// NewProcessor creates a processor. queue may be nil.
func NewProcessor(store DocStore, queue *QueueLog) *Processor {
	return &Processor{store: store, queue: queue}
}

// Process delivers the batch. bulkBatchSize bounds each bulk request; every
// time that many ops accumulate a flush goes out, in submission order. Zero
// or negative means a single request, leaving batching to the doc store.
//
// The returned error is for the synchronous index path; the async post-commit
// caller logs and absorbs it, since the transaction has already committed.
func (p *Processor) Process(u *Updates, bulkBatchSize int) error {
	if u == nil || u.IsEmpty() {
		return nil
	}

	var firstErr error
	failed := 0

	for start := 0; start < len(u.BulkOps); start += batchLen(bulkBatchSize, len(u.BulkOps)) {
		end := start + batchLen(bulkBatchSize, len(u.BulkOps))
		if end > len(u.BulkOps) {
			end = len(u.BulkOps)
		}
		batch := u.BulkOps[start:end]
		telemetry.IndexBulkFlushSize.Observe(float64(len(batch)))

		for _, res := range p.store.ApplyBulk(batch) {
			if res.Err == nil {
				continue
			}
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			log.Warn().
				Err(res.Err).
				Str("bean_type", res.Op.BeanType).
				Str("kind", res.Op.Kind.String()).
				Interface("id", res.Op.ID).
				Msg("Index bulk op failed")
		}
	}

	if len(u.QueuedOps) > 0 {
		if err := p.enqueue(u.QueuedOps); err != nil {
			telemetry.IndexErrorsTotal.With("queue").Inc()
			if firstErr == nil {
				firstErr = err
			}
			failed += len(u.QueuedOps)
			log.Warn().Err(err).Int("ops", len(u.QueuedOps)).Msg("Failed to enqueue index ops")
		}
	}

	if firstErr != nil {
		return fmt.Errorf("%d index ops failed: %w", failed, firstErr)
	}
	return nil
}

func (p *Processor) enqueue(ops []Op) error {
	if p.queue != nil {
		return p.queue.Append(ops)
	}
	return p.store.Enqueue(ops)
}

func batchLen(bulkBatchSize, total int) int {
	if bulkBatchSize < 1 || bulkBatchSize > total {
		return total
	}
	return bulkBatchSize
}

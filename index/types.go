// Package index translates committed change sets into document index
// operations and delivers them: bulk ops to the doc store's bulk API on the
// background task, queued ops through a durable log to an out-of-band sink.
package index

import (
	"errors"
	"fmt"
)

// OpKind identifies the type of an index operation.
type OpKind uint8

const (
	OpUpsert OpKind = iota
	OpDelete
)

// String returns the lowercase name of the op kind.
func (k OpKind) String() string {
	if k == OpUpsert {
		return "upsert"
	}
	return "delete"
}

// Op is a single index-store operation for one document.
type Op struct {
	Kind     OpKind      `msgpack:"kind"`
	BeanType string      `msgpack:"type"`
	ID       interface{} `msgpack:"id"`
	Doc      interface{} `msgpack:"doc,omitempty"` // bean snapshot, upserts only
	SeqNum   uint64      `msgpack:"seq"`           // assigned by the queue log
}

// Updates is the per-commit batch of index operations, partitioned by
// delivery path. Created at collect time, consumed immediately, discarded.
type Updates struct {
	BulkOps   []Op // applied via the doc store bulk API
	QueuedOps []Op // handed off for asynchronous out-of-band delivery
}

// IsEmpty reports whether no operation was collected.
func (u *Updates) IsEmpty() bool {
	return len(u.BulkOps) == 0 && len(u.QueuedOps) == 0
}

// OpResult is the per-op outcome of a bulk apply.
type OpResult struct {
	Op  Op
	Err error
}

// QueryUpdate streams documents into the index for a reindex-by-query run.
type QueryUpdate interface {
	// Store buffers one document; the implementation flushes internally when
	// its batch fills.
	Store(id interface{}, bean interface{}) error
	// Flush sends any buffered documents.
	Flush() error
}

// DocStore is the external index service collaborator.
type DocStore interface {
	// ApplyBulk sends ops to the store's bulk API, returning a per-op outcome.
	ApplyBulk(ops []Op) []OpResult
	// Enqueue hands ops to the store's own queueing mechanism.
	Enqueue(ops []Op) error
	// CreateQueryUpdate starts a reindex-by-query run for a bean type.
	// bulkBatchSize 0 means the store's own batching default.
	CreateQueryUpdate(beanType string, bulkBatchSize int) (QueryUpdate, error)
	// GetDocSource fetches one document by id. Implementations without a
	// point-lookup protocol return ErrNotSupported.
	GetDocSource(beanType string, id interface{}) (interface{}, error)
}

// ErrNotFound reports that a document does not exist in the index.
var ErrNotFound = errors.New("index: document not found")

// ErrNotSupported reports that the doc store implements no point lookup.
var ErrNotSupported = errors.New("index: operation not supported by doc store")

// IOError wraps a doc store I/O failure on the synchronous index path.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("index i/o failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

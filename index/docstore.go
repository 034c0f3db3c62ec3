package index

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/telemetry"
)

// QueryEachFunc streams beans matching some query, invoking consume once per
// bean. Query construction and execution belong to the ORM; the document
// store only needs the resulting stream.
type QueryEachFunc func(consume func(id interface{}, bean interface{}) error) error

// DocumentStore is the direct (non-transactional) surface of the index
// service. Unlike the post-commit path, failures here are visible to the
// caller, wrapped as IOError.
type DocumentStore struct {
	store DocStore
}

// NewDocumentStore creates the facade over a doc store collaborator.
func NewDocumentStore(store DocStore) *DocumentStore {
	return &DocumentStore{store: store}
}

// IndexByQuery streams every bean produced by findEach into the index.
// bulkBatchSize 0 uses the doc store's own batching default. Any underlying
// failure is returned as an IOError wrapping the cause.
func (d *DocumentStore) IndexByQuery(beanType string, bulkBatchSize int, findEach QueryEachFunc) error {
	update, err := d.store.CreateQueryUpdate(beanType, bulkBatchSize)
	if err != nil {
		telemetry.IndexErrorsTotal.With("sync").Inc()
		return &IOError{Op: "create query update", Err: err}
	}

	err = findEach(func(id interface{}, bean interface{}) error {
		return update.Store(id, bean)
	})
	if err != nil {
		telemetry.IndexErrorsTotal.With("sync").Inc()
		return &IOError{Op: "query update store", Err: err}
	}

	if err := update.Flush(); err != nil {
		telemetry.IndexErrorsTotal.With("sync").Inc()
		return &IOError{Op: "query update flush", Err: err}
	}

	log.Debug().Str("bean_type", beanType).Msg("Index by query complete")
	return nil
}

// GetByID fetches one document. Returns ErrNotFound when the document does
// not exist and ErrNotSupported when the doc store implements no point
// lookup; other failures come back as IOError.
func (d *DocumentStore) GetByID(beanType string, id interface{}) (interface{}, error) {
	doc, err := d.store.GetDocSource(beanType, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotSupported) {
			return nil, err
		}
		telemetry.IndexErrorsTotal.With("sync").Inc()
		return nil, &IOError{Op: "get doc source", Err: err}
	}
	return doc, nil
}

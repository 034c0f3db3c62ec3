package index

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryDocStore supports reindex-by-query and point lookups.
type queryDocStore struct {
	fakeDocStore
	stored     []interface{}
	flushes    int
	createErr  error
	storeErr   error
	flushErr   error
	getErr     error
	getDoc     interface{}
}

type fakeQueryUpdate struct {
	store *queryDocStore
}

func (u *fakeQueryUpdate) Store(id interface{}, bean interface{}) error {
	if u.store.storeErr != nil {
		return u.store.storeErr
	}
	u.store.stored = append(u.store.stored, id)
	return nil
}

func (u *fakeQueryUpdate) Flush() error {
	if u.store.flushErr != nil {
		return u.store.flushErr
	}
	u.store.flushes++
	return nil
}

func (q *queryDocStore) CreateQueryUpdate(beanType string, bulkBatchSize int) (QueryUpdate, error) {
	if q.createErr != nil {
		return nil, q.createErr
	}
	return &fakeQueryUpdate{store: q}, nil
}

func (q *queryDocStore) GetDocSource(beanType string, id interface{}) (interface{}, error) {
	if q.getErr != nil {
		return nil, q.getErr
	}
	return q.getDoc, nil
}

func streamOf(ids ...interface{}) QueryEachFunc {
	return func(consume func(id interface{}, bean interface{}) error) error {
		for _, id := range ids {
			if err := consume(id, map[string]interface{}{"id": id}); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestIndexByQuery(t *testing.T) {
	store := &queryDocStore{}
	d := NewDocumentStore(store)

	err := d.IndexByQuery("customer", 0, streamOf(int64(1), int64(2), int64(3)))
	require.NoError(t, err)
	assert.Len(t, store.stored, 3)
	assert.Equal(t, 1, store.flushes)
}

func TestIndexByQueryWrapsFailures(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name  string
		setup func(*queryDocStore)
	}{
		{"create fails", func(s *queryDocStore) { s.createErr = cause }},
		{"store fails", func(s *queryDocStore) { s.storeErr = cause }},
		{"flush fails", func(s *queryDocStore) { s.flushErr = cause }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &queryDocStore{}
			tt.setup(store)
			err := NewDocumentStore(store).IndexByQuery("customer", 0, streamOf(int64(1)))

			var ioErr *IOError
			require.ErrorAs(t, err, &ioErr)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestGetByID(t *testing.T) {
	store := &queryDocStore{getDoc: map[string]interface{}{"name": "a"}}
	d := NewDocumentStore(store)

	doc, err := d.GetByID("customer", int64(1))
	require.NoError(t, err)
	assert.NotNil(t, doc)

	// Sentinels pass through unwrapped.
	store.getErr = ErrNotFound
	_, err = d.GetByID("customer", int64(1))
	assert.ErrorIs(t, err, ErrNotFound)

	store.getErr = ErrNotSupported
	_, err = d.GetByID("customer", int64(1))
	assert.ErrorIs(t, err, ErrNotSupported)

	// Everything else is an I/O failure.
	store.getErr = fmt.Errorf("timeout")
	_, err = d.GetByID("customer", int64(1))
	var ioErr *IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestQueueBackedStore(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	defer ql.Close()

	s := NewQueueBackedStore(ql)

	results := s.ApplyBulk(makeOps(2))
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
	}

	require.NoError(t, s.Enqueue(makeOps(1)))

	read, err := ql.ReadFrom(0, 10)
	require.NoError(t, err)
	assert.Len(t, read, 3)

	_, err = s.CreateQueryUpdate("customer", 0)
	assert.True(t, errors.Is(err, ErrNotSupported))
	_, err = s.GetDocSource("customer", int64(1))
	assert.True(t, errors.Is(err, ErrNotSupported))
}

package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beandb/fanout/change"
)

// capturingBackend records invalidation calls in arrival order.
type capturingBackend struct {
	mu    sync.Mutex
	calls []backendCall
	panic bool
}

type backendCall struct {
	op       string // "invalidate" or "invalidateAll"
	beanType string
	ids      []interface{}
}

func (c *capturingBackend) Invalidate(beanType string, ids []interface{}) {
	if c.panic {
		panic("backend blew up")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, backendCall{op: "invalidate", beanType: beanType, ids: ids})
}

func (c *capturingBackend) InvalidateAll(beanType string) {
	if c.panic {
		panic("backend blew up")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, backendCall{op: "invalidateAll", beanType: beanType})
}

func (c *capturingBackend) recorded() []backendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]backendCall, len(c.calls))
	copy(out, c.calls)
	return out
}

func TestNotifierBeanChanges(t *testing.T) {
	backend := &capturingBackend{}
	n := NewNotifier(backend, NewTableMap())

	b := change.NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddUpdate("customer", int64(2), []string{"name"}, nil)
	b.AddDelete("customer", int64(3))
	b.AddDeleteByID("customer", int64(4))
	n.ApplyChangeSet(b.Seal())

	calls := backend.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "invalidate", calls[0].op)
	assert.Equal(t, "customer", calls[0].beanType)
	assert.ElementsMatch(t, []interface{}{int64(1), int64(2), int64(3), int64(4)}, calls[0].ids)
}

func TestNotifierTableEventsBeforeBeanEvents(t *testing.T) {
	backend := &capturingBackend{}
	tables := NewTableMap()
	tables.Register("o_customer", "customer", "customerSummary")
	n := NewNotifier(backend, tables)

	b := change.NewBuilder()
	b.AddUpdate("order", int64(1), nil, nil)
	b.AddTableEvent("O_CUSTOMER", 0, 2, 0) // matched case-insensitively
	n.ApplyChangeSet(b.Seal())

	calls := backend.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, backendCall{op: "invalidateAll", beanType: "customer"}, calls[0])
	assert.Equal(t, backendCall{op: "invalidateAll", beanType: "customerSummary"}, calls[1])
	assert.Equal(t, "invalidate", calls[2].op)
	assert.Equal(t, "order", calls[2].beanType)
}

func TestNotifierUnmappedTableIgnored(t *testing.T) {
	backend := &capturingBackend{}
	n := NewNotifier(backend, NewTableMap())

	b := change.NewBuilder()
	b.AddTableEvent("not_mapped", 1, 0, 0)
	n.ApplyChangeSet(b.Seal())

	assert.Empty(t, backend.recorded())
}

func TestNotifierEmptySet(t *testing.T) {
	backend := &capturingBackend{}
	n := NewNotifier(backend, NewTableMap())

	n.ApplyChangeSet(nil)
	n.ApplyChangeSet(change.NewBuilder().Seal())

	assert.Empty(t, backend.recorded())
}

func TestNotifierAbsorbsBackendPanic(t *testing.T) {
	backend := &capturingBackend{panic: true}
	tables := NewTableMap()
	tables.Register("o_customer", "customer")
	n := NewNotifier(backend, tables)

	b := change.NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddTableEvent("o_customer", 1, 0, 0)

	assert.NotPanics(t, func() { n.ApplyChangeSet(b.Seal()) })
}

func TestNotifierAgainstRealStore(t *testing.T) {
	store := NewStore(16)
	store.Put("customer", int64(1), "alice")
	store.Put("customer", int64(2), "bob")
	store.Put("orderSummary", int64(1), "sum")

	tables := NewTableMap()
	tables.Register("o_order", "orderSummary")
	n := NewNotifier(store, tables)

	b := change.NewBuilder()
	b.AddUpdate("customer", int64(1), []string{"name"}, nil)
	b.AddTableEvent("o_order", 0, 1, 0)
	n.ApplyChangeSet(b.Seal())

	_, ok := store.Get("customer", int64(1))
	assert.False(t, ok)
	_, ok = store.Get("customer", int64(2))
	assert.True(t, ok)
	assert.Equal(t, 0, store.Len("orderSummary"))
}

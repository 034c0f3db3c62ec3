package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteTransactionEvent(t *testing.T) {
	b := NewBuilder()
	b.AddInsert("customer", int64(1), map[string]interface{}{"name": "a"})
	b.AddUpdate("customer", int64(2), []string{"name"}, nil)
	b.AddTableEvent("o_raw", 0, 5, 0)
	b.AddDeleteByID("order", int64(7))
	set := b.Seal()

	evt := NewRemoteTransactionEvent("node-a", set)

	assert.Equal(t, "node-a", evt.OriginServer)
	assert.False(t, evt.IsEmpty())
	require.Len(t, evt.BeanIDs, 1)
	assert.Equal(t, "customer", evt.BeanIDs[0].BeanType)
	require.Len(t, evt.TableEvents, 1)
	assert.Equal(t, []interface{}{int64(7)}, evt.DeleteByID["order"])
}

func TestRemoteTransactionEventIsEmpty(t *testing.T) {
	evt := NewRemoteTransactionEvent("node-a", NewBuilder().Seal())
	assert.True(t, evt.IsEmpty())
}

func TestRemoteTransactionEventToChangeSet(t *testing.T) {
	b := NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddUpdate("customer", int64(2), []string{"name"}, nil)
	b.AddDelete("order", int64(3))
	b.AddTableEvent("o_raw", 1, 0, 0)
	b.AddDeleteByID("product", int64(4))
	evt := NewRemoteTransactionEvent("node-a", b.Seal())

	set := evt.ToChangeSet()

	// Cluster-sourced sets feed caches only.
	assert.True(t, set.FromCluster())

	require.Len(t, set.Inserted(), 1)
	assert.Equal(t, int64(1), set.Inserted()[0].ID)
	require.Len(t, set.Updated(), 1)
	// Changed property names never cross the wire.
	assert.Nil(t, set.Updated()[0].Props)
	require.Len(t, set.Deleted(), 1)
	assert.Equal(t, "order", set.Deleted()[0].BeanType)
	require.Len(t, set.TableEvents(), 1)
	assert.Equal(t, []interface{}{int64(4)}, set.DeleteByID()["product"])
}

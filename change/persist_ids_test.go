package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPersistIDMap(t *testing.T) {
	b := NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddInsert("customer", int64(2), nil)
	b.AddUpdate("customer", int64(3), []string{"name"}, nil)
	b.AddDelete("order", int64(9))
	set := b.Seal()

	m := BuildPersistIDMap(set)
	require.Len(t, m, 2)

	cust := m["customer"]
	require.NotNil(t, cust)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, cust.InsertIDs)
	assert.Equal(t, []interface{}{int64(3)}, cust.UpdateIDs)
	assert.Empty(t, cust.DeleteIDs)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, cust.AllIDs())
	assert.False(t, cust.IsEmpty())

	ord := m["order"]
	require.NotNil(t, ord)
	assert.Equal(t, []interface{}{int64(9)}, ord.DeleteIDs)
}

func TestBuildPersistIDMapEveryIdentityExactlyOnce(t *testing.T) {
	b := NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddUpdate("order", int64(2), nil, nil)
	b.AddDelete("product", int64(3))
	m := BuildPersistIDMap(b.Seal())

	total := 0
	for _, p := range m {
		total += len(p.AllIDs())
	}
	assert.Equal(t, 3, total)
}

func TestBuildPersistIDMapNoBeanChanges(t *testing.T) {
	b := NewBuilder()
	b.AddTableEvent("o_customer", 1, 0, 0)
	b.AddDeleteByID("order", int64(1))

	// Table events and delete-by-id don't contribute bean identities.
	assert.Nil(t, BuildPersistIDMap(b.Seal()))
}

func TestPersistIDMapValuesSorted(t *testing.T) {
	b := NewBuilder()
	b.AddInsert("zebra", 1, nil)
	b.AddInsert("alpha", 2, nil)
	b.AddInsert("mid", 3, nil)

	values := BuildPersistIDMap(b.Seal()).Values()
	require.Len(t, values, 3)
	assert.Equal(t, "alpha", values[0].BeanType)
	assert.Equal(t, "mid", values[1].BeanType)
	assert.Equal(t, "zebra", values[2].BeanType)
}

package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenQueueLog(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, ql)
	defer ql.Close()

	cursor, err := ql.GetCursor("worker-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)
}

func TestQueueLogAppendAndRead(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	defer ql.Close()

	ops := []Op{
		{Kind: OpUpsert, BeanType: "customer", ID: int64(1), Doc: map[string]interface{}{"name": "a"}},
		{Kind: OpDelete, BeanType: "customer", ID: int64(2)},
	}
	require.NoError(t, ql.Append(ops))

	// Sequence numbers assigned in order, starting at 1.
	assert.Equal(t, uint64(1), ops[0].SeqNum)
	assert.Equal(t, uint64(2), ops[1].SeqNum)

	read, err := ql.ReadFrom(0, 10)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, OpUpsert, read[0].Kind)
	assert.Equal(t, "customer", read[0].BeanType)
	assert.EqualValues(t, 1, read[0].ID)
	assert.Equal(t, OpDelete, read[1].Kind)

	// Reading past a cursor skips delivered ops.
	read, err = ql.ReadFrom(1, 10)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, uint64(2), read[0].SeqNum)
}

func TestQueueLogReadLimit(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	defer ql.Close()

	require.NoError(t, ql.Append(makeOps(10)))

	read, err := ql.ReadFrom(0, 4)
	require.NoError(t, err)
	assert.Len(t, read, 4)
}

func TestQueueLogCursorPersistence(t *testing.T) {
	dir := t.TempDir()

	ql, err := OpenQueueLog(dir)
	require.NoError(t, err)
	require.NoError(t, ql.Append(makeOps(3)))
	require.NoError(t, ql.AdvanceCursor("worker-1", 2))
	require.NoError(t, ql.Close())

	// Cursor and sequence survive a restart.
	ql, err = OpenQueueLog(dir)
	require.NoError(t, err)
	defer ql.Close()

	cursor, err := ql.GetCursor("worker-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cursor)

	ops := makeOps(1)
	require.NoError(t, ql.Append(ops))
	assert.Equal(t, uint64(4), ops[0].SeqNum)
}

func TestQueueLogClosed(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ql.Close())

	assert.Error(t, ql.Append(makeOps(1)))
	_, err = ql.ReadFrom(0, 10)
	assert.Error(t, err)
	assert.Error(t, ql.AdvanceCursor("worker-1", 1))
	assert.Error(t, ql.Close())
}

func TestQueueLogAppendEmptyIsNoop(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	defer ql.Close()

	require.NoError(t, ql.Append(nil))

	read, err := ql.ReadFrom(0, 10)
	require.NoError(t, err)
	assert.Empty(t, read)
}

func TestQueueLogConcurrentAppend(t *testing.T) {
	ql, err := OpenQueueLog(t.TempDir())
	require.NoError(t, err)
	defer ql.Close()

	const goroutines = 4
	const appendsPerGoroutine = 50

	start := make(chan struct{})
	var wg sync.WaitGroup
	var seqs [goroutines][]uint64

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < appendsPerGoroutine; i++ {
				ops := makeOps(1)
				assert.NoError(t, ql.Append(ops))
				seqs[g] = append(seqs[g], ops[0].SeqNum)
			}
		}(g)
	}

	close(start)
	wg.Wait()

	// Every append got its own sequence number and every entry survived.
	seen := make(map[uint64]bool)
	for g := range seqs {
		for _, seq := range seqs[g] {
			assert.False(t, seen[seq], "sequence number %d assigned twice", seq)
			seen[seq] = true
		}
	}
	assert.Len(t, seen, goroutines*appendsPerGoroutine)

	read, err := ql.ReadFrom(0, goroutines*appendsPerGoroutine+1)
	require.NoError(t, err)
	assert.Len(t, read, goroutines*appendsPerGoroutine)
}

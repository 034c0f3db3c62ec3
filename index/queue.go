package index

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/encoding"
	"github.com/beandb/fanout/telemetry"
)

// Key prefixes for Pebble storage
const (
	prefixIdxLog    = "/idxlog/"    // /idxlog/{16-digit-zero-padded-seq}
	prefixIdxCursor = "/idxcursor/" // /idxcursor/{consumerName}
	prefixIdxSeq    = "/idxseq"     // /idxseq -> uint64 (last assigned sequence)
)

const (
	defaultReadLimit    = 100
	cleanupIntervalMask = 0x7F // cleanup every 128 sequences
)

// QueueLog is a Pebble-backed append-only log for queued index operations.
// The commit path appends; delivery workers read from a per-consumer cursor
// and advance it after publishing, giving at-least-once delivery across
// restarts. Ops durably queued here survive a crash between commit and
// delivery.
type QueueLog struct {
	db   *pebble.DB
	path string

	// In-memory cursor map for fast lookups
	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	// Last assigned sequence number. appendMu serializes the reserve-and-
	// commit pair in Append; concurrent background tasks append here.
	lastSeq  atomic.Uint64
	appendMu sync.Mutex

	// Cleanup tracking
	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	closed atomic.Bool
}

// OpenQueueLog creates or opens the queue log under dataDir.
func OpenQueueLog(dataDir string) (*QueueLog, error) {
	logPath := filepath.Join(dataDir, "index_queue")

	opts := &pebble.Options{
		// The workload is small sequential writes plus range deletes; default
		// LSM tuning is fine, WAL stays on for durability.
		DisableWAL: false,
	}

	db, err := pebble.Open(logPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index queue log at %s: %w", logPath, err)
	}

	ql := &QueueLog{
		db:      db,
		path:    logPath,
		cursors: make(map[string]uint64),
	}

	if err := ql.loadLastSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence number: %w", err)
	}

	if err := ql.loadCursors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return ql, nil
}

func (ql *QueueLog) loadLastSeq() error {
	val, closer, err := ql.db.Get([]byte(prefixIdxSeq))
	if err == pebble.ErrNotFound {
		ql.lastSeq.Store(0)
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid sequence value length: %d", len(val))
	}

	ql.lastSeq.Store(binary.LittleEndian.Uint64(val))
	return nil
}

func (ql *QueueLog) loadCursors() error {
	prefix := []byte(prefixIdxCursor)
	iter, err := ql.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	count := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefixIdxCursor):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor data for consumer %s: invalid length %d", name, len(val))
		}

		ql.cursors[name] = binary.LittleEndian.Uint64(val)
		count++
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if count > 0 {
		log.Info().Int("cursors", count).Msg("Loaded index queue cursors")
	}

	return nil
}

// Append adds ops to the log and assigns sequence numbers. Modifies the
// input slice by setting SeqNum on each op. Safe for concurrent callers.
func (ql *QueueLog) Append(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	if ql.closed.Load() {
		return fmt.Errorf("index queue log is closed")
	}

	ql.appendMu.Lock()
	defer ql.appendMu.Unlock()

	localSeq := ql.lastSeq.Load()

	batch := ql.db.NewBatch()
	defer batch.Close()

	for i := range ops {
		localSeq++
		ops[i].SeqNum = localSeq

		val, err := encoding.Marshal(&ops[i])
		if err != nil {
			return fmt.Errorf("failed to marshal index op: %w", err)
		}

		if err := batch.Set([]byte(formatIdxLogKey(localSeq)), val, pebble.Sync); err != nil {
			return fmt.Errorf("failed to write index op: %w", err)
		}
	}

	seqBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBuf, localSeq)
	if err := batch.Set([]byte(prefixIdxSeq), seqBuf, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	ql.lastSeq.Store(localSeq)
	telemetry.IndexQueueDepth.Add(float64(len(ops)))

	return nil
}

// ReadFrom reads ops after the given cursor, up to limit.
func (ql *QueueLog) ReadFrom(cursor uint64, limit int) ([]Op, error) {
	if ql.closed.Load() {
		return nil, fmt.Errorf("index queue log is closed")
	}

	if limit <= 0 {
		limit = defaultReadLimit
	}

	startKey := formatIdxLogKey(cursor + 1)
	prefix := []byte(prefixIdxLog)

	iter, err := ql.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(startKey),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	ops := make([]Op, 0, limit)
	for iter.SeekGE([]byte(startKey)); iter.Valid() && len(ops) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var op Op
		if err := encoding.Unmarshal(val, &op); err != nil {
			// Log and skip corrupted entries
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Failed to unmarshal index op")
			continue
		}

		ops = append(ops, op)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return ops, nil
}

// GetCursor returns the current cursor for a consumer (0 for a new one).
func (ql *QueueLog) GetCursor(consumer string) (uint64, error) {
	if ql.closed.Load() {
		return 0, fmt.Errorf("index queue log is closed")
	}

	ql.cursorsMu.RLock()
	cursor, exists := ql.cursors[consumer]
	ql.cursorsMu.RUnlock()

	if exists {
		return cursor, nil
	}

	val, closer, err := ql.db.Get([]byte(prefixIdxCursor + consumer))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, fmt.Errorf("invalid cursor value length: %d", len(val))
	}

	cursor = binary.LittleEndian.Uint64(val)

	ql.cursorsMu.Lock()
	// Recheck after acquiring write lock
	if existing, exists := ql.cursors[consumer]; exists {
		ql.cursorsMu.Unlock()
		return existing, nil
	}
	ql.cursors[consumer] = cursor
	ql.cursorsMu.Unlock()

	return cursor, nil
}

// AdvanceCursor updates a consumer's cursor and triggers cleanup periodically.
func (ql *QueueLog) AdvanceCursor(consumer string, newSeq uint64) error {
	if ql.closed.Load() {
		return fmt.Errorf("index queue log is closed")
	}

	ql.cursorsMu.Lock()
	ql.cursors[consumer] = newSeq
	ql.cursorsMu.Unlock()

	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, newSeq)

	if err := ql.db.Set([]byte(prefixIdxCursor+consumer), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	telemetry.IndexQueueDepth.Dec()

	// Trigger cleanup every 128 sequence numbers; only one cleanup at a time.
	if newSeq&cleanupIntervalMask == 0 {
		if ql.cleanupRunning.CompareAndSwap(false, true) {
			ql.cleanupWg.Add(1)
			go ql.cleanupAsync()
		}
	}

	return nil
}

// cleanup deletes log entries below the minimum cursor across all consumers.
func (ql *QueueLog) cleanup() {
	ql.cleanupMu.Lock()
	defer ql.cleanupMu.Unlock()

	if ql.closed.Load() {
		return
	}

	ql.cursorsMu.RLock()
	if len(ql.cursors) == 0 {
		ql.cursorsMu.RUnlock()
		return
	}

	minCursor := uint64(^uint64(0))
	for _, cursor := range ql.cursors {
		if cursor < minCursor {
			minCursor = cursor
		}
	}
	ql.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	startKey := []byte(prefixIdxLog)
	endKey := []byte(formatIdxLogKey(minCursor))

	if err := ql.db.DeleteRange(startKey, endKey, pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Failed to cleanup index queue log")
		return
	}

	log.Debug().Uint64("min_cursor", minCursor).Msg("Cleaned up index queue log entries")
}

func (ql *QueueLog) cleanupAsync() {
	defer ql.cleanupWg.Done()
	defer ql.cleanupRunning.Store(false)
	ql.cleanup()
}

// Close closes the Pebble database and waits for in-flight cleanup.
func (ql *QueueLog) Close() error {
	if !ql.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("index queue log already closed")
	}

	ql.cleanupWg.Wait()

	if ql.db != nil {
		return ql.db.Close()
	}
	return nil
}

// formatIdxLogKey formats a sequence number as a 16-digit zero-padded key.
func formatIdxLogKey(seq uint64) string {
	return fmt.Sprintf("%s%016x", prefixIdxLog, seq)
}

// prefixUpperBound returns the upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil // Prefix is all 0xff
}

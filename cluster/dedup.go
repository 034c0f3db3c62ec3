package cluster

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/linvon/cuckoo-filter"
)

const (
	// capacity = bucketSize × numBuckets = 4 × 16384 = 64K event ids,
	// far beyond any realistic redelivery window
	cuckooBucketSize      = 4
	cuckooFingerprintSize = 32 // 32-bit fingerprint keeps false positives negligible
	cuckooNumBuckets      = 16384
)

// dedupFilter remembers recently seen remote event ids so an envelope
// redelivered by the transport is applied to the cache exactly once. A false
// positive drops a genuinely new event, so the fingerprint is sized to make
// that effectively impossible within the window.
type dedupFilter struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
	count  int
	limit  int
}

func newDedupFilter() *dedupFilter {
	return &dedupFilter{
		filter: cuckoo.NewFilter(cuckooBucketSize, cuckooFingerprintSize,
			cuckooNumBuckets, cuckoo.TableTypePacked),
		limit: cuckooBucketSize * cuckooNumBuckets,
	}
}

// seen records the event id, reporting whether it was already present.
func (d *dedupFilter) seen(eventID uint64) bool {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, eventID)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.Contain(buf) {
		return true
	}

	// Reset rather than overfill; losing the window only risks one duplicate
	// cache invalidation, which is harmless.
	if d.count >= d.limit {
		d.filter = cuckoo.NewFilter(cuckooBucketSize, cuckooFingerprintSize,
			cuckooNumBuckets, cuckoo.TableTypePacked)
		d.count = 0
	}

	d.filter.Add(buf)
	d.count++
	return false
}

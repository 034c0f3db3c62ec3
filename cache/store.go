// Package cache provides the in-process bean cache and the notifier that
// keeps it coherent after commits, whether those commits happened locally or
// on another cluster member.
package cache

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Backend is the cache contract the notifier drives. Implementations must be
// safe for concurrent use from many committing threads and the inbound
// cluster receiver.
type Backend interface {
	// Invalidate evicts the given identities from the bean type's bucket.
	Invalidate(beanType string, ids []interface{})
	// InvalidateAll evicts every entry for the bean type.
	InvalidateAll(beanType string)
}

// Store is the default in-process backend: one LRU bucket per bean type,
// held in a lock-free map so unrelated types never contend on a shared lock.
type Store struct {
	buckets    *xsync.MapOf[string, *lru.Cache[interface{}, interface{}]]
	bucketSize int
}

// NewStore creates a store whose per-type buckets hold at most bucketSize
// entries each.
func NewStore(bucketSize int) *Store {
	if bucketSize < 1 {
		bucketSize = 1
	}
	return &Store{
		buckets:    xsync.NewMapOf[string, *lru.Cache[interface{}, interface{}]](),
		bucketSize: bucketSize,
	}
}

func (s *Store) bucket(beanType string) *lru.Cache[interface{}, interface{}] {
	b, _ := s.buckets.LoadOrCompute(beanType, func() *lru.Cache[interface{}, interface{}] {
		c, err := lru.New[interface{}, interface{}](s.bucketSize)
		if err != nil {
			// Only possible with size < 1, which NewStore prevents.
			log.Panic().Err(err).Str("bean_type", beanType).Msg("Failed to create cache bucket")
		}
		return c
	})
	return b
}

// normalizeID canonicalizes integer identities to int64. Identities that
// crossed the cluster arrive as int64 (msgpack has no narrower notion),
// while local callers cache with whatever integer type the bean uses; both
// must land on the same bucket key.
func normalizeID(id interface{}) interface{} {
	switch v := id.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	default:
		return id
	}
}

// Put stores a bean under its identity.
func (s *Store) Put(beanType string, id interface{}, bean interface{}) {
	s.bucket(beanType).Add(normalizeID(id), bean)
}

// Get returns the cached bean for an identity, if present.
func (s *Store) Get(beanType string, id interface{}) (interface{}, bool) {
	b, ok := s.buckets.Load(beanType)
	if !ok {
		return nil, false
	}
	return b.Get(normalizeID(id))
}

// Invalidate evicts the given identities from the bean type's bucket.
func (s *Store) Invalidate(beanType string, ids []interface{}) {
	b, ok := s.buckets.Load(beanType)
	if !ok {
		return
	}
	for _, id := range ids {
		b.Remove(normalizeID(id))
	}
}

// InvalidateAll evicts every entry for the bean type.
func (s *Store) InvalidateAll(beanType string) {
	if b, ok := s.buckets.Load(beanType); ok {
		b.Purge()
	}
}

// Len returns the number of live entries for a bean type.
func (s *Store) Len(beanType string) int {
	if b, ok := s.buckets.Load(beanType); ok {
		return b.Len()
	}
	return 0
}

// Stats returns entry counts per bean type, for the admin endpoints.
func (s *Store) Stats() map[string]int {
	out := make(map[string]int)
	s.buckets.Range(func(beanType string, b *lru.Cache[interface{}, interface{}]) bool {
		out[beanType] = b.Len()
		return true
	})
	return out
}

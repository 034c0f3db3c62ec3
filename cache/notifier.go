package cache

import (
	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/change"
	"github.com/beandb/fanout/telemetry"
)

// Notifier applies a committed change set to the in-process cache. It runs on
// the committing thread (and on the cluster receiver for remote sets), so it
// never propagates failures to the caller: a stale cache entry is preferable
// to failing an already-committed transaction.
type Notifier struct {
	backend Backend
	tables  *TableMap
}

// NewNotifier creates a cache notifier over the given backend and table map.
func NewNotifier(backend Backend, tables *TableMap) *Notifier {
	return &Notifier{backend: backend, tables: tables}
}

// ApplyChangeSet invalidates cache entries for everything the set changed.
// Runs exactly once per set, whether the set originated locally or arrived
// from the cluster. Never panics and never returns an error; backend failures
// are logged and the affected entries are left stale.
func (n *Notifier) ApplyChangeSet(set *change.Set) {
	if set == nil || set.IsEmpty() {
		return
	}

	// Table-keyed changes first (raw SQL, external tools): bean identity is
	// unavailable, so every type mapped to the table is flushed wholesale.
	for _, iud := range set.TableEvents() {
		types := n.tables.TypesFor(iud.Table)
		if len(types) == 0 {
			log.Debug().Str("table", iud.Table).Msg("Table event for unmapped table, no cache to notify")
			continue
		}
		for _, beanType := range types {
			n.invalidateAll(beanType, iud.Table)
		}
	}

	// Bean-keyed changes: evict the touched identities per type.
	for beanType, ids := range invalidationIDs(set) {
		n.invalidate(beanType, ids, set.FromCluster())
	}
}

// invalidationIDs collects every identity the set touched, per bean type,
// including delete-by-id entries.
func invalidationIDs(set *change.Set) map[string][]interface{} {
	out := make(map[string][]interface{})
	for _, p := range change.BuildPersistIDMap(set) {
		out[p.BeanType] = append(out[p.BeanType], p.AllIDs()...)
	}
	for beanType, ids := range set.DeleteByID() {
		out[beanType] = append(out[beanType], ids...)
	}
	return out
}

func (n *Notifier) invalidate(beanType string, ids []interface{}, fromCluster bool) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.CacheApplyErrors.Inc()
			log.Error().
				Interface("panic", r).
				Str("bean_type", beanType).
				Int("ids", len(ids)).
				Bool("from_cluster", fromCluster).
				Msg("Cache backend panicked during invalidate, entries left stale")
		}
	}()
	n.backend.Invalidate(beanType, ids)
	telemetry.CacheInvalidationsTotal.Add(float64(len(ids)))
}

func (n *Notifier) invalidateAll(beanType, table string) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.CacheApplyErrors.Inc()
			log.Error().
				Interface("panic", r).
				Str("bean_type", beanType).
				Str("table", table).
				Msg("Cache backend panicked during invalidateAll, bucket left stale")
		}
	}()
	n.backend.InvalidateAll(beanType)
	telemetry.CacheBucketFlushesTotal.Inc()
}

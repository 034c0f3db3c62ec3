package index

import (
	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/change"
	"github.com/beandb/fanout/telemetry"
)

// Collector translates a change set into index operations. It only
// classifies: bulk vs queued is decided by the transaction's index mode, and
// delivery timing belongs to the processor and doc store.
type Collector struct {
	filter *TypeFilter
}

// NewCollector creates a collector over the index-enabled type filter.
func NewCollector(filter *TypeFilter) *Collector {
	return &Collector{filter: filter}
}

// Collect builds the per-commit batch of index ops in the set's source
// order. Mode ignore yields an empty batch regardless of content; types not
// marked index-enabled never produce ops.
func (c *Collector) Collect(set *change.Set, mode cfg.IndexMode) *Updates {
	u := &Updates{}
	if set == nil || mode == cfg.IndexIgnore {
		return u
	}

	path := "bulk"
	if mode == cfg.IndexQueued {
		path = "queued"
	}
	add := func(op Op) {
		if mode == cfg.IndexQueued {
			u.QueuedOps = append(u.QueuedOps, op)
		} else {
			u.BulkOps = append(u.BulkOps, op)
		}
		telemetry.IndexOpsTotal.With(op.Kind.String(), path).Inc()
	}

	for _, bc := range set.Inserted() {
		if c.filter.Enabled(bc.BeanType) {
			add(Op{Kind: OpUpsert, BeanType: bc.BeanType, ID: bc.ID, Doc: bc.Bean})
		}
	}
	for _, bc := range set.Updated() {
		if c.filter.Enabled(bc.BeanType) {
			add(Op{Kind: OpUpsert, BeanType: bc.BeanType, ID: bc.ID, Doc: bc.Bean})
		}
	}
	for _, bc := range set.Deleted() {
		if c.filter.Enabled(bc.BeanType) {
			add(Op{Kind: OpDelete, BeanType: bc.BeanType, ID: bc.ID})
		}
	}
	for beanType, ids := range set.DeleteByID() {
		if !c.filter.Enabled(beanType) {
			continue
		}
		for _, id := range ids {
			add(Op{Kind: OpDelete, BeanType: beanType, ID: id})
		}
	}

	return u
}

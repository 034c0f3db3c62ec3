package change

import "sort"

// PersistIDs groups the identities one transaction touched for a single bean
// type, split by operation. This is the unit of cluster serialization and the
// key set for cache invalidation.
type PersistIDs struct {
	BeanType  string        `msgpack:"type"`
	InsertIDs []interface{} `msgpack:"ins,omitempty"`
	UpdateIDs []interface{} `msgpack:"upd,omitempty"`
	DeleteIDs []interface{} `msgpack:"del,omitempty"`
}

// AllIDs returns every identity in the group, inserts first.
func (p *PersistIDs) AllIDs() []interface{} {
	out := make([]interface{}, 0, len(p.InsertIDs)+len(p.UpdateIDs)+len(p.DeleteIDs))
	out = append(out, p.InsertIDs...)
	out = append(out, p.UpdateIDs...)
	out = append(out, p.DeleteIDs...)
	return out
}

// IsEmpty reports whether the group carries no identities.
func (p *PersistIDs) IsEmpty() bool {
	return len(p.InsertIDs) == 0 && len(p.UpdateIDs) == 0 && len(p.DeleteIDs) == 0
}

// PersistIDMap groups the identities of a change set by bean type. Built once
// per Set; every identity in the set appears in exactly one bucket for its
// type.
type PersistIDMap map[string]*PersistIDs

// BuildPersistIDMap groups the bean-level identities of a set by type.
// Returns nil when the set has no bean changes.
func BuildPersistIDMap(set *Set) PersistIDMap {
	if !set.HasBeanChanges() {
		return nil
	}
	m := make(PersistIDMap)
	for _, bc := range set.inserted {
		m.bucket(bc.BeanType).InsertIDs = append(m.bucket(bc.BeanType).InsertIDs, bc.ID)
	}
	for _, bc := range set.updated {
		m.bucket(bc.BeanType).UpdateIDs = append(m.bucket(bc.BeanType).UpdateIDs, bc.ID)
	}
	for _, bc := range set.deleted {
		m.bucket(bc.BeanType).DeleteIDs = append(m.bucket(bc.BeanType).DeleteIDs, bc.ID)
	}
	return m
}

func (m PersistIDMap) bucket(beanType string) *PersistIDs {
	p, ok := m[beanType]
	if !ok {
		p = &PersistIDs{BeanType: beanType}
		m[beanType] = p
	}
	return p
}

// Values returns the groups ordered by bean type name for deterministic
// serialization and logging.
func (m PersistIDMap) Values() []*PersistIDs {
	out := make([]*PersistIDs, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BeanType < out[j].BeanType })
	return out
}

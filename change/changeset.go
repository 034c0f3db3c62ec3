// Package change holds the immutable description of what one committed
// transaction changed: per-bean inserts/updates/deletes, coarse table-level
// events from raw SQL, and delete-by-id sets. A Set is built incrementally by
// the committing transaction through a Builder and sealed at commit time;
// after that it is read-only and safe to hand to the pipeline.
package change

// Kind identifies the type of a bean-level change.
type Kind uint8

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

// String returns the lowercase name of the change kind.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// BeanChange records a single bean-level persist operation.
type BeanChange struct {
	BeanType string        // registered bean type name
	ID       interface{}   // identity (primary key) value
	Kind     Kind          // insert, update or delete
	Props    []string      // changed property names (updates)
	Bean     interface{}   // optional owned snapshot for index upserts
}

// TableIUD is a coarse table-level delta used when bean identity is not
// available (raw SQL statements, external tools).
type TableIUD struct {
	Table   string `msgpack:"tbl"`
	Inserts int    `msgpack:"ins"`
	Updates int    `msgpack:"upd"`
	Deletes int    `msgpack:"del"`
}

// Set is the immutable record of everything one committed transaction
// changed. Construct via Builder.
type Set struct {
	inserted    []BeanChange
	updated     []BeanChange
	deleted     []BeanChange
	tableEvents []TableIUD
	deleteByID  map[string][]interface{}
	fromCluster bool
}

// Inserted returns the bean inserts in transaction source order.
func (s *Set) Inserted() []BeanChange { return s.inserted }

// Updated returns the bean updates in transaction source order.
func (s *Set) Updated() []BeanChange { return s.updated }

// Deleted returns the bean deletes in transaction source order.
func (s *Set) Deleted() []BeanChange { return s.deleted }

// TableEvents returns table-level deltas in first-touch order.
func (s *Set) TableEvents() []TableIUD { return s.tableEvents }

// DeleteByID returns identities deleted by id (no bean loaded), keyed by
// bean type. Callers must not mutate the returned map.
func (s *Set) DeleteByID() map[string][]interface{} { return s.deleteByID }

// FromCluster reports whether this set was reconstructed from a remote
// transaction event. Such sets feed local caches only: they are never
// re-broadcast and never dispatched to listeners.
func (s *Set) FromCluster() bool { return s.fromCluster }

// IsEmpty reports whether the set carries no change at all.
func (s *Set) IsEmpty() bool {
	return len(s.inserted) == 0 && len(s.updated) == 0 && len(s.deleted) == 0 &&
		len(s.tableEvents) == 0 && len(s.deleteByID) == 0
}

// HasBeanChanges reports whether any bean-level change is present.
func (s *Set) HasBeanChanges() bool {
	return len(s.inserted) > 0 || len(s.updated) > 0 || len(s.deleted) > 0
}

// Builder accumulates changes during a transaction. It is exclusively owned
// by the committing transaction: no locking, no concurrent writers. Seal
// finalizes it into an immutable Set; the builder must not be used afterwards.
type Builder struct {
	inserted   []BeanChange
	updated    []BeanChange
	deleted    []BeanChange
	tables     []TableIUD
	tableIdx   map[string]int
	deleteByID map[string][]interface{}
	sealed     bool
}

// NewBuilder creates an empty change set builder.
func NewBuilder() *Builder {
	return &Builder{tableIdx: make(map[string]int)}
}

func (b *Builder) checkOpen() {
	if b.sealed {
		panic("change: builder used after Seal")
	}
}

// AddInsert records a bean insert.
func (b *Builder) AddInsert(beanType string, id interface{}, bean interface{}) {
	b.checkOpen()
	b.inserted = append(b.inserted, BeanChange{BeanType: beanType, ID: id, Kind: KindInsert, Bean: bean})
}

// AddUpdate records a bean update with the set of changed properties.
func (b *Builder) AddUpdate(beanType string, id interface{}, props []string, bean interface{}) {
	b.checkOpen()
	b.updated = append(b.updated, BeanChange{BeanType: beanType, ID: id, Kind: KindUpdate, Props: props, Bean: bean})
}

// AddDelete records a bean delete.
func (b *Builder) AddDelete(beanType string, id interface{}) {
	b.checkOpen()
	b.deleted = append(b.deleted, BeanChange{BeanType: beanType, ID: id, Kind: KindDelete})
}

// AddTableEvent records a table-level delta. Repeated events for the same
// table accumulate into a single TableIUD.
func (b *Builder) AddTableEvent(table string, inserts, updates, deletes int) {
	b.checkOpen()
	if i, ok := b.tableIdx[table]; ok {
		b.tables[i].Inserts += inserts
		b.tables[i].Updates += updates
		b.tables[i].Deletes += deletes
		return
	}
	b.tableIdx[table] = len(b.tables)
	b.tables = append(b.tables, TableIUD{Table: table, Inserts: inserts, Updates: updates, Deletes: deletes})
}

// AddDeleteByID records identities deleted by id without loading the bean.
func (b *Builder) AddDeleteByID(beanType string, ids ...interface{}) {
	b.checkOpen()
	if len(ids) == 0 {
		return
	}
	if b.deleteByID == nil {
		b.deleteByID = make(map[string][]interface{})
	}
	b.deleteByID[beanType] = append(b.deleteByID[beanType], ids...)
}

// Seal finalizes the builder into an immutable Set. The builder must not be
// used after Seal returns.
func (b *Builder) Seal() *Set {
	b.checkOpen()
	b.sealed = true
	return &Set{
		inserted:    b.inserted,
		updated:     b.updated,
		deleted:     b.deleted,
		tableEvents: b.tables,
		deleteByID:  b.deleteByID,
	}
}

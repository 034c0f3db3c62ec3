// Package listener dispatches committed change sets to registered persist
// listeners and bulk table listeners on a background task, after the
// transaction has durably committed.
package listener

import "strings"

// PersistListener receives bean-level notifications for a registered bean
// type after commit. Implementations must tolerate arbitrary ordering across
// transactions; within one transaction's change set, source order holds.
type PersistListener interface {
	OnInsert(beanType string, id interface{})
	OnUpdate(beanType string, id interface{}, changedProps []string)
	OnDelete(beanType string, id interface{})
}

// BulkTableListener receives coarse table-level notifications for raw SQL or
// external-tool changes where bean identity is unavailable.
type BulkTableListener interface {
	OnTableChange(table string, inserts, updates, deletes int)
}

// Registry maps bean types to ordered persist listeners and table names to
// bulk listeners. Built once at configuration time via Builder and immutable
// afterwards, so dispatch needs no locking.
type Registry struct {
	persist map[string][]PersistListener
	bulk    map[string][]BulkTableListener
}

// PersistFor returns the ordered listeners for a bean type.
func (r *Registry) PersistFor(beanType string) []PersistListener {
	return r.persist[beanType]
}

// BulkFor returns the bulk listeners for a table name.
func (r *Registry) BulkFor(table string) []BulkTableListener {
	return r.bulk[strings.ToLower(table)]
}

// IsEmpty reports whether no listener of any kind is registered.
func (r *Registry) IsEmpty() bool {
	return len(r.persist) == 0 && len(r.bulk) == 0
}

// Builder accumulates listener registrations. Build seals them into an
// immutable Registry; registration after Build is a configuration bug.
type Builder struct {
	persist map[string][]PersistListener
	bulk    map[string][]BulkTableListener
	built   bool
}

// NewBuilder creates an empty listener registry builder.
func NewBuilder() *Builder {
	return &Builder{
		persist: make(map[string][]PersistListener),
		bulk:    make(map[string][]BulkTableListener),
	}
}

func (b *Builder) checkOpen() {
	if b.built {
		panic("listener: registry builder used after Build")
	}
}

// Persist registers listeners for a bean type, appended in call order.
func (b *Builder) Persist(beanType string, listeners ...PersistListener) *Builder {
	b.checkOpen()
	b.persist[beanType] = append(b.persist[beanType], listeners...)
	return b
}

// BulkTable registers bulk listeners for a table name (case-insensitive).
func (b *Builder) BulkTable(table string, listeners ...BulkTableListener) *Builder {
	b.checkOpen()
	key := strings.ToLower(table)
	b.bulk[key] = append(b.bulk[key], listeners...)
	return b
}

// Build seals the registrations into an immutable Registry.
func (b *Builder) Build() *Registry {
	b.checkOpen()
	b.built = true
	return &Registry{persist: b.persist, bulk: b.bulk}
}

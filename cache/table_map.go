package cache

import "strings"

// TableMap resolves a table name to the bean types mapped to it. Populated at
// configuration time from deployment metadata and read-only afterwards, so
// lookups need no locking. Table names are matched case-insensitively, the
// way the database reports them.
type TableMap struct {
	types map[string][]string
}

// NewTableMap creates an empty table map.
func NewTableMap() *TableMap {
	return &TableMap{types: make(map[string][]string)}
}

// Register maps a table name to a bean type. A table backing multiple bean
// types (inheritance, views) is registered once per type.
func (t *TableMap) Register(table string, beanTypes ...string) {
	key := strings.ToLower(table)
	t.types[key] = append(t.types[key], beanTypes...)
}

// TypesFor returns the bean types mapped to a table, or nil when the table is
// unknown to the deployment.
func (t *TableMap) TypesFor(table string) []string {
	return t.types[strings.ToLower(table)]
}

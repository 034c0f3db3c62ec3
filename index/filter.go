package index

import (
	"fmt"

	"github.com/gobwas/glob"
)

// TypeFilter decides which bean types are index-enabled, using glob patterns
// from deployment configuration. Compiled once at startup, read-only after.
type TypeFilter struct {
	globs []glob.Glob
}

// NewTypeFilter compiles the given patterns. No patterns means no type is
// index-enabled.
func NewTypeFilter(patterns []string) (*TypeFilter, error) {
	filter := &TypeFilter{globs: make([]glob.Glob, 0, len(patterns))}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid index type pattern %q: %w", pattern, err)
		}
		filter.globs = append(filter.globs, g)
	}

	return filter, nil
}

// Enabled returns true if the bean type matches any configured pattern.
func (f *TypeFilter) Enabled(beanType string) bool {
	for _, g := range f.globs {
		if g.Match(beanType) {
			return true
		}
	}
	return false
}

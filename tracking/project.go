package tracking

import "strings"

// =============================================================================
// PROJECT CODE - Two-level hierarchy
// =============================================================================

// ProjectCode is a project identifier. Codes form a two-level hierarchy:
// a code containing a '.' belongs to the parent formed by truncating at the
// first '.' ("R1337.1" belongs to "R1337"). Every project-scoped aggregation
// resolves through Top so that parent and child hours land in one bucket,
// and every filter resolves through Under so that filtering on a parent
// includes all of its children.
type ProjectCode string

// Parent returns the parent code, or the code itself for top-level codes.
func (c ProjectCode) Parent() ProjectCode {
	if i := strings.IndexByte(string(c), '.'); i >= 0 {
		return c[:i]
	}
	return c
}

// Top is the canonical aggregation key for this code. Alias for Parent,
// named for intent at aggregation sites.
func (c ProjectCode) Top() ProjectCode { return c.Parent() }

// IsChild reports whether the code has a parent distinct from itself.
func (c ProjectCode) IsChild() bool {
	return strings.IndexByte(string(c), '.') >= 0
}

// Under reports whether this code matches a filter code: an exact match,
// or the filter is this code's parent.
func (c ProjectCode) Under(filter ProjectCode) bool {
	if filter == "" {
		return true
	}
	return c == filter || c.Parent() == filter
}

package diff

import "strings"

// ChangeFilter names a category of change that is left out of reports.
// Filters never alter snapshots, only what is counted and described.
type ChangeFilter string

const (
	// IgnoreAddedFiles suppresses added entries. Output sets legitimately
	// grow between builds, so new output paths are not drift.
	IgnoreAddedFiles ChangeFilter = "ignore_added_files"
)

// Suppresses reports whether the filter hides changes of type ct.
func (f ChangeFilter) Suppresses(ct ChangeType) bool {
	switch f {
	case IgnoreAddedFiles:
		return ct == ChangeAdded
	default:
		return false
	}
}

// FilterSet is a set of active filters. The nil set filters nothing.
type FilterSet []ChangeFilter

// NoFilters is the empty filter set used for inputs.
var NoFilters FilterSet

// NewFilterSet builds a set, dropping duplicates.
func NewFilterSet(filters ...ChangeFilter) FilterSet {
	var set FilterSet
	for _, f := range filters {
		if !set.Contains(f) {
			set = append(set, f)
		}
	}
	return set
}

// Contains reports whether f is in the set.
func (s FilterSet) Contains(f ChangeFilter) bool {
	for _, have := range s {
		if have == f {
			return true
		}
	}
	return false
}

// Suppresses reports whether any filter in the set hides changes of type ct.
func (s FilterSet) Suppresses(ct ChangeType) bool {
	for _, f := range s {
		if f.Suppresses(ct) {
			return true
		}
	}
	return false
}

func (s FilterSet) String() string {
	if len(s) == 0 {
		return "none"
	}
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}

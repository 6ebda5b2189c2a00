// Package diff implements snapshot differencing and change filtering.
package diff

import (
	"fmt"
	"iter"
	"strings"

	"github.com/jvs-project/taskstate/pkg/model"
)

// ChangeType represents the type of filesystem change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Change represents a single path difference between two snapshots.
type Change struct {
	Path     string             `json:"path"`
	Type     ChangeType         `json:"type"`
	Previous *model.Fingerprint `json:"previous,omitempty"`
	Current  *model.Fingerprint `json:"current,omitempty"`
}

// Describe renders the change as one human-readable line.
func (c Change) Describe() string {
	switch c.Type {
	case ChangeAdded:
		return fmt.Sprintf("%s has been added", c.Path)
	case ChangeRemoved:
		return fmt.Sprintf("%s has been removed", c.Path)
	default:
		return fmt.Sprintf("%s has changed", c.Path)
	}
}

// Changes returns the differences from before to after as a lazy sequence.
//
// Removed entries come first in before's order, then modified entries in
// before's order, then added entries in after's order. Changes suppressed by
// filters are skipped at emission. Each range over the result recomputes
// from the snapshots, so the sequence can be consumed any number of times.
func Changes(before, after model.Snapshot, filters FilterSet) iter.Seq[Change] {
	return func(yield func(Change) bool) {
		if !filters.Suppresses(ChangeRemoved) {
			for p, prev := range before.All() {
				if after.Has(p) {
					continue
				}
				if !yield(Change{Path: p, Type: ChangeRemoved, Previous: &prev}) {
					return
				}
			}
		}
		if !filters.Suppresses(ChangeModified) {
			for p, prev := range before.All() {
				cur, ok := after.Get(p)
				if !ok || prev.Equal(cur) {
					continue
				}
				if !yield(Change{Path: p, Type: ChangeModified, Previous: &prev, Current: &cur}) {
					return
				}
			}
		}
		if !filters.Suppresses(ChangeAdded) {
			for p, cur := range after.All() {
				if before.Has(p) {
					continue
				}
				if !yield(Change{Path: p, Type: ChangeAdded, Current: &cur}) {
					return
				}
			}
		}
	}
}

// HasChanges reports whether at least one unsuppressed change exists.
// It stops at the first one.
func HasChanges(before, after model.Snapshot, filters FilterSet) bool {
	for range Changes(before, after, filters) {
		return true
	}
	return false
}

// Collect materializes a change sequence.
func Collect(seq iter.Seq[Change]) []Change {
	var out []Change
	for c := range seq {
		out = append(out, c)
	}
	return out
}

// Result groups changes by type for display.
type Result struct {
	Added         []Change `json:"added"`
	Removed       []Change `json:"removed"`
	Modified      []Change `json:"modified"`
	TotalAdded    int      `json:"total_added"`
	TotalRemoved  int      `json:"total_removed"`
	TotalModified int      `json:"total_modified"`
}

// Summarize consumes a change sequence into a Result.
func Summarize(seq iter.Seq[Change]) *Result {
	r := &Result{}
	for c := range seq {
		switch c.Type {
		case ChangeAdded:
			r.Added = append(r.Added, c)
		case ChangeRemoved:
			r.Removed = append(r.Removed, c)
		case ChangeModified:
			r.Modified = append(r.Modified, c)
		}
	}
	r.TotalAdded = len(r.Added)
	r.TotalRemoved = len(r.Removed)
	r.TotalModified = len(r.Modified)
	return r
}

// Empty returns true if the result holds no changes.
func (r *Result) Empty() bool {
	return r.TotalAdded == 0 && r.TotalRemoved == 0 && r.TotalModified == 0
}

// FormatHuman returns a human-readable string representation of the result.
func (r *Result) FormatHuman() string {
	var sb strings.Builder

	if r.TotalAdded > 0 {
		sb.WriteString(fmt.Sprintf("Added (%d):\n", r.TotalAdded))
		for _, c := range r.Added {
			sb.WriteString(fmt.Sprintf("  + %s\n", c.Path))
		}
	}

	if r.TotalRemoved > 0 {
		sb.WriteString(fmt.Sprintf("Removed (%d):\n", r.TotalRemoved))
		for _, c := range r.Removed {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Path))
		}
	}

	if r.TotalModified > 0 {
		sb.WriteString(fmt.Sprintf("Modified (%d):\n", r.TotalModified))
		for _, c := range r.Modified {
			sb.WriteString(fmt.Sprintf("  ~ %s", c.Path))
			if c.Previous != nil && c.Current != nil && c.Previous.Size != c.Current.Size {
				sb.WriteString(fmt.Sprintf(" (%d -> %d bytes)", c.Previous.Size, c.Current.Size))
			}
			sb.WriteString("\n")
		}
	}

	if r.Empty() {
		sb.WriteString("No changes.\n")
	}

	return sb.String()
}

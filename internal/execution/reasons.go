package execution

import (
	"fmt"
	"iter"

	"github.com/jvs-project/taskstate/internal/changes"
	"github.com/jvs-project/taskstate/internal/diff"
	"github.com/jvs-project/taskstate/pkg/model"
)

// Reason explains why a task is out of date.
type Reason struct {
	Detector string `json:"detector,omitempty"`
	Property string `json:"property,omitempty"`
	Change   string `json:"change,omitempty"`
	Message  string `json:"message"`
}

func (r Reason) String() string {
	return r.Message
}

var (
	reasonNoHistory = Reason{Message: "No history is available."}
	reasonForced    = Reason{Message: "Execution was forced."}
)

func signatureReason(previous, current string) Reason {
	return Reason{Message: fmt.Sprintf("Task signature has changed from %q to %q.", previous, current)}
}

// PropertySummary groups the reported changes of one property.
type PropertySummary struct {
	Detector string       `json:"detector"`
	Property string       `json:"property"`
	Changes  *diff.Result `json:"changes"`
}

// outOfDateReasons yields every reason a task must run, in reporting order:
// task-level reasons, then input then output property and file changes.
func outOfDateReasons(previous *model.TaskRecord, signature string, detectors ...*changes.Detector) iter.Seq[Reason] {
	return func(yield func(Reason) bool) {
		if previous == nil {
			yield(reasonNoHistory)
			return
		}
		if previous.Signature != signature {
			if !yield(signatureReason(previous.Signature, signature)) {
				return
			}
		}
		for _, d := range detectors {
			for _, name := range d.AddedProperties() {
				r := Reason{Detector: d.Title(), Property: name, Change: string(diff.ChangeAdded),
					Message: fmt.Sprintf("%s property '%s' has been added.", d.Title(), name)}
				if !yield(r) {
					return
				}
			}
			for _, name := range d.RemovedProperties() {
				r := Reason{Detector: d.Title(), Property: name, Change: string(diff.ChangeRemoved),
					Message: fmt.Sprintf("%s property '%s' has been removed.", d.Title(), name)}
				if !yield(r) {
					return
				}
			}
			for name, c := range d.Changes() {
				r := Reason{Detector: d.Title(), Property: name, Change: string(c.Type),
					Message: fmt.Sprintf("%s property '%s' file %s.", d.Title(), name, c.Describe())}
				if !yield(r) {
					return
				}
			}
		}
	}
}

// collectReasons takes up to limit reasons and reports whether more exist.
func collectReasons(seq iter.Seq[Reason], limit int) ([]Reason, bool) {
	var out []Reason
	truncated := false
	for r := range seq {
		if len(out) == limit {
			truncated = true
			break
		}
		out = append(out, r)
	}
	return out, truncated
}

// summarize groups a detector's changes per property, in reporting order.
func summarize(d *changes.Detector) []PropertySummary {
	var names []string
	seen := make(map[string]bool)
	for name := range d.Changes() {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	out := make([]PropertySummary, 0, len(names))
	for _, name := range names {
		only := func(yield func(diff.Change) bool) {
			for n, c := range d.Changes() {
				if n == name && !yield(c) {
					return
				}
			}
		}
		out = append(out, PropertySummary{Detector: d.Title(), Property: name, Changes: diff.Summarize(only)})
	}
	return out
}

func prepend(first Reason, rest iter.Seq[Reason]) iter.Seq[Reason] {
	return func(yield func(Reason) bool) {
		if !yield(first) {
			return
		}
		for r := range rest {
			if !yield(r) {
				return
			}
		}
	}
}

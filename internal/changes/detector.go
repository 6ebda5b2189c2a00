// Package changes decides whether a task's declared file properties changed
// since its last successful execution, and computes what to persist after it
// runs again.
//
// A Detector holds the comparison algorithm shared by every property kind.
// What differs between inputs and outputs (where the previous snapshots come
// from, which changes are filtered, and what gets saved) is supplied by a
// Strategy.
package changes

import (
	"fmt"
	"iter"

	"github.com/jvs-project/taskstate/internal/diff"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

// Snapshotter captures the current state of a set of roots.
type Snapshotter interface {
	Capture(roots []string) (model.Snapshot, error)
	EmptySnapshot() model.Snapshot
}

// Strategy supplies the property-kind specific parts of a Detector.
type Strategy interface {
	// Title is used in descriptions, e.g. "Input" or "Output".
	Title() string
	// Previous returns the snapshots recorded for this kind in a record.
	Previous(record *model.TaskRecord) map[string]model.Snapshot
	// Filters returns the change filters applied when comparing.
	Filters() diff.FilterSet
	// Save writes the snapshots to persist into the detector's current record.
	Save(d *Detector) error
}

// Detector compares one task's declared properties of one kind between the
// previous execution record and the current observation.
type Detector struct {
	taskID      model.TaskID
	previous    *model.TaskRecord
	current     *model.TaskRecord
	properties  []model.FileProperty
	snapshotter Snapshotter
	strategy    Strategy
	allowReuse  bool

	captured map[string]model.Snapshot
}

// Option configures a Detector.
type Option func(*Detector)

// WithSnapshotReuse lets CaptureCurrent keep a capture it already holds
// instead of scanning the roots again.
func WithSnapshotReuse(allow bool) Option {
	return func(d *Detector) {
		d.allowReuse = allow
	}
}

// NewDetector creates a detector. previous may be nil when the task has no
// recorded history. current is the record being built for this execution.
func NewDetector(previous, current *model.TaskRecord, properties []model.FileProperty, snapshotter Snapshotter, strategy Strategy, opts ...Option) *Detector {
	d := &Detector{
		taskID:      current.TaskID,
		previous:    previous,
		current:     current,
		properties:  properties,
		snapshotter: snapshotter,
		strategy:    strategy,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TaskID returns the task the detector belongs to.
func (d *Detector) TaskID() model.TaskID { return d.taskID }

// Title returns the strategy title.
func (d *Detector) Title() string { return d.strategy.Title() }

// Properties returns the declared properties in declaration order.
func (d *Detector) Properties() []model.FileProperty { return d.properties }

// Snapshotter returns the capture service used by the detector.
func (d *Detector) Snapshotter() Snapshotter { return d.snapshotter }

// Current returns the record being built.
func (d *Detector) Current() *model.TaskRecord { return d.current }

// Captured reports whether CaptureCurrent has completed.
func (d *Detector) Captured() bool { return d.captured != nil }

// CaptureCurrent snapshots every declared property. Capture errors are
// returned to the caller as-is, classified as E_CAPTURE_FAILED.
func (d *Detector) CaptureCurrent() error {
	if d.allowReuse && d.captured != nil {
		return nil
	}
	captured := make(map[string]model.Snapshot, len(d.properties))
	for _, prop := range d.properties {
		snap, err := d.snapshotter.Capture(prop.Roots)
		if err != nil {
			return captureError(d, prop, err)
		}
		captured[prop.Name] = snap
	}
	d.captured = captured
	return nil
}

func captureError(d *Detector, prop model.FileProperty, err error) error {
	return fmt.Errorf("%w: %w", errclass.ErrCaptureFailed.WithMessagef(
		"%s property '%s' of task %s", d.Title(), prop.Name, d.taskID), err)
}

// CurrentSnapshot returns the captured snapshot for a property, or the empty
// snapshot if nothing was captured for it.
func (d *Detector) CurrentSnapshot(property string) model.Snapshot {
	if s, ok := d.captured[property]; ok {
		return s
	}
	return d.snapshotter.EmptySnapshot()
}

// PreviousSnapshot returns the previously recorded snapshot for a property.
// A missing record or property degrades to the empty snapshot.
func (d *Detector) PreviousSnapshot(property string) model.Snapshot {
	if prev := d.strategy.Previous(d.previous); prev != nil {
		if s, ok := prev[property]; ok {
			return s
		}
	}
	return d.snapshotter.EmptySnapshot()
}

// AddedProperties lists declared properties the previous record does not know.
// It is empty when there is no previous record.
func (d *Detector) AddedProperties() []string {
	if d.previous == nil {
		return nil
	}
	prev := d.strategy.Previous(d.previous)
	var added []string
	for _, prop := range d.properties {
		if _, ok := prev[prop.Name]; !ok {
			added = append(added, prop.Name)
		}
	}
	return added
}

// RemovedProperties lists previously recorded properties no longer declared,
// in sorted order.
func (d *Detector) RemovedProperties() []string {
	if d.previous == nil {
		return nil
	}
	return sortedKeysNotDeclared(d.strategy.Previous(d.previous), d.properties)
}

// HasAnyChanges reports whether any property changed. It returns on the
// first property that shows an unsuppressed change, or on a property present
// in only one of the previous record and the current declaration.
func (d *Detector) HasAnyChanges() bool {
	if len(d.AddedProperties()) > 0 || len(d.RemovedProperties()) > 0 {
		return true
	}
	filters := d.strategy.Filters()
	for _, prop := range d.properties {
		if diff.HasChanges(d.PreviousSnapshot(prop.Name), d.CurrentSnapshot(prop.Name), filters) {
			return true
		}
	}
	return false
}

// Changes enumerates every unsuppressed change as (property name, change)
// pairs: declared properties in declaration order, then properties that are
// no longer declared, whose entries all count as removed.
//
// The sequence is recomputed on each range and can be consumed repeatedly.
func (d *Detector) Changes() iter.Seq2[string, diff.Change] {
	return func(yield func(string, diff.Change) bool) {
		filters := d.strategy.Filters()
		for _, prop := range d.properties {
			for c := range diff.Changes(d.PreviousSnapshot(prop.Name), d.CurrentSnapshot(prop.Name), filters) {
				if !yield(prop.Name, c) {
					return
				}
			}
		}
		for _, name := range d.RemovedProperties() {
			for c := range diff.Changes(d.PreviousSnapshot(name), d.snapshotter.EmptySnapshot(), filters) {
				if !yield(name, c) {
					return
				}
			}
		}
	}
}

// SaveCurrent stores the snapshots to persist into the current record.
// It must follow a successful CaptureCurrent.
func (d *Detector) SaveCurrent() error {
	if d.captured == nil {
		return errclass.ErrCaptureOrder.WithMessagef(
			"%s snapshots of task %s saved before capture", d.Title(), d.taskID)
	}
	return d.strategy.Save(d)
}

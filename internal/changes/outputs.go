package changes

import (
	"github.com/jvs-project/taskstate/internal/diff"
	"github.com/jvs-project/taskstate/pkg/model"
)

var ignoreAddedFiles = diff.NewFilterSet(diff.IgnoreAddedFiles)

// OutputFiles is the Strategy for output properties. Added output files are
// not reported, and the persisted snapshot is reconciled from the previous
// record and the states observed before and after the task ran.
type OutputFiles struct{}

// NewOutputDetector creates a detector over a task's output properties.
func NewOutputDetector(previous, current *model.TaskRecord, properties []model.FileProperty, snapshotter Snapshotter, opts ...Option) *Detector {
	return NewDetector(previous, current, properties, snapshotter, OutputFiles{}, opts...)
}

func (OutputFiles) Title() string { return "Output" }

func (OutputFiles) Previous(record *model.TaskRecord) map[string]model.Snapshot {
	if record == nil {
		return nil
	}
	return record.OutputFiles
}

func (OutputFiles) Filters() diff.FilterSet { return ignoreAddedFiles }

// Save captures every output property again, now that the task has run, and
// records the reconciled snapshot. The after-execution capture is never
// reused from the before-execution one.
func (OutputFiles) Save(d *Detector) error {
	saved := make(map[string]model.Snapshot, len(d.properties))
	for _, prop := range d.properties {
		afterExecution, err := d.snapshotter.Capture(prop.Roots)
		if err != nil {
			return captureError(d, prop, err)
		}
		beforeExecution := d.CurrentSnapshot(prop.Name)
		afterPreviousExecution := d.PreviousSnapshot(prop.Name)
		saved[prop.Name] = ReconcileOutputs(afterPreviousExecution, beforeExecution, afterExecution)
	}
	d.current.OutputFiles = saved
	return nil
}

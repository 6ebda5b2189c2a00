package changes

import (
	"sort"

	"github.com/jvs-project/taskstate/internal/diff"
	"github.com/jvs-project/taskstate/pkg/model"
)

// InputFiles is the Strategy for input properties. Every difference is
// relevant, and the persisted snapshot is simply what was captured.
type InputFiles struct{}

// NewInputDetector creates a detector over a task's input properties.
func NewInputDetector(previous, current *model.TaskRecord, properties []model.FileProperty, snapshotter Snapshotter, opts ...Option) *Detector {
	return NewDetector(previous, current, properties, snapshotter, InputFiles{}, opts...)
}

func (InputFiles) Title() string { return "Input" }

func (InputFiles) Previous(record *model.TaskRecord) map[string]model.Snapshot {
	if record == nil {
		return nil
	}
	return record.InputFiles
}

func (InputFiles) Filters() diff.FilterSet { return diff.NoFilters }

func (InputFiles) Save(d *Detector) error {
	saved := make(map[string]model.Snapshot, len(d.properties))
	for _, prop := range d.properties {
		saved[prop.Name] = d.CurrentSnapshot(prop.Name)
	}
	d.current.InputFiles = saved
	return nil
}

func sortedKeysNotDeclared(recorded map[string]model.Snapshot, declared []model.FileProperty) []string {
	names := make(map[string]bool, len(declared))
	for _, prop := range declared {
		names[prop.Name] = true
	}
	var out []string
	for name := range recorded {
		if !names[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

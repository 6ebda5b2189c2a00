// Package watch reports drift between a task's stored record and the
// filesystem as files change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jvs-project/taskstate/internal/capture"
	"github.com/jvs-project/taskstate/internal/changes"
	"github.com/jvs-project/taskstate/internal/diff"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
)

// DefaultDebounce is how long events must settle before re-checking.
const DefaultDebounce = 200 * time.Millisecond

// Drift is one change between the record and the filesystem.
type Drift struct {
	Detector string      `json:"detector"`
	Property string      `json:"property"`
	Change   diff.Change `json:"change"`
}

// Report is the drift of a task at a point in time.
type Report struct {
	TaskID model.TaskID `json:"task_id"`
	At     time.Time    `json:"at"`
	Drifts []Drift      `json:"drifts"`
}

// UpToDate reports whether nothing drifted.
func (r Report) UpToDate() bool {
	return len(r.Drifts) == 0
}

// Watcher re-checks a task whenever files under its roots change.
type Watcher struct {
	fsw         *fsnotify.Watcher
	snapshotter *capture.Snapshotter
	previous    *model.TaskRecord
	inputs      []model.FileProperty
	outputs     []model.FileProperty
	debounce    time.Duration
	reports     chan Report
	log         *logging.Logger
}

// New creates a watcher for a task with a stored record.
func New(snapshotter *capture.Snapshotter, previous *model.TaskRecord, inputs, outputs []model.FileProperty, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:         fsw,
		snapshotter: snapshotter,
		previous:    previous,
		inputs:      inputs,
		outputs:     outputs,
		debounce:    debounce,
		reports:     make(chan Report, 16),
		log:         logging.WithFields(map[string]any{"task": string(previous.TaskID), "component": "watch"}),
	}, nil
}

// Reports returns the channel of drift reports. It is closed when Run
// returns.
func (w *Watcher) Reports() <-chan Report {
	return w.reports
}

// Check captures the declared roots once and compares them with the record.
// Added output files are not drift, the same as for up-to-date checks.
func (w *Watcher) Check() (Report, error) {
	scratch := model.NewTaskRecord(w.previous.TaskID, "")
	report := Report{TaskID: w.previous.TaskID, At: time.Now().UTC()}

	detectors := []*changes.Detector{
		changes.NewInputDetector(w.previous, scratch, w.inputs, w.snapshotter),
		changes.NewOutputDetector(w.previous, scratch, w.outputs, w.snapshotter),
	}
	for _, d := range detectors {
		if err := d.CaptureCurrent(); err != nil {
			return report, err
		}
		for name, c := range d.Changes() {
			report.Drifts = append(report.Drifts, Drift{Detector: d.Title(), Property: name, Change: c})
		}
	}
	return report, nil
}

// Run watches until ctx is done, sending an initial report and one after
// each burst of file events.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.reports)
	defer w.fsw.Close()

	for _, props := range [][]model.FileProperty{w.inputs, w.outputs} {
		for _, p := range props {
			for _, root := range p.Roots {
				if err := w.addRoot(root); err != nil {
					return err
				}
			}
		}
	}

	if !w.emit(ctx) {
		return nil
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.snapshotter.Forget(ev.Name)
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn("watch new directory", map[string]any{"path": ev.Name, "error": err.Error()})
					}
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", map[string]any{"error": err.Error()})

		case <-timer.C:
			if !w.emit(ctx) {
				return nil
			}
		}
	}
}

func (w *Watcher) emit(ctx context.Context) bool {
	report, err := w.Check()
	if err != nil {
		w.log.ErrorErr("check drift", err)
		return true
	}
	select {
	case w.reports <- report:
		return true
	case <-ctx.Done():
		return false
	}
}

// addRoot watches a root directory tree, or the closest existing ancestor
// of a file or missing root so that its creation is seen.
func (w *Watcher) addRoot(root string) error {
	abs := root
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.snapshotter.Base(), root)
	}
	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		return w.addTree(abs)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(abs)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return w.fsw.Add(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

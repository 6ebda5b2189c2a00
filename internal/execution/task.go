// Package execution decides whether a task is up to date, runs it when it
// is not, and records the new state after a successful run.
package execution

import (
	"context"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/pathutil"
)

// Action performs the work of a task. It must honour ctx cancellation.
type Action func(ctx context.Context) error

// Task is one unit of work with declared file properties.
type Task struct {
	ID      model.TaskID
	Inputs  []model.FileProperty
	Outputs []model.FileProperty
	// Signature identifies the task implementation, e.g. its command line.
	// A changed signature is a reason to run again.
	Signature string
	Action    Action
}

// Validate checks the task identity and its property declarations.
func (t *Task) Validate() error {
	if err := pathutil.ValidateTaskID(string(t.ID)); err != nil {
		return err
	}
	if err := validateProperties("input", t.Inputs); err != nil {
		return err
	}
	if err := validateProperties("output", t.Outputs); err != nil {
		return err
	}
	return nil
}

func validateProperties(kind string, props []model.FileProperty) error {
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		if err := pathutil.ValidatePropertyName(p.Name); err != nil {
			return err
		}
		if seen[p.Name] {
			return errclass.ErrNameInvalid.WithMessagef("duplicate %s property %q", kind, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

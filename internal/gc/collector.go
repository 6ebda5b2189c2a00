// Package gc removes stored records of tasks that are no longer declared.
package gc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jvs-project/taskstate/internal/audit"
	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/fsutil"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/uuidutil"
)

// Collector plans and runs record garbage collection.
type Collector struct {
	gcDir string
	store store.Store
	audit *audit.FileAppender
	now   func() time.Time
}

// NewCollector creates a collector keeping plans under stateDir/gc.
func NewCollector(stateDir string, st store.Store, appender *audit.FileAppender) *Collector {
	return &Collector{
		gcDir: filepath.Join(stateDir, "gc"),
		store: st,
		audit: appender,
		now:   time.Now,
	}
}

// Result reports what a run deleted.
type Result struct {
	PlanID  string         `json:"plan_id"`
	Deleted []model.TaskID `json:"deleted"`
}

// Plan lists the records of undeclared tasks that completed at least
// keepMinAge ago and writes the plan for Run. Unreadable records are left
// for doctor.
func (c *Collector) Plan(declared []model.TaskID, keepMinAge time.Duration) (*model.GCPlan, error) {
	declaredSet := make(map[model.TaskID]bool, len(declared))
	for _, id := range declared {
		declaredSet[id] = true
	}

	ids, err := c.store.List()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	now := c.now()
	var toDelete []model.TaskID
	for _, id := range ids {
		if declaredSet[id] {
			continue
		}
		rec, err := c.store.LoadPrevious(id)
		if err != nil || rec == nil {
			continue
		}
		if now.Sub(rec.CompletedAt) < keepMinAge {
			continue
		}
		toDelete = append(toDelete, id)
	}

	sorted := append([]model.TaskID(nil), declared...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	plan := &model.GCPlan{
		PlanID:     uuidutil.NewV4(),
		CreatedAt:  now.UTC(),
		Declared:   sorted,
		ToDelete:   toDelete,
		KeepMinAge: keepMinAge,
	}
	if err := c.writePlan(plan); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}
	return plan, nil
}

// Run executes a plan. It fails without deleting anything if a task in the
// plan is declared again.
func (c *Collector) Run(planID string, declared []model.TaskID) (*Result, error) {
	plan, err := c.LoadPlan(planID)
	if err != nil {
		return nil, err
	}

	declaredSet := make(map[model.TaskID]bool, len(declared))
	for _, id := range declared {
		declaredSet[id] = true
	}
	for _, id := range plan.ToDelete {
		if declaredSet[id] {
			return nil, errclass.ErrNameInvalid.WithMessagef("plan mismatch: task %s is declared again", id)
		}
	}

	result := &Result{PlanID: planID}
	for _, id := range plan.ToDelete {
		err := c.store.Delete(id)
		if errors.Is(err, errclass.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			logging.Warn("gc: delete record", map[string]any{"task": string(id), "error": err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	if err := c.deletePlan(planID); err != nil {
		return nil, err
	}
	if err := c.audit.Append(model.EventTypeGCRun, "", "", map[string]any{
		"plan_id":       planID,
		"deleted_count": len(result.Deleted),
	}); err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	return result, nil
}

// LoadPlan reads a written plan.
func (c *Collector) LoadPlan(planID string) (*model.GCPlan, error) {
	if !uuidutil.Valid(planID) {
		return nil, errclass.ErrNameInvalid.WithMessagef("invalid plan id %q", planID)
	}
	data, err := os.ReadFile(c.planPath(planID))
	if os.IsNotExist(err) {
		return nil, errclass.ErrTaskNotFound.WithMessagef("no gc plan %s", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan model.GCPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

func (c *Collector) planPath(planID string) string {
	return filepath.Join(c.gcDir, planID+".json")
}

func (c *Collector) writePlan(plan *model.GCPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(c.planPath(plan.PlanID), data, 0644)
}

func (c *Collector) deletePlan(planID string) error {
	return fsutil.RemoveAndSync(c.planPath(planID))
}

package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/jvs-project/taskstate/internal/audit"
	"github.com/jvs-project/taskstate/internal/changes"
	"github.com/jvs-project/taskstate/internal/lock"
	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/metrics"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/uuidutil"
	"github.com/jvs-project/taskstate/pkg/webhook"
)

// DefaultMaxReasons bounds the reasons reported per task.
const DefaultMaxReasons = 3

// Executor evaluates and runs tasks against a record store.
type Executor struct {
	store       store.Store
	snapshotter changes.Snapshotter
	locks       *lock.Manager
	audit       *audit.FileAppender
	metrics     *metrics.Registry
	hooks       *webhook.Client
	logger      *logging.Logger

	maxReasons    int
	snapshotReuse bool
	force         bool
	now           func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLocks serializes executions of the same task across processes.
func WithLocks(m *lock.Manager) Option { return func(e *Executor) { e.locks = m } }

// WithAudit records every outcome in the audit log.
func WithAudit(a *audit.FileAppender) Option { return func(e *Executor) { e.audit = a } }

// WithMetrics records outcomes and change counts.
func WithMetrics(r *metrics.Registry) Option { return func(e *Executor) { e.metrics = r } }

// WithWebhooks notifies hooks of every outcome. Delivery is asynchronous.
func WithWebhooks(c *webhook.Client) Option { return func(e *Executor) { e.hooks = c } }

// WithLogger replaces the global logger.
func WithLogger(l *logging.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithMaxReasons bounds the reasons collected per task. n < 1 is ignored.
func WithMaxReasons(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.maxReasons = n
		}
	}
}

// WithSnapshotReuse lets detectors keep a capture instead of repeating it.
func WithSnapshotReuse(allow bool) Option { return func(e *Executor) { e.snapshotReuse = allow } }

// WithForce runs every task regardless of its recorded state.
func WithForce(force bool) Option { return func(e *Executor) { e.force = force } }

// New creates an executor over st, capturing files with snapshotter.
func New(st store.Store, snapshotter changes.Snapshotter, opts ...Option) *Executor {
	e := &Executor{
		store:       st,
		snapshotter: snapshotter,
		logger:      logging.Global(),
		maxReasons:  DefaultMaxReasons,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan is the evaluation of a task without running it.
type Plan struct {
	TaskID    model.TaskID      `json:"task_id"`
	UpToDate  bool              `json:"up_to_date"`
	Reasons   []Reason          `json:"reasons,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	Summaries []PropertySummary `json:"summaries,omitempty"`
	Previous  *model.TaskRecord `json:"-"`
}

// Result is the outcome of Execute.
type Result struct {
	TaskID      model.TaskID      `json:"task_id"`
	ExecutionID string            `json:"execution_id"`
	Outcome     model.Outcome     `json:"outcome"`
	Reasons     []Reason          `json:"reasons,omitempty"`
	Truncated   bool              `json:"truncated,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
	Record      *model.TaskRecord `json:"-"`
}

// evaluation holds the detectors of one task run between capture and save.
type evaluation struct {
	previous  *model.TaskRecord
	current   *model.TaskRecord
	inputs    *changes.Detector
	outputs   *changes.Detector
	upToDate  bool
	reasons   []Reason
	truncated bool
}

// hashInvalidator is implemented by snapshotters that cache file hashes.
type hashInvalidator interface {
	ForgetRoots(roots []string)
}

func (e *Executor) evaluate(task *Task, executionID string, force bool) (*evaluation, error) {
	previous, err := e.store.LoadPrevious(task.ID)
	if err != nil {
		e.recordStoreError("load")
		return nil, err
	}

	current := model.NewTaskRecord(task.ID, executionID)
	current.Signature = task.Signature

	opts := []changes.Option{changes.WithSnapshotReuse(e.snapshotReuse)}
	inputs := changes.NewInputDetector(previous, current, task.Inputs, e.snapshotter, opts...)
	outputs := changes.NewOutputDetector(previous, current, task.Outputs, e.snapshotter, opts...)

	// Inputs first: outputs of an earlier task may be this task's inputs
	if err := inputs.CaptureCurrent(); err != nil {
		return nil, err
	}
	if err := outputs.CaptureCurrent(); err != nil {
		return nil, err
	}

	upToDate := !force && previous != nil && previous.Signature == task.Signature &&
		!inputs.HasAnyChanges() && !outputs.HasAnyChanges()

	seq := outOfDateReasons(previous, task.Signature, inputs, outputs)
	if force {
		seq = prepend(reasonForced, seq)
	}
	reasons, truncated := collectReasons(seq, e.maxReasons)

	return &evaluation{
		previous:  previous,
		current:   current,
		inputs:    inputs,
		outputs:   outputs,
		upToDate:  upToDate,
		reasons:   reasons,
		truncated: truncated,
	}, nil
}

// Plan captures the task's files and reports whether it is up to date.
// Nothing is executed or saved.
func (e *Executor) Plan(ctx context.Context, task *Task) (*Plan, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ev, err := e.evaluate(task, "", false)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		TaskID:    task.ID,
		UpToDate:  ev.upToDate,
		Reasons:   ev.reasons,
		Truncated: ev.truncated,
		Previous:  ev.previous,
	}
	if ev.previous != nil {
		plan.Summaries = append(summarize(ev.inputs), summarize(ev.outputs)...)
	}
	return plan, nil
}

// Execute runs the task unless it is up to date. After a successful action
// the input and output snapshots are saved as the task's new record. A failed
// or cancelled action leaves the previous record in place.
func (e *Executor) Execute(ctx context.Context, task *Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.Action == nil {
		return nil, errclass.ErrNameInvalid.WithMessagef("task %s has no action", task.ID)
	}

	start := e.now()
	executionID := uuidutil.NewV7()
	log := e.logger.WithFields(map[string]any{"task": string(task.ID), "execution_id": executionID})
	res := &Result{TaskID: task.ID, ExecutionID: executionID}

	var keeper *lock.Keeper
	if e.locks != nil {
		lease, err := e.locks.Acquire(task.ID, "execute")
		if err != nil {
			return nil, err
		}
		keeper = e.locks.Keep(task.ID, lease.HolderNonce)
		defer func() {
			keeper.Stop()
			if err := e.locks.Release(task.ID, lease.HolderNonce); err != nil {
				log.ErrorErr("release task lease", err)
			}
		}()
	}

	if err := ctx.Err(); err != nil {
		return e.fail(res, log, start, err)
	}

	ev, err := e.evaluate(task, executionID, e.force)
	if err != nil {
		return e.fail(res, log, start, err)
	}
	res.Reasons, res.Truncated = ev.reasons, ev.truncated
	e.recordChanges(ev.reasons)

	if ev.upToDate {
		res.Outcome = model.OutcomeUpToDate
		res.Record = ev.previous
		res.Duration = e.now().Sub(start)
		log.Info("task up to date")
		e.recordOutcome(res, nil)
		return res, nil
	}

	log.Info("executing task", map[string]any{"reasons": reasonMessages(ev.reasons), "truncated": ev.truncated})
	err = task.Action(ctx)
	e.forgetOutputHashes(task)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return e.fail(res, log, start, fmt.Errorf("%w: %w", errclass.ErrTaskFailed.WithMessagef("task %s", task.ID), err))
	}

	if err := ev.inputs.SaveCurrent(); err != nil {
		return e.fail(res, log, start, err)
	}
	if err := ev.outputs.SaveCurrent(); err != nil {
		return e.fail(res, log, start, err)
	}
	ev.current.CompletedAt = e.now().UTC()
	if keeper != nil {
		if err := keeper.Held(); err != nil {
			return e.fail(res, log, start, err)
		}
	}
	if err := e.store.Save(task.ID, ev.current); err != nil {
		e.recordStoreError("save")
		return e.fail(res, log, start, err)
	}

	res.Outcome = model.OutcomeExecuted
	res.Record = ev.current
	res.Duration = e.now().Sub(start)
	log.Info("task executed", map[string]any{
		"duration_ms":  res.Duration.Milliseconds(),
		"output_files": ev.current.TotalOutputFiles(),
	})
	if e.metrics != nil {
		e.metrics.RecordReconciled(ev.current.TotalOutputFiles())
	}
	e.recordOutcome(res, nil)
	return res, nil
}

// forgetOutputHashes drops cached hashes under the task's output roots. An
// action may rewrite a file without changing its size or modification time.
func (e *Executor) forgetOutputHashes(task *Task) {
	inv, ok := e.snapshotter.(hashInvalidator)
	if !ok {
		return
	}
	for _, prop := range task.Outputs {
		inv.ForgetRoots(prop.Roots)
	}
}

// fail reports a failed execution. The current record is dropped.
func (e *Executor) fail(res *Result, log *logging.Logger, start time.Time, err error) (*Result, error) {
	res.Outcome = model.OutcomeFailed
	res.Record = nil
	res.Duration = e.now().Sub(start)
	log.ErrorErr("task failed", err)
	e.recordOutcome(res, err)
	return res, err
}

func (e *Executor) recordOutcome(res *Result, cause error) {
	if e.metrics != nil {
		e.metrics.RecordExecution(res.Outcome, res.Duration)
	}
	e.notify(res, cause)
	if e.audit == nil {
		return
	}

	details := map[string]any{"duration_ms": res.Duration.Milliseconds()}
	eventType := model.EventTypeTaskUpToDate
	switch res.Outcome {
	case model.OutcomeExecuted:
		eventType = model.EventTypeTaskExecuted
		details["reasons"] = reasonMessages(res.Reasons)
		if res.Record != nil {
			details["output_files"] = res.Record.TotalOutputFiles()
		}
	case model.OutcomeFailed:
		eventType = model.EventTypeTaskFailed
		if cause != nil {
			details["error"] = cause.Error()
		}
	}
	if err := e.audit.Append(eventType, res.TaskID, res.ExecutionID, details); err != nil {
		e.logger.ErrorErr("append audit record", err, map[string]any{"task": string(res.TaskID)})
	}
}

func (e *Executor) notify(res *Result, cause error) {
	if !e.hooks.Enabled() {
		return
	}
	event := webhook.Event{
		Event:       webhook.EventTaskUpToDate,
		TaskID:      string(res.TaskID),
		ExecutionID: res.ExecutionID,
		Metadata:    map[string]any{"duration_ms": res.Duration.Milliseconds()},
	}
	switch res.Outcome {
	case model.OutcomeExecuted:
		event.Event = webhook.EventTaskExecuted
		event.Reasons = reasonMessages(res.Reasons)
	case model.OutcomeFailed:
		event.Event = webhook.EventTaskFailed
		if cause != nil {
			event.Error = cause.Error()
		}
	}
	if err := e.hooks.Send(event, true); err != nil {
		e.logger.ErrorErr("queue webhook", err, map[string]any{"task": string(res.TaskID)})
	}
}

func (e *Executor) recordChanges(reasons []Reason) {
	if e.metrics == nil {
		return
	}
	for _, r := range reasons {
		if r.Detector != "" {
			e.metrics.RecordChange(r.Detector, r.Change)
		}
	}
}

func (e *Executor) recordStoreError(op string) {
	if e.metrics != nil {
		e.metrics.RecordStoreError(op)
	}
}

func reasonMessages(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.Message
	}
	return out
}

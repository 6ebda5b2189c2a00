package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/internal/doctor"
	"github.com/jvs-project/taskstate/internal/gc"
	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/config"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/webhook"
)

func newDoctorCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the state directory for problems",
		Long: `Check configuration, stored records, lock leases, the audit log and
leftover temporary files. With --repair, expired leases and temporary
files are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			doc := doctor.NewDoctor(p.root, p.store, p.locks, p.audit)
			result, err := doc.Check(repair)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := outputJSON(out, result); err != nil {
					return err
				}
			} else {
				for _, f := range result.Findings {
					line := fmt.Sprintf("[%s] %s: %s", severityLabel(f.Severity), f.Category, f.Description)
					if f.Repaired {
						line += " " + color.Success("(repaired)")
					}
					fmt.Fprintln(out, line)
				}
				if result.Healthy {
					fmt.Fprintln(out, color.Success("Healthy"))
				} else {
					fmt.Fprintln(out, color.Error("Unhealthy"))
				}
			}
			if !result.Healthy {
				return errclass.ErrRecordCorrupt.WithMessage("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "remove expired leases and temporary files")
	return cmd
}

func severityLabel(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return color.Dim(s)
	}
}

func newGCCmd() *cobra.Command {
	var (
		file    string
		keepAge time.Duration
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete records of tasks no longer declared",
		Long: `Plan the deletion of stored records whose tasks are not declared in the
task file, then run the plan. With --dry-run the plan is only written and
printed; execute it later with "gc run <plan-id>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			declared, err := p.declaredTasks(file)
			if err != nil {
				return err
			}
			collector := p.collector()
			plan, err := collector.Plan(declared, keepAge)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				if jsonOutput {
					return outputJSON(out, plan)
				}
				fmt.Fprintf(out, "Plan %s: %d records to delete\n", plan.PlanID, len(plan.ToDelete))
				for _, id := range plan.ToDelete {
					fmt.Fprintf(out, "  %s\n", color.TaskID(string(id)))
				}
				return nil
			}
			return p.runGC(cmd, collector, plan.PlanID, declared)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "task file (default: taskstate.yaml in the project root)")
	cmd.Flags().DurationVar(&keepAge, "keep-age", 0, "keep records that completed more recently than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write and print the plan without deleting")

	runCmd := &cobra.Command{
		Use:   "run <plan-id>",
		Short: "Execute a previously written gc plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			declared, err := p.declaredTasks(file)
			if err != nil {
				return err
			}
			return p.runGC(cmd, p.collector(), args[0], declared)
		},
	}
	runCmd.Flags().StringVar(&file, "file", "", "task file (default: taskstate.yaml in the project root)")
	cmd.AddCommand(runCmd)
	return cmd
}

func (p *project) collector() *gc.Collector {
	return gc.NewCollector(filepath.Join(p.root, config.StateDirName), p.store, p.audit)
}

func (p *project) declaredTasks(file string) ([]model.TaskID, error) {
	tf, err := p.loadTasks(file)
	if err != nil {
		return nil, err
	}
	ids := make([]model.TaskID, 0, len(tf.Tasks))
	for _, t := range tf.Tasks {
		ids = append(ids, model.TaskID(t.ID))
	}
	return ids, nil
}

func (p *project) runGC(cmd *cobra.Command, collector *gc.Collector, planID string, declared []model.TaskID) error {
	result, err := collector.Run(planID, declared)
	if err != nil {
		return err
	}
	p.hooks.Send(webhook.Event{
		Event:    webhook.EventRecordsCollected,
		Metadata: map[string]any{"plan_id": result.PlanID, "deleted": len(result.Deleted)},
	}, true)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, result)
	}
	for _, id := range result.Deleted {
		fmt.Fprintf(out, "%s %s\n", color.Success("Deleted"), color.TaskID(string(id)))
	}
	fmt.Fprintf(out, "Collected %d records\n", len(result.Deleted))
	return nil
}

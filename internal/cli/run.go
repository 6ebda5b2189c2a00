package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/internal/execution"
	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
)

type runResult struct {
	*execution.Result
	Error string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	var (
		force    bool
		taskFile string
	)
	cmd := &cobra.Command{
		Use:   "run [<task>...]",
		Short: "Run tasks that are out of date",
		Long: `Run the named tasks, or every declared task, in task file order.

A task is skipped when its signature, input files and output files match
the record of its last successful execution. The first failing task stops
the run and leaves its previous record in place.

Examples:
  taskstate run                  # Run every task in tasks.yaml
  taskstate run compile test     # Run two tasks
  taskstate run --force bundle   # Run even if up to date`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			file, err := p.loadTasks(taskFile)
			if err != nil {
				return err
			}
			specs, err := file.Select(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p.serveMetrics(ctx)

			out := cmd.OutOrStdout()
			taskOut := out
			if jsonOutput {
				taskOut = cmd.ErrOrStderr()
			}

			exec := p.executor(force)
			var results []runResult
			var failure error
			for _, spec := range specs {
				res, err := exec.Execute(ctx, spec.Task(p.root, taskOut, cmd.ErrOrStderr()))
				if res == nil {
					failure = err
					break
				}
				rr := runResult{Result: res}
				if err != nil {
					rr.Error = err.Error()
				}
				results = append(results, rr)
				if !jsonOutput {
					printResult(out, rr)
				}
				if err != nil {
					failure = err
					break
				}
			}

			if jsonOutput {
				if err := outputJSON(out, results); err != nil {
					return err
				}
			}
			return failure
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "run tasks even if they are up to date")
	cmd.Flags().StringVar(&taskFile, "file", "", "task file (default: tasks.yaml, tasks.yml or tasks.toml)")
	return cmd
}

func printResult(w io.Writer, rr runResult) {
	fmt.Fprintf(w, "%s  %s", color.Outcome(rr.Outcome), color.TaskID(string(rr.TaskID)))
	if rr.Outcome != model.OutcomeUpToDate {
		fmt.Fprintf(w, "  %s", color.Dim(fmt.Sprintf("(%dms)", rr.Duration.Milliseconds())))
	}
	fmt.Fprintln(w)
	if rr.Outcome == model.OutcomeExecuted {
		printReasons(w, rr.Reasons, rr.Truncated)
	}
}

func printReasons(w io.Writer, reasons []execution.Reason, truncated bool) {
	for _, r := range reasons {
		fmt.Fprintf(w, "    %s\n", r.Message)
	}
	if truncated {
		fmt.Fprintf(w, "    %s\n", color.Dim("(more reasons not shown)"))
	}
}

// serveMetrics exposes metrics while ctx is live when enabled in config.
func (p *project) serveMetrics(ctx context.Context) {
	if !p.cfg.Metrics.Enabled {
		return
	}
	go func() {
		if err := p.metrics.Serve(ctx, p.cfg.Metrics.Listen); err != nil {
			logging.ErrorErr("serve metrics", err, map[string]any{"listen": p.cfg.Metrics.Listen})
		}
	}()
}

func newStatusCmd() *cobra.Command {
	var (
		stat     bool
		taskFile string
	)
	cmd := &cobra.Command{
		Use:   "status [<task>...]",
		Short: "Show which tasks are out of date and why",
		Long: `Capture the files of the named tasks, or every declared task, and
report whether each is up to date. Nothing is executed or saved.

Examples:
  taskstate status
  taskstate status --stat compile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			file, err := p.loadTasks(taskFile)
			if err != nil {
				return err
			}
			specs, err := file.Select(args)
			if err != nil {
				return err
			}

			exec := p.executor(false)
			plans := make([]*execution.Plan, 0, len(specs))
			for _, spec := range specs {
				plan, err := exec.Plan(cmd.Context(), spec.Task(p.root, io.Discard, io.Discard))
				if err != nil {
					return err
				}
				plans = append(plans, plan)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, plans)
			}
			for _, plan := range plans {
				printPlan(out, plan, stat)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "list changed files per property")
	cmd.Flags().StringVar(&taskFile, "file", "", "task file (default: tasks.yaml, tasks.yml or tasks.toml)")
	return cmd
}

func printPlan(w io.Writer, plan *execution.Plan, stat bool) {
	label := color.Outcome(model.OutcomeUpToDate)
	if !plan.UpToDate {
		label = color.Warning("OUT-OF-DATE")
	}
	fmt.Fprintf(w, "%s  %s\n", label, color.TaskID(string(plan.TaskID)))
	printReasons(w, plan.Reasons, plan.Truncated)
	if !stat {
		return
	}
	for _, s := range plan.Summaries {
		if s.Changes.Empty() {
			continue
		}
		fmt.Fprintf(w, "    %s property '%s':\n", s.Detector, s.Property)
		for _, line := range strings.Split(strings.TrimRight(s.Changes.FormatHuman(), "\n"), "\n") {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/internal/watch"
	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

func newWatchCmd() *cobra.Command {
	var (
		taskFile string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <task>",
		Short: "Report drift of a task's files as they change",
		Long: `Watch the input and output roots of a task and print the difference
from its stored record each time files settle. Output files added by other
tools are not reported. Stops on interrupt.`,
		Args: cobra.ExactArgs(1),
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
			spec := specs[0]

			previous, err := p.store.LoadPrevious(model.TaskID(spec.ID))
			if err != nil {
				return err
			}
			if previous == nil {
				return errclass.ErrTaskNotFound.WithMessagef("no record for task %s; run it first", spec.ID)
			}

			w, err := watch.New(p.snapshotter, previous, spec.Inputs, spec.Outputs, debounce)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p.serveMetrics(ctx)

			errCh := make(chan error, 1)
			go func() { errCh <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for report := range w.Reports() {
				if jsonOutput {
					if err := enc.Encode(report); err != nil {
						return err
					}
					continue
				}
				stamp := color.Dim(report.At.Local().Format(time.TimeOnly))
				if report.UpToDate() {
					fmt.Fprintf(out, "%s  %s  %s\n", stamp, color.TaskID(spec.ID), color.Outcome(model.OutcomeUpToDate))
					continue
				}
				fmt.Fprintf(out, "%s  %s  %s\n", stamp, color.TaskID(spec.ID), color.Warning("DRIFTED"))
				for _, d := range report.Drifts {
					fmt.Fprintf(out, "    %s %s property '%s': %s\n",
						color.Change(string(d.Change.Type)), d.Detector, d.Property, d.Change.Path)
				}
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&taskFile, "file", "", "task file (default: tasks.yaml, tasks.yml or tasks.toml)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "how long file events must settle before re-checking")
	return cmd
}

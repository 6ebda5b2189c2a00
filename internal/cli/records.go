package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/webhook"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task>",
		Short: "Show the stored record of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			id := model.TaskID(args[0])
			rec, err := p.store.LoadPrevious(id)
			if err != nil {
				return err
			}
			if rec == nil {
				return errclass.ErrTaskNotFound.WithMessagef("no record for task %s", id)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, rec)
			}
			fmt.Fprintf(out, "%s %s\n", color.Header("Task:"), color.TaskID(string(rec.TaskID)))
			fmt.Fprintf(out, "Execution: %s\n", rec.ExecutionID)
			fmt.Fprintf(out, "Completed: %s\n", rec.CompletedAt.Format(time.RFC3339))
			if rec.Signature != "" {
				fmt.Fprintf(out, "Signature: %s\n", rec.Signature)
			}
			fmt.Fprintf(out, "Checksum:  %s\n", rec.Checksum)
			printSnapshots(out, "Input", rec.InputFiles)
			printSnapshots(out, "Output", rec.OutputFiles)
			return nil
		},
	}
}

func printSnapshots(w io.Writer, title string, snapshots map[string]model.Snapshot) {
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap := snapshots[name]
		fmt.Fprintf(w, "\n%s property '%s' (%d entries):\n", title, name, snap.Len())
		for _, fp := range snap.All() {
			fmt.Fprintf(w, "  %-5s %s %s\n", fp.Kind, color.Dim(fp.ShortContent()), fp.Path)
		}
	}
}

type listEntry struct {
	TaskID      model.TaskID `json:"task_id"`
	ExecutionID string       `json:"execution_id"`
	CompletedAt time.Time    `json:"completed_at"`
	OutputFiles int          `json:"output_files"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks with a stored record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			ids, err := p.store.List()
			if err != nil {
				return err
			}
			entries := make([]listEntry, 0, len(ids))
			for _, id := range ids {
				rec, err := p.store.LoadPrevious(id)
				if err != nil {
					return err
				}
				if rec == nil {
					continue
				}
				entries = append(entries, listEntry{
					TaskID:      rec.TaskID,
					ExecutionID: rec.ExecutionID,
					CompletedAt: rec.CompletedAt,
					OutputFiles: rec.TotalOutputFiles(),
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No task records.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %d output files\n",
					color.TaskID(string(e.TaskID)), e.CompletedAt.Format(time.RFC3339), e.OutputFiles)
			}
			return nil
		},
	}
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <task>...",
		Short: "Delete stored task records",
		Long: `Delete the stored records of the named tasks. Their next run executes
them as if they had never run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			for _, arg := range args {
				id := model.TaskID(arg)
				if err := p.store.Delete(id); err != nil {
					return err
				}
				if err := p.audit.Append(model.EventTypeRecordForget, id, "", nil); err != nil {
					return fmt.Errorf("append audit record: %w", err)
				}
				p.hooks.Send(webhook.Event{Event: webhook.EventRecordForgotten, TaskID: arg}, true)
				if !jsonOutput {
					fmt.Fprintf(out, "%s %s\n", color.Success("Forgot"), color.TaskID(arg))
				}
			}
			if jsonOutput {
				return outputJSON(out, map[string]any{"forgotten": args})
			}
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/logging"
)

var (
	jsonOutput bool
	noColor    bool
	logLevel   string
	projectDir string

	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskstate",
		Short: "taskstate - incremental task state engine",
		Long: `taskstate runs the tasks declared in a task file and skips the ones
whose input and output files are unchanged since their last successful
execution. Output files added by other tools are tracked but never make a
task out of date.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupGlobals,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "project directory (default: current directory)")

	cmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newShowCmd(),
		newListCmd(),
		newForgetCmd(),
		newVerifyCmd(),
		newWatchCmd(),
		newDoctorCmd(),
		newGCCmd(),
		newConfigCmd(),
	)
	return cmd
}

func setupGlobals(cmd *cobra.Command, args []string) error {
	if noColor || jsonOutput {
		color.Disable()
	} else {
		color.Init(false)
	}
	if logLevel != "" {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.Global().SetLevel(level)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

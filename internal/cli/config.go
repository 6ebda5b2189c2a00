package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <command>",
		Short: "Manage taskstate configuration",
		Long: `Manage configuration stored in .taskstate/config.yaml.

Configuration keys:
  store.backend            - Record store (file, sqlite)
  store.path               - Store location, relative to .taskstate
  capture.hash_cache_size  - File hashes kept between captures
  capture.snapshot_reuse   - Reuse a capture within one execution (true, false)
  lock.lease_ttl           - Task lease duration (e.g. 30m)
  reporting.max_reasons    - Reasons reported per task
  logging.level            - debug, info, warn, error
  logging.format           - text, json
  metrics.enabled          - Serve Prometheus metrics during run and watch
  metrics.listen           - Metrics listen address

Available commands:
  show              - Show current configuration
  set <key> <value> - Set a configuration value
  get <key>         - Get a configuration value`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, cfg)
			}
			fmt.Fprintln(out, "# taskstate configuration")
			fmt.Fprintf(out, "# Location: %s\n\n", config.Path(root))
			for _, key := range config.Keys() {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", key, value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in .taskstate/config.yaml.

Examples:
  taskstate config set store.backend sqlite
  taskstate config set lock.lease_ttl 10m
  taskstate config set reporting.max_reasons 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			key, value := args[0], args[1]
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := config.Save(root, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

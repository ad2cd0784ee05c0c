package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor PLATFORMD_CONFIG is set.
const defaultConfigPath = "/etc/platformd/config.yaml"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "platformd",
		Short:         "Condition-gated service supervisor for the Venus platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(configFlag))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $PLATFORMD_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(newRunCommand(&configFlag))
	rootCmd.AddCommand(newCheckConfigCommand(&configFlag))
	rootCmd.AddCommand(newMigrateCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(*configFlag))
		},
	}
}

func newCheckConfigCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(*configFlag)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK: %s\n", path)
			fmt.Fprintf(out, "  site:               %s (%s)\n", cfg.Site.ID, cfg.Site.Name)
			fmt.Fprintf(out, "  supervisor backend: %s\n", cfg.Supervisor.Backend)
			fmt.Fprintf(out, "  settings service:   %s\n", cfg.Platform.SettingsService)
			fmt.Fprintf(out, "  mqtt broker:        %s:%d\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "platformd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// configPath returns the flag value, then PLATFORMD_CONFIG, then the default.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("PLATFORMD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

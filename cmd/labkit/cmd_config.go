package main

import (
	"fmt"
	"io"

	"github.com/nvandessel/labkit/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage labkit configuration",
		Long: `View and modify labkit configuration settings.

Configuration is stored in <root>/config.yaml (default ~/.labkit/config.yaml).
LABKIT_* environment variables override the file.

Examples:
  labkit config list                             # Show all settings
  labkit config get storage.driver               # Get a specific setting
  labkit config set archive.format bundle        # Set a setting
  labkit config set storage.postgres_dsn '${LABKIT_PG}'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootDir(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			values := make(map[string]any, len(config.Keys()))
			for _, key := range config.Keys() {
				values[key], _ = cfg.Get(key)
			}
			return emit(cmd, values, func(w io.Writer) {
				fmt.Fprintf(w, "Configuration (%s/%s):\n\n", root, config.FileName)
				for _, key := range config.Keys() {
					fmt.Fprintf(w, "  %-28s %s\n", key+":", valueOrDefault(values[key]))
				}
			})
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			root, err := rootDir(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := cfg.Get(key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}
			return emit(cmd, map[string]any{"key": key, "value": value}, func(w io.Writer) {
				fmt.Fprintf(w, "%s = %v\n", key, value)
			})
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			root, err := rootDir(cmd)
			if err != nil {
				return err
			}
			// Environment overrides are not written back.
			cfg, err := config.LoadFileOrDefault(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Save(root); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			shown, _ := cfg.Get(key)
			return emit(cmd, map[string]any{"status": "updated", "key": key, "value": shown}, func(w io.Writer) {
				fmt.Fprintf(w, "Set %s = %v\n", key, shown)
			})
		},
	}
}

// valueOrDefault renders empty values as "(not set)".
func valueOrDefault(v any) string {
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return "(not set)"
	}
	return s
}

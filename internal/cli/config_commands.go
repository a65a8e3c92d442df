// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage console configuration",
		Long: `Configuration management commands for the autokong console.

Commands:
  show  - Display current configuration
  set   - Change one setting in the configuration file
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath resolves the file the config commands operate on.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/autokong/console.ini)
  2. Environment variables (AUTOKONG_URL, AUTOKONG_API_TOKEN)
  3. Command-line flags (--url)

Priority: flags > environment > config file > defaults
Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithFlags(baseURL, "")

			entries := cfg.Entries()
			return render(cmd.OutOrStdout(), entries, func(w *textWriter) {
				w.Println("Current Configuration")
				w.Println("=====================")
				section := ""
				for _, kv := range entries {
					sec, key, _ := strings.Cut(kv.Key, ".")
					if sec != section {
						section = sec
						w.Println()
						w.Printf("[%s]\n", sec)
					}
					w.Printf("  %-26s %s\n", key, kv.Value)
				}
				w.Println()
				w.Printf("Configuration file: %s\n", path)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					w.Println("  (file does not exist - using defaults)")
				}
			})
		},
	}

	return cmd
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Change one setting",
		Long: `Change one setting and save the configuration file.

Keys are written as section.key, as listed by 'config show'.

Examples:
  autokong config set autokong.base_url http://nas.local:5000
  autokong config set monitor.run_poll_interval_ms 500
  autokong config set cache.enabled false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			path, err := configPath()
			if err != nil {
				return err
			}
			// Environment and flags are not applied: only the file changes
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			logger.Info().Str("key", args[0]).Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s updated in %s\n", args[0], path)
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}

			fmt.Fprintf(out, "  %s\n", path)
			fmt.Fprintln(out)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create it with: autokong config set autokong.base_url <url>")
			}

			return nil
		},
	}

	return cmd
}

// Package cli provides the command-line interface for the autokong console.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/version"
)

var (
	// Global flags
	cfgFile      string
	baseURL      string
	verbose      bool
	debug        bool
	outputFormat string

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autokong",
		Short: "Autokong console - launch and follow library maintenance runs",
		Long: `Autokong console ` + version.Version + ` - Built: ` + version.BuildTime + `
Command-line client for an autokong backend.

Launch a run of the maintenance pipeline, follow its progress and logs
until it finishes, read its audit report, and browse run history.

Configuration is read from ~/.config/autokong/console.ini, then
AUTOKONG_URL / AUTOKONG_API_TOKEN, then command-line flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(-1) // zerolog.DebugLevel
			}
			switch outputFormat {
			case formatText, formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("--output must be one of %s, %s, %s", formatText, formatJSON, formatYAML)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "Autokong backend URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "Output format: text, json or yaml")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for autokong.

  bash:        source <(autokong completion bash)
  zsh:         autokong completion zsh > "${fpath[1]}/_autokong"
  fish:        autokong completion fish | source
  powershell:  autokong completion powershell | Out-String | Invoke-Expression`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletion(out)
			}
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so a second Ctrl+C during cleanup is still consumed
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	cancelFunc()

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAttachCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newJobCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the console version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := struct {
				Version   string `json:"version" yaml:"version"`
				BuildTime string `json:"build_time" yaml:"build_time"`
				UserAgent string `json:"user_agent" yaml:"user_agent"`
			}{version.Version, version.BuildTime, version.UserAgent()}
			return render(cmd.OutOrStdout(), info, func(w *textWriter) {
				w.Printf("autokong console %s (built %s)\n", info.Version, info.BuildTime)
			})
		},
	}
}

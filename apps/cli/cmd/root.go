package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/abdul-hamid-achik/hitshot/packages/core/config"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	verboseFlag int // 0=off, 1=-v, 2=-vv
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "hitshot",
	Short: "Fire one HTTP request and see everything that happened.",
	Long: `hitshot sends single HTTP(S) requests and reports the status line,
headers, body and timing, together with an audit trail of the TLS
handshake: what the server presented, whether it asked for a client
certificate and which one was offered.

Requests can be given on the command line or named in a hitshot.yaml
workspace next to the proxies and certificate stores they use.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", getEnvString("HITSHOT_CONFIG", ""), "Path to workspace file (env: HITSHOT_CONFIG)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v for headers and audit trail, -vv for debug logs)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITSHOT_NO_COLOR", false), "Disable colored output (env: HITSHOT_NO_COLOR)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

// newLogger builds the diagnostics logger. Warnings always show; -v adds
// info and -vv debug.
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadWorkspace loads --config, or searches the working directory
func loadWorkspace() (*config.Config, error) {
	ws, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, configError(fmt.Errorf("loading workspace: %w", err))
	}
	return ws, nil
}

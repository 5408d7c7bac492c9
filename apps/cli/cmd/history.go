package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/core/config"
	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/spf13/cobra"
)

var (
	historyPathFlag   string
	historyLimitFlag  int
	historyOutputFlag string
	historyOlderFlag  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded exchanges",
	Long: `List the exchanges recorded by send, newest first.

Examples:
  hitshot history
  hitshot history --limit 5 -o json
  hitshot history show 3f2a9c1e 7
  hitshot history prune --older-than 168h`,
	Args: cobra.NoArgs,
	RunE: historyListCommand,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session> <reference-id>",
	Short: "Show one recorded exchange",
	Long: `Show one recorded exchange in full. The session may be abbreviated to
any unambiguous prefix, as printed by hitshot history.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(2)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	},
	RunE: historyShowCommand,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old recorded exchanges",
	Args:  cobra.NoArgs,
	RunE:  historyPruneCommand,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyPathFlag, "history", getEnvString("HITSHOT_HISTORY", ""), "History database path (env: HITSHOT_HISTORY)")
	historyCmd.PersistentFlags().StringVarP(&historyOutputFlag, "output", "o", getEnvString("HITSHOT_OUTPUT", "console"), "Output format: console, json (env: HITSHOT_OUTPUT)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 20, "Number of entries to show, 0 for all")
	historyPruneCmd.Flags().DurationVar(&historyOlderFlag, "older-than", 30*24*time.Hour, "Delete entries older than this")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

func openHistoryStore() (*history.Store, error) {
	path := historyPathFlag
	if path == "" {
		ws, err := loadWorkspace()
		if err != nil {
			return nil, err
		}
		path = ws.ResolvePath(ws.Defaults.History)
	}
	if path == "" {
		path = config.DefaultHistoryPath
	}

	store, err := history.Open(path)
	if err != nil {
		return nil, configError(err)
	}
	return store, nil
}

func historyFormatter(cmd *cobra.Command) (Formatter, error) {
	return newFormatter(formatterOptions{
		format:  historyOutputFlag,
		writer:  cmd.OutOrStdout(),
		verbose: verboseFlag > 0,
		noColor: noColorFlag,
		headers: true,
	})
}

func historyListCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	formatter, err := historyFormatter(cmd)
	if err != nil {
		return err
	}

	entries, err := store.List(context.Background(), historyLimitFlag)
	if err != nil {
		return err
	}
	formatter.FormatHistory(entries)
	return flush(formatter, 0)
}

func historyShowCommand(cmd *cobra.Command, args []string) error {
	ref, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return usageError(fmt.Errorf("invalid reference id %q", args[1]))
	}

	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	formatter, err := historyFormatter(cmd)
	if err != nil {
		return err
	}

	entry, err := store.Get(context.Background(), args[0], ref)
	if errors.Is(err, history.ErrNotFound) {
		return usageError(err)
	}
	if err != nil {
		return err
	}

	formatter.FormatResponse(entry.Request(), entry.Response())
	return flush(formatter, 0)
}

func historyPruneCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(context.Background(), time.Now().Add(-historyOlderFlag))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries\n", n)
	return nil
}

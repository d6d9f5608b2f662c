package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hbomb79/Reel/internal"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/spf13/cobra"
)

// HistoryStore queries the ledger for the records of a URL.
type HistoryStore interface {
	History(ctx context.Context, url string) ([]ledger.Record, error)
}

var historyCmd = &cobra.Command{
	Use:   "history <url>",
	Short: "List the recorded outcomes of jobs for a URL",
	Long: `Prints every ledger record for the URL provided, most recent first.

Note that the in-memory ledger does not persist between runs; configure the
postgres ledger backend for a useful history.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	reel, err := internal.New(*GetConfig())
	if err != nil {
		return err
	}
	defer reel.Close()

	return RunHistoryWithDependencies(cmd.Context(), reel, args[0], cmd.OutOrStdout())
}

// RunHistoryWithDependencies runs the history command with injected dependencies (for testing)
func RunHistoryWithDependencies(ctx context.Context, store HistoryStore, url string, output OutputWriter) error {
	records, err := store.History(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to query history for %s: %w", url, err)
	}

	if len(records) == 0 {
		fmt.Fprintf(output, "No jobs recorded for %s\n", url)
		return nil
	}

	w := tabwriter.NewWriter(output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tMODE\tSTATUS\tSTAGE\tFILE\tERROR")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			record.CreatedAt.Local().Format(time.DateTime),
			record.Mode,
			record.Status,
			record.Stage,
			deref(record.Filename),
			deref(record.ErrorKind),
		)
	}

	return w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}

	return *s
}


package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Reel/internal"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job pipeline and REST API until interrupted",
	Long: `Starts the bounded pipeline worker pool and the REST API. Jobs may be
submitted, inspected and cancelled over HTTP; outstanding jobs are cancelled
(and recorded) when the server receives SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reel, err := internal.New(*GetConfig())
	if err != nil {
		return err
	}
	defer reel.Close()

	return reel.Serve(ctx)
}

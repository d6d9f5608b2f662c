package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hbomb79/Reel/internal"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	fetchMode      string
	fetchOutputDir string
)

// ErrJobFailed is returned by the fetch command when the job completed
// without producing a usable artifact.
var ErrJobFailed = errors.New("job did not succeed")

// JobExecutor runs a single job to completion.
type JobExecutor interface {
	Fetch(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Acquire media from a URL and wait for the result",
	Long: `Resolves the URL, downloads the streams needed for the mode requested and
writes a single file to the output directory. Interrupting the command
cancels the job; partially downloaded files are removed.

Modes:
  video_only  the best video stream in the target container
  audio_only  the best audio stream, converted to mp3
  combined    the best video and audio streams, muxed together

Example:
  reel fetch https://www.youtube.com/watch?v=dQw4w9WgXcQ --mode combined --out ~/Videos`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchMode, "mode", media.Combined.String(), "acquisition mode (video_only, audio_only, combined)")
	fetchCmd.Flags().StringVar(&fetchOutputDir, "out", "", "directory to write the artifact to (default from config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	config := GetConfig()

	mode, err := media.ParseMode(fetchMode)
	if err != nil {
		return err
	}

	outputDir := config.OutputDirectory
	if fetchOutputDir != "" {
		if outputDir, err = homedir.Expand(fetchOutputDir); err != nil {
			return fmt.Errorf("failed to expand output directory: %w", err)
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reel, err := internal.New(*config)
	if err != nil {
		return err
	}
	defer reel.Close()

	spec := media.JobSpec{URL: args[0], OutputDirectory: outputDir, Mode: mode}
	return RunFetchWithDependencies(ctx, reel, spec, cmd.OutOrStdout())
}

// RunFetchWithDependencies runs the fetch command with injected dependencies (for testing)
func RunFetchWithDependencies(ctx context.Context, executor JobExecutor, spec media.JobSpec, output OutputWriter) error {
	fmt.Fprintf(output, "Fetching %s (%s)...\n", spec.URL, spec.Mode)

	outcome, err := executor.Fetch(ctx, spec)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case media.Success:
		fmt.Fprintf(output, "Successfully created: %s (%s)\n", outcome.ProducedPath, outcome.Duration().Round(time.Millisecond))
		return nil
	case media.PartialFailure:
		fmt.Fprintf(output, "Partial artifact kept: %s\n", outcome.ProducedPath)
	}

	for _, stageErr := range outcome.Errors {
		fmt.Fprintf(output, "  [%s] %v\n", media.ErrorKind(stageErr), stageErr)
	}

	return fmt.Errorf("%w: %s (%s)", ErrJobFailed, outcome.Status, outcome.ErrorKind())
}

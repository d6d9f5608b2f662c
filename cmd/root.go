package cmd

import (
	"fmt"
	"os"

	"github.com/hbomb79/Reel/internal"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "~/.config/reel/config.yaml"

var (
	cfgFile string
	envFile string
	cfg     *internal.ReelConfig
)

var rootCmd = &cobra.Command{
	Use:   "reel",
	Short: "Acquire media from a URL as video, audio, or both",
	Long: `reel resolves a media URL in to its available streams, downloads the
most suitable of them and (where required) transcodes the result in to a
single playable file. Every job outcome is recorded in the ledger.

Example:
  reel fetch https://www.youtube.com/watch?v=dQw4w9WgXcQ --mode audio_only
  reel serve --config ~/.config/reel/config.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load in to the environment before reading config")
}

// loadConfig loads the dotenv file (if present) in to the environment, and then
// populates the config from the config file and the environment.
func loadConfig() error {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	config := &internal.ReelConfig{}
	if err := config.LoadFromFile(cfgFile); err != nil {
		return err
	}

	cfg = config
	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *internal.ReelConfig {
	return cfg
}

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/hbomb79/Reel/internal/api"
	"github.com/hbomb79/Reel/internal/database"
	"github.com/hbomb79/Reel/internal/fetch"
	"github.com/hbomb79/Reel/internal/ffmpeg"
	"github.com/hbomb79/Reel/internal/pipeline"
	"github.com/hbomb79/Reel/internal/source"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const (
	LedgerBackendMemory   = "memory"
	LedgerBackendPostgres = "postgres"
)

// ReelConfig is the struct used to contain the
// various user config supplied by file, or
// the environment.
type ReelConfig struct {
	Source     source.Config           `yaml:"source"`
	Fetch      fetch.Config            `yaml:"fetch"`
	Format     ffmpeg.Config           `yaml:"formatter"`
	Pipeline   pipeline.Config         `yaml:"pipeline"`
	Database   database.DatabaseConfig `yaml:"database"`
	RestConfig api.RestConfig          `yaml:"api"`

	// LedgerBackend selects where job outcomes are recorded; 'postgres'
	// requires the database config, 'memory' does not persist between runs.
	LedgerBackend   string `yaml:"ledger_backend" env:"LEDGER_BACKEND" env-default:"memory"`
	OutputDirectory string `yaml:"output_dir" env:"OUTPUT_DIR" env-default:"~/Downloads/reel"`
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// LoadFromFile loads a configuration file formatted in YAML in to
// the ReelConfig, with environment variables taking precedence. If
// the path is empty, or the file does not exist, only the environment
// (and defaults) are used.
func (config *ReelConfig) LoadFromFile(configPath string) error {
	path, err := homedir.Expand(configPath)
	if err != nil {
		return fmt.Errorf("failed to expand config path %s: %w", configPath, err)
	}

	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		if err := cleanenv.ReadConfig(path, config); err != nil {
			return fmt.Errorf("failed to load configuration from %s - %w", path, err)
		}
	} else {
		if path != "" && !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("failed to stat config file %s: %w", path, statErr)
		}

		if err := cleanenv.ReadEnv(config); err != nil {
			return fmt.Errorf("failed to load configuration from environment - %w", err)
		}
	}

	return config.normalize()
}

// normalize expands user-relative paths and checks the values which
// cannot be expressed via struct tags.
func (config *ReelConfig) normalize() error {
	for _, path := range []*string{&config.OutputDirectory, &config.Pipeline.ScratchDirectory} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *path, err)
		}
		*path = expanded
	}

	switch config.LedgerBackend {
	case LedgerBackendMemory, LedgerBackendPostgres:
	default:
		return fmt.Errorf("unknown ledger backend '%s' (expected '%s' or '%s')", config.LedgerBackend, LedgerBackendMemory, LedgerBackendPostgres)
	}

	if config.Pipeline.Parallelism <= 0 {
		return fmt.Errorf("pipeline parallelism must be positive (got %d)", config.Pipeline.Parallelism)
	}

	return nil
}

// Redacted returns a copy of the config with any secrets masked, for
// use in log output.
func (config ReelConfig) Redacted() ReelConfig {
	config.Database = config.Database.Redacted()
	return config
}

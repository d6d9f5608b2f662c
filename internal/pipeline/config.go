package pipeline

import "time"

type Config struct {
	// ScratchDirectory is the parent directory of each job's private scratch
	// directory. Defaults to a 'reel' directory inside the OS temp dir.
	ScratchDirectory string `yaml:"scratch_dir" env:"PIPELINE_SCRATCH_DIR"`

	// FetchAttempts bounds the number of attempts made for each stream fetch when
	// the failure is a transient network error.
	FetchAttempts        int           `yaml:"fetch_attempts" env:"PIPELINE_FETCH_ATTEMPTS" env-default:"3"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"PIPELINE_RETRY_INITIAL_INTERVAL" env-default:"500ms"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval" env:"PIPELINE_RETRY_MAX_INTERVAL" env-default:"10s"`

	// KeepPartialArtifacts publishes the fetched video of a Combined job when
	// muxing fails, reporting the job as a PartialFailure rather than a Failure.
	KeepPartialArtifacts bool `yaml:"keep_partial_artifacts" env:"PIPELINE_KEEP_PARTIAL_ARTIFACTS" env-default:"false"`

	// JobTimeout, if non-zero, is the deadline applied to every job.
	JobTimeout time.Duration `yaml:"job_timeout" env:"PIPELINE_JOB_TIMEOUT" env-default:"0s"`

	// Parallelism is the number of jobs which may execute concurrently.
	Parallelism int `yaml:"parallelism" env:"PIPELINE_PARALLELISM" env-default:"2"`

	// HistoryLimit is the number of completed jobs retained in memory for
	// status queries. The ledger is the durable record.
	HistoryLimit int `yaml:"history_limit" env:"PIPELINE_HISTORY_LIMIT" env-default:"256"`
}

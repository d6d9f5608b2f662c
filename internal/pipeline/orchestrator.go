package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/source"
	"github.com/hbomb79/Reel/pkg/logger"
)

var log = logger.Get("Pipeline")

const ledgerWriteTimeout = 10 * time.Second

type (
	Resolver interface {
		Resolve(ctx context.Context, url string) (*media.MediaSource, error)
		TargetContainer() string
	}

	Fetcher interface {
		Fetch(ctx context.Context, stream media.StreamDescriptor, destDir string) (*media.FetchResult, error)
	}

	Transcoder interface {
		ExtractAudio(ctx context.Context, inputPath string) (*media.FetchResult, error)
		Mux(ctx context.Context, videoPath string, audioPath string) (*media.FetchResult, error)
	}

	Ledger interface {
		Record(ctx context.Context, outcome *media.JobOutcome) (ledger.Record, error)
	}

	// StageListener is notified each time a job transitions between stages.
	StageListener func(jobID uuid.UUID, stage media.Stage)

	// Orchestrator composes the resolver, fetcher and transcoder in to the
	// pipeline required for each job mode. It owns every intermediate
	// file a job creates, and records exactly one ledger entry per job.
	Orchestrator struct {
		config     Config
		resolver   Resolver
		fetcher    Fetcher
		transcoder Transcoder
		ledger     Ledger
		observer   Observer
	}
)

func NewOrchestrator(config Config, resolver Resolver, fetcher Fetcher, transcoder Transcoder, ledger Ledger, observer Observer) *Orchestrator {
	if config.FetchAttempts <= 0 {
		config.FetchAttempts = 1
	}
	if config.RetryInitialInterval <= 0 {
		config.RetryInitialInterval = 500 * time.Millisecond
	}
	if config.RetryMaxInterval <= 0 {
		config.RetryMaxInterval = 10 * time.Second
	}
	if config.ScratchDirectory == "" {
		config.ScratchDirectory = filepath.Join(os.TempDir(), "reel")
	}
	if observer == nil {
		observer = noopObserver{}
	}

	return &Orchestrator{config, resolver, fetcher, transcoder, ledger, observer}
}

// Run validates and executes the job, blocking until it completes. An error is
// returned only if the JobSpec is invalid, in which case no work is
// performed and nothing is recorded. Otherwise, the terminal outcome
// (which may be a failure) is returned.
func (orchestrator *Orchestrator) Run(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return orchestrator.RunJob(ctx, uuid.New(), spec, nil), nil
}

// RunJob executes a pre-validated job using the ID given. The listener, if
// non-nil, is notified of each stage transition.
func (orchestrator *Orchestrator) RunJob(ctx context.Context, jobID uuid.UUID, spec media.JobSpec, listener StageListener) *media.JobOutcome {
	if orchestrator.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, orchestrator.config.JobTimeout)
		defer cancel()
	}

	job := &jobRun{
		orchestrator:  orchestrator,
		spec:          spec,
		listener:      listener,
		intermediates: make(map[string]struct{}),
		outcome: &media.JobOutcome{
			JobID:     jobID,
			URL:       spec.URL,
			Mode:      spec.Mode,
			Status:    media.Failure,
			Stage:     media.Resolving,
			StartedAt: time.Now(),
		},
	}

	log.Emit(logger.NEW, "Starting job %s %s\n", jobID, spec)
	if listener != nil {
		listener(jobID, media.Resolving)
	}

	job.execute(ctx)
	job.cleanup()
	job.outcome.FinishedAt = time.Now()

	orchestrator.record(ctx, job.outcome)
	if job.outcome.Status == media.Success {
		log.Emit(logger.SUCCESS, "Job %s complete in %s: %s\n", jobID, job.outcome.Duration().Round(time.Millisecond), job.outcome.ProducedPath)
	} else {
		log.Emit(logger.STOP, "Job %s ended with status %s: %v\n", jobID, job.outcome.Status, job.outcome.Err())
	}

	return job.outcome
}

// record writes the outcome to the ledger. The write is detached from
// the job's context so that cancelled jobs are still recorded.
func (orchestrator *Orchestrator) record(ctx context.Context, outcome *media.JobOutcome) {
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	start := time.Now()
	_, err := orchestrator.ledger.Record(ledgerCtx, outcome)
	orchestrator.observer.Observe("ledger.record", time.Since(start), err)
	if err != nil {
		log.Emit(logger.ERROR, "Outcome of job %s could not be recorded: %v\n", outcome.JobID, err)
	}
}

// jobRun holds the mutable state of a single execution of the pipeline.
type jobRun struct {
	orchestrator  *Orchestrator
	spec          media.JobSpec
	listener      StageListener
	scratchDir    string
	source        *media.MediaSource
	intermediates map[string]struct{}
	mu            sync.Mutex
	outcome       *media.JobOutcome
}

func (job *jobRun) execute(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		job.abort(ctx, err)
		return
	}

	if err := job.createScratchDir(); err != nil {
		job.abort(ctx, err)
		return
	}

	var selection source.Selection
	err := job.observe("resolve", func() error {
		src, err := job.orchestrator.resolver.Resolve(ctx, job.spec.URL)
		if err != nil {
			return err
		}

		job.source = src
		selection, err = source.Select(src, job.spec.Mode, job.orchestrator.resolver.TargetContainer())
		return err
	})
	if err != nil {
		job.abort(ctx, err)
		return
	}

	if !job.transition(media.Fetching) {
		return
	}

	var artifact *media.FetchResult
	switch job.spec.Mode {
	case media.VideoOnly:
		artifact, err = job.fetchWithRetry(ctx, *selection.Video)
	case media.AudioOnly:
		artifact, err = job.runAudioOnly(ctx, selection)
	case media.Combined:
		artifact, err = job.runCombined(ctx, selection)
	default:
		err = fmt.Errorf("%w: unknown mode %d", media.ErrInvalidJobSpec, job.spec.Mode)
	}
	if err != nil {
		job.abort(ctx, err)
		return
	}

	job.finalize(ctx, artifact, media.Success)
}

// runAudioOnly fetches the selected audio (or progressive) stream and converts
// it to the audio output format. The fetched stream is deleted once the
// conversion has succeeded.
func (job *jobRun) runAudioOnly(ctx context.Context, selection source.Selection) (*media.FetchResult, error) {
	stream := selection.Audio
	if selection.NeedsExtraction {
		stream = selection.Video
	}

	fetched, err := job.fetchWithRetry(ctx, *stream)
	if err != nil {
		return nil, err
	}

	if !job.transition(media.Transcoding) {
		return nil, &illegalTransitionError{job.outcome.Stage, media.Transcoding}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var audio *media.FetchResult
	err = job.observe("transcode.extract_audio", func() (err error) {
		audio, err = job.orchestrator.transcoder.ExtractAudio(ctx, fetched.LocalPath)
		return err
	})
	if err != nil {
		return nil, err
	}

	job.track(audio.LocalPath)
	job.discard(fetched.LocalPath)
	return audio, nil
}

// runCombined fetches the video and audio legs concurrently, then muxes
// them. If either fetch fails the other is cancelled, and no mux is
// attempted.
func (job *jobRun) runCombined(ctx context.Context, selection source.Selection) (*media.FetchResult, error) {
	fetchCtx, cancelFetches := context.WithCancel(ctx)
	defer cancelFetches()

	legs := []<-chan fetchOutcome{
		job.startFetch(fetchCtx, *selection.Video),
		job.startFetch(fetchCtx, *selection.Audio),
	}

	// Both legs must deliver before we continue, even after a failure, so that
	// a leg which completes after it's sibling has failed can be discarded.
	results := make([]*media.FetchResult, len(legs))
	var firstFailure error
	for i, leg := range legs {
		outcome := <-leg
		results[i] = outcome.result
		if outcome.err != nil && firstFailure == nil {
			firstFailure = outcome.err
			cancelFetches()
		}
	}

	if firstFailure != nil {
		for _, res := range results {
			if res != nil {
				job.discard(res.LocalPath)
			}
		}

		return nil, firstFailure
	}

	video, audio := results[0], results[1]
	if !job.transition(media.Transcoding) {
		return nil, &illegalTransitionError{job.outcome.Stage, media.Transcoding}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var muxed *media.FetchResult
	err := job.observe("transcode.mux", func() (err error) {
		muxed, err = job.orchestrator.transcoder.Mux(ctx, video.LocalPath, audio.LocalPath)
		return err
	})
	if err != nil {
		if job.orchestrator.config.KeepPartialArtifacts && !media.IsCancelled(err) && ctx.Err() == nil {
			return nil, &partialArtifactError{artifact: video, discard: audio, cause: err}
		}

		return nil, err
	}

	job.track(muxed.LocalPath)
	job.discard(video.LocalPath)
	job.discard(audio.LocalPath)
	return muxed, nil
}

// fetchOutcome is the terminal value of a fetch started with startFetch. Exactly
// one of result or err is set.
type fetchOutcome struct {
	result *media.FetchResult
	err    error
}

// startFetch runs fetchWithRetry in a new goroutine. The returned channel
// delivers exactly one outcome and is then closed.
func (job *jobRun) startFetch(ctx context.Context, stream media.StreamDescriptor) <-chan fetchOutcome {
	out := make(chan fetchOutcome, 1)
	go func() {
		defer close(out)

		res, err := job.fetchWithRetry(ctx, stream)
		out <- fetchOutcome{result: res, err: err}
	}()

	return out
}

// fetchWithRetry fetches the stream, retrying transient network failures up
// to the configured number of attempts using exponential backoff. The fetched
// file is tracked as an intermediate of this job.
func (job *jobRun) fetchWithRetry(ctx context.Context, stream media.StreamDescriptor) (*media.FetchResult, error) {
	var result *media.FetchResult
	attempt := 0
	operation := func() error {
		attempt++
		var res *media.FetchResult
		err := job.observe("fetch", func() (err error) {
			res, err = job.orchestrator.fetcher.Fetch(ctx, stream, job.scratchDir)
			return err
		})
		if err == nil {
			result = res
			return nil
		}
		if media.IsTransient(err) && ctx.Err() == nil {
			return err
		}

		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = job.orchestrator.config.RetryInitialInterval
	policy.MaxInterval = job.orchestrator.config.RetryMaxInterval
	policy.MaxElapsedTime = 0

	retries := uint64(job.orchestrator.config.FetchAttempts - 1)
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), func(err error, wait time.Duration) {
		log.Emit(logger.WARNING, "Fetch of stream %s for job %s failed (attempt %d/%d), retrying in %s: %v\n", stream.ID, job.outcome.JobID, attempt, job.orchestrator.config.FetchAttempts, wait.Round(time.Millisecond), err)
	})
	if err != nil {
		return nil, err
	}

	job.track(result.LocalPath)
	return result, nil
}

// finalize moves the artifact in to the output directory and marks
// the job as complete with the status given.
func (job *jobRun) finalize(ctx context.Context, artifact *media.FetchResult, status media.Status) {
	if !job.transition(media.Finalizing) {
		return
	}

	if err := ctx.Err(); err != nil {
		job.abort(ctx, err)
		return
	}

	var producedPath string
	err := job.observe("publish", func() (err error) {
		producedPath, err = publish(artifact.LocalPath, job.spec.OutputDirectory, job.outputName(artifact.LocalPath))
		return err
	})
	if err != nil {
		job.abort(ctx, err)
		return
	}

	job.untrack(artifact.LocalPath)
	job.outcome.ProducedPath = producedPath
	job.outcome.Status = status
	job.transition(media.Done)
}

// abort records the error against the current stage, and moves the job
// to the Aborted stage. Errors caused by cancellation are normalized to
// FetchError{Cancelled}. A partialArtifactError instead publishes it's
// artifact and completes the job as a PartialFailure.
func (job *jobRun) abort(ctx context.Context, err error) {
	if partial, ok := err.(*partialArtifactError); ok {
		job.outcome.Errors = append(job.outcome.Errors, media.StageError{Stage: job.outcome.Stage, Err: partial.cause})
		job.discard(partial.discard.LocalPath)
		job.finalize(ctx, partial.artifact, media.PartialFailure)
		return
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !media.IsCancelled(err) {
		log.Emit(logger.DEBUG, "Job %s error %v occurred after cancellation\n", job.outcome.JobID, err)
		err = media.NewCancelledError(job.spec.URL, ctxErr)
	} else if media.IsCancelled(err) {
		if _, ok := err.(*media.FetchError); !ok {
			err = media.NewCancelledError(job.spec.URL, err)
		}
	}

	job.outcome.Errors = append(job.outcome.Errors, media.StageError{Stage: job.outcome.Stage, Err: err})
	job.outcome.Status = media.Failure
	job.outcome.ProducedPath = ""
	job.transition(media.Aborted)
}

// transition moves the job to the next stage, returning false if the
// transition is not permitted by the state machine (in which case the
// job is aborted).
func (job *jobRun) transition(to media.Stage) bool {
	from := job.outcome.Stage
	if !canTransition(from, to) {
		log.Emit(logger.ERROR, "Job %s attempted illegal transition %s -> %s\n", job.outcome.JobID, from, to)
		if to != media.Aborted && canTransition(from, media.Aborted) {
			job.outcome.Errors = append(job.outcome.Errors, media.StageError{Stage: from, Err: &illegalTransitionError{from, to}})
			job.outcome.Status = media.Failure
			job.transition(media.Aborted)
		}

		return false
	}

	log.Emit(logger.DEBUG, "Job %s: %s -> %s\n", job.outcome.JobID, from, to)
	job.outcome.Stage = to
	if job.listener != nil {
		job.listener(job.outcome.JobID, to)
	}

	return true
}

func (job *jobRun) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	job.orchestrator.observer.Observe(operation, time.Since(start), err)

	return err
}

func (job *jobRun) createScratchDir() error {
	root := job.orchestrator.config.ScratchDirectory
	if err := os.MkdirAll(root, os.ModeDir|0o755); err != nil {
		return &media.FetchError{Kind: media.Disk, SourceURL: job.spec.URL, Err: fmt.Errorf("cannot create scratch root: %w", err)}
	}

	dir, err := os.MkdirTemp(root, "job-"+job.outcome.JobID.String()+"-")
	if err != nil {
		return &media.FetchError{Kind: media.Disk, SourceURL: job.spec.URL, Err: fmt.Errorf("cannot create scratch dir: %w", err)}
	}

	job.scratchDir = dir
	return nil
}

// outputName derives the published name of the artifact from the media
// title, keeping the artifact's extension.
func (job *jobRun) outputName(artifactPath string) string {
	title := ""
	if job.source != nil {
		title = job.source.Title
	}

	return media.Slugify(title) + filepath.Ext(artifactPath)
}

func (job *jobRun) track(path string) {
	job.mu.Lock()
	defer job.mu.Unlock()

	job.intermediates[path] = struct{}{}
}

func (job *jobRun) untrack(path string) {
	job.mu.Lock()
	defer job.mu.Unlock()

	delete(job.intermediates, path)
}

// discard deletes an intermediate file that is no longer required.
func (job *jobRun) discard(path string) {
	job.untrack(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Emit(logger.ERROR, "Failed to remove intermediate %s for job %s: %v\n", path, job.outcome.JobID, err)
	}
}

// cleanup removes every intermediate still owned by the job, followed by
// the job's scratch directory.
func (job *jobRun) cleanup() {
	job.mu.Lock()
	remaining := make([]string, 0, len(job.intermediates))
	for path := range job.intermediates {
		remaining = append(remaining, path)
	}
	job.mu.Unlock()

	for _, path := range remaining {
		job.discard(path)
	}

	if job.scratchDir != "" {
		if err := os.RemoveAll(job.scratchDir); err != nil {
			log.Emit(logger.ERROR, "Failed to remove scratch directory %s: %v\n", job.scratchDir, err)
		}
	}
}

// partialArtifactError is used internally to carry a usable artifact
// out of a failed Combined job when partial artifacts are retained.
type partialArtifactError struct {
	artifact *media.FetchResult
	discard  *media.FetchResult
	cause    error
}

func (e *partialArtifactError) Error() string { return e.cause.Error() }
func (e *partialArtifactError) Unwrap() error { return e.cause }

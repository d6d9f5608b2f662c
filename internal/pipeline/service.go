package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/event"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/hbomb79/Reel/pkg/worker"
)

var (
	ErrJobNotFound      = errors.New("job does not exist")
	ErrJobComplete      = errors.New("job has already completed")
	ErrServiceNotActive = errors.New("pipeline service is not accepting jobs")
)

type (
	JobState int

	// JobRunner executes a single job to completion; satisfied by *Orchestrator.
	JobRunner interface {
		RunJob(ctx context.Context, jobID uuid.UUID, spec media.JobSpec, listener StageListener) *media.JobOutcome
	}

	// Job is a unit of work submitted to the Service. A Job is queued until
	// a worker claims it, after which it runs to completion and it's outcome
	// becomes available.
	Job struct {
		mu          sync.Mutex
		id          uuid.UUID
		spec        media.JobSpec
		state       JobState
		stage       media.Stage
		outcome     *media.JobOutcome
		submittedAt time.Time
		ctx         context.Context
		cancel      context.CancelFunc
		done        chan struct{}
	}

	// Service accepts jobs without blocking the caller, and executes them on a
	// bounded pool of workers. Each job is executed by the orchestrator.
	Service struct {
		*sync.Mutex
		config       Config
		orchestrator JobRunner
		eventBus     event.EventDispatcher
		workerPool   *worker.WorkerPool

		jobs      []*Job
		jobLookup map[uuid.UUID]*Job

		baseCtx    context.Context
		baseCancel context.CancelFunc
		accepting  bool
	}
)

const (
	Queued JobState = iota
	Running
	Complete
)

func (s JobState) String() string {
	switch s {
	case Queued:
		return fmt.Sprintf("QUEUED[%d]", s)
	case Running:
		return fmt.Sprintf("RUNNING[%d]", s)
	case Complete:
		return fmt.Sprintf("COMPLETE[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}

// NewService creates a pipeline service which uses the runner provided to execute
// jobs. Jobs may be submitted before the service is Run, but will not
// begin executing until it is.
func NewService(config Config, orchestrator JobRunner, eventBus event.EventDispatcher) (*Service, error) {
	if config.Parallelism <= 0 {
		return nil, fmt.Errorf("pipeline parallelism must be positive (got %d)", config.Parallelism)
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 256
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	service := &Service{
		Mutex:        &sync.Mutex{},
		config:       config,
		orchestrator: orchestrator,
		eventBus:     eventBus,
		workerPool:   worker.NewWorkerPool(),
		jobs:         make([]*Job, 0),
		jobLookup:    make(map[uuid.UUID]*Job),
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		accepting:    true,
	}

	for i := 0; i < config.Parallelism; i++ {
		label := fmt.Sprintf("pipeline-worker-%d", i)
		if err := service.workerPool.PushWorker(worker.NewWorker(label, service.performJob)); err != nil {
			return nil, err
		}
	}

	return service, nil
}

// Run starts the worker pool, and blocks until the context is cancelled. On
// cancellation every outstanding job is cancelled, and Run waits for
// the workers to record their outcomes before returning.
func (service *Service) Run(ctx context.Context) error {
	if err := service.workerPool.Start(); err != nil {
		return err
	}

	service.wakeupWorkerPool()
	<-ctx.Done()

	log.Emit(logger.STOP, "Pipeline service stopping, cancelling outstanding jobs...\n")
	service.Lock()
	service.accepting = false
	service.Unlock()

	service.baseCancel()
	service.wakeupWorkerPool()
	service.workerPool.Close()

	log.Emit(logger.STOP, "Pipeline service stopped\n")
	return nil
}

// Submit validates and enqueues a job, returning immediately. The job is
// cancelled if the context given is cancelled before the job completes; callers
// wishing to detach the job from their own lifetime should use a
// non-cancellable context.
func (service *Service) Submit(ctx context.Context, spec media.JobSpec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	service.Lock()
	if !service.accepting {
		service.Unlock()
		return nil, ErrServiceNotActive
	}

	jobCtx, jobCancel := context.WithCancel(service.baseCtx)
	stop := context.AfterFunc(ctx, jobCancel)
	job := &Job{
		id:          uuid.New(),
		spec:        spec,
		state:       Queued,
		stage:       media.Resolving,
		submittedAt: time.Now(),
		ctx:         jobCtx,
		cancel: func() {
			stop()
			jobCancel()
		},
		done: make(chan struct{}),
	}

	service.jobs = append(service.jobs, job)
	service.jobLookup[job.id] = job
	service.Unlock()

	log.Emit(logger.NEW, "Queued job %s %s\n", job.id, spec)

	service.dispatch(event.JOB_UPDATE, job.id)
	service.wakeupWorkerPool()
	return job, nil
}

// Execute submits the job and waits for it's outcome. If the context is
// cancelled while waiting, the job is cancelled and it's (cancelled)
// outcome is returned once available.
func (service *Service) Execute(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error) {
	job, err := service.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}

	<-job.Done()
	return job.Outcome(), nil
}

// CancelJob cancels the job with the ID given. Queued jobs are
// aborted without any work being done; running jobs are interrupted.
func (service *Service) CancelJob(id uuid.UUID) error {
	job := service.GetJob(id)
	if job == nil {
		return ErrJobNotFound
	}
	if job.State() == Complete {
		return ErrJobComplete
	}

	log.Emit(logger.REMOVE, "Cancelling job %s\n", id)
	job.cancel()
	return nil
}

// GetJob returns the job with the ID given, or nil if no such job is known.
func (service *Service) GetJob(id uuid.UUID) *Job {
	service.Lock()
	defer service.Unlock()

	return service.jobLookup[id]
}

// AllJobs returns a snapshot of all the jobs known to the service, oldest first.
func (service *Service) AllJobs() []*Job {
	service.Lock()
	defer service.Unlock()

	out := make([]*Job, len(service.jobs))
	copy(out, service.jobs)
	return out
}

// performJob is the worker function for the Service's WorkerPool. It
// claims the oldest queued job and executes it.
func (service *Service) performJob(w worker.Worker) (bool, error) {
	job := service.claimQueuedJob()
	if job == nil {
		return false, nil
	}

	log.Emit(logger.DEBUG, "Worker %s claimed job %s\n", w.Label(), job.id)
	outcome := service.orchestrator.RunJob(job.ctx, job.id, job.spec, service.onStageChange)
	job.complete(outcome)

	service.dispatch(event.JOB_COMPLETE, job.id)
	service.pruneHistory()
	return true, nil
}

func (service *Service) claimQueuedJob() *Job {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.State() == Queued {
			job.setState(Running)
			return job
		}
	}

	return nil
}

func (service *Service) onStageChange(jobID uuid.UUID, stage media.Stage) {
	if job := service.GetJob(jobID); job != nil {
		job.setStage(stage)
	}

	service.dispatch(event.JOB_UPDATE, jobID)
}

// pruneHistory drops the oldest completed jobs once the number of completed
// jobs exceeds the configured history limit.
func (service *Service) pruneHistory() {
	service.Lock()
	defer service.Unlock()

	completed := 0
	for _, job := range service.jobs {
		if job.State() == Complete {
			completed++
		}
	}

	excess := completed - service.config.HistoryLimit
	if excess <= 0 {
		return
	}

	retained := make([]*Job, 0, len(service.jobs)-excess)
	for _, job := range service.jobs {
		if excess > 0 && job.State() == Complete {
			delete(service.jobLookup, job.id)
			excess--
			continue
		}

		retained = append(retained, job)
	}
	service.jobs = retained
}

func (service *Service) wakeupWorkerPool() {
	if err := service.workerPool.WakeupWorkers(); err != nil {
		log.Emit(logger.DEBUG, "Worker pool not woken: %v\n", err)
	}
}

func (service *Service) dispatch(ev event.Event, id uuid.UUID) {
	if service.eventBus != nil {
		service.eventBus.Dispatch(ev, id)
	}
}

func (job *Job) ID() uuid.UUID          { return job.id }
func (job *Job) Spec() media.JobSpec    { return job.spec }
func (job *Job) SubmittedAt() time.Time { return job.submittedAt }

// Done returns a channel which is closed once the job has completed.
func (job *Job) Done() <-chan struct{} { return job.done }

func (job *Job) State() JobState {
	job.mu.Lock()
	defer job.mu.Unlock()

	return job.state
}

func (job *Job) Stage() media.Stage {
	job.mu.Lock()
	defer job.mu.Unlock()

	return job.stage
}

// Outcome returns the terminal outcome of the job, or nil if the
// job has not yet completed.
func (job *Job) Outcome() *media.JobOutcome {
	job.mu.Lock()
	defer job.mu.Unlock()

	return job.outcome
}

// Wait blocks until the job completes or the context is cancelled. Cancelling
// the context does not cancel the job.
func (job *Job) Wait(ctx context.Context) (*media.JobOutcome, error) {
	select {
	case <-job.done:
		return job.Outcome(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (job *Job) setState(state JobState) {
	job.mu.Lock()
	defer job.mu.Unlock()

	job.state = state
}

func (job *Job) setStage(stage media.Stage) {
	job.mu.Lock()
	defer job.mu.Unlock()

	job.stage = stage
}

func (job *Job) complete(outcome *media.JobOutcome) {
	job.mu.Lock()
	job.outcome = outcome
	job.stage = outcome.Stage
	job.state = Complete
	job.mu.Unlock()

	job.cancel()
	close(job.done)
}

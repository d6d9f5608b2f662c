package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Reel/internal/api"
	"github.com/hbomb79/Reel/internal/database"
	"github.com/hbomb79/Reel/internal/event"
	"github.com/hbomb79/Reel/internal/fetch"
	"github.com/hbomb79/Reel/internal/ffmpeg"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
	"github.com/hbomb79/Reel/internal/source"
	"github.com/hbomb79/Reel/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}
)

// Reel represents the top-level object for the application, and is
// responsible for initialising the ledger, the pipeline and the services
// which expose it.
type reelImpl struct {
	config   ReelConfig
	eventBus event.EventCoordinator
	db       database.Manager

	ledger       *ledger.Ledger
	orchestrator *pipeline.Orchestrator

	pipelineService *pipeline.Service
	restGateway     *api.RestGateway
	activityService *activityService
}

// New constructs Reel using the config provided. If the config
// selects the postgres ledger backend, the database connection is
// established (and migrated) before New returns.
func New(config ReelConfig) (*reelImpl, error) {
	logger.SetMinLoggingLevel(logger.ParseLevel(config.LogLevel))

	log.Emit(logger.DEBUG, "Bootstrapping Reel services using config: %#v\n", config.Redacted())
	reel := &reelImpl{
		config:   config,
		eventBus: event.New(),
	}

	sink, err := reel.initialiseLedgerSink()
	if err != nil {
		return nil, err
	}
	reel.ledger = ledger.New(sink)

	resolver := source.NewResolver(config.Source)
	fetcher := fetch.New(config.Fetch)
	transcoder := ffmpeg.New(config.Format)
	reel.orchestrator = pipeline.NewOrchestrator(config.Pipeline, resolver, fetcher, transcoder, reel.ledger, pipeline.NewLogObserver())

	if serv, err := pipeline.NewService(config.Pipeline, reel.orchestrator, reel.eventBus); err == nil {
		reel.pipelineService = serv
	} else {
		reel.Close()
		return nil, fmt.Errorf("failed to construct pipeline service: %w", err)
	}

	reel.restGateway = api.NewRestGateway(&config.RestConfig, reel.pipelineService, reel.ledger, config.OutputDirectory)
	reel.activityService = newActivityService(reel.pipelineService, reel.eventBus)

	return reel, nil
}

// Serve will start all of Reel's long-running services (the pipeline
// worker pool, the activity logger and the REST gateway).
//
// This function will not return until Reel is stopped.
// To stop Reel, the provided context must be cancelled. Errors from which Reel cannot recover
// will also cause Reel to stop.
func (reel *reelImpl) Serve(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("%s crashed: %w", label, err))
	}

	wg := &sync.WaitGroup{}
	reel.spawnAsyncService(ctx, wg, reel.pipelineService, "pipeline-service", crashHandler)
	reel.spawnAsyncService(ctx, wg, reel.activityService, "activity-service", crashHandler)
	reel.spawnAsyncService(ctx, wg, reel.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Reel services spawned!\n")

	wg.Wait()
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// Fetch runs a single job to completion in the calling goroutine,
// bypassing the worker pool entirely. The outcome is recorded in the
// ledger as normal.
func (reel *reelImpl) Fetch(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error) {
	return reel.orchestrator.Run(ctx, spec)
}

// History returns the ledger records for the URL provided, most
// recent first.
func (reel *reelImpl) History(ctx context.Context, url string) ([]ledger.Record, error) {
	return reel.ledger.Query(ctx, url)
}

func (reel *reelImpl) Close() error {
	if reel.db == nil {
		return nil
	}

	return reel.db.Close()
}

func (reel *reelImpl) initialiseLedgerSink() (ledger.Sink, error) {
	switch reel.config.LedgerBackend {
	case LedgerBackendPostgres:
		log.Emit(logger.NEW, "Connecting to database...\n")
		db := database.New()
		if err := db.Connect(reel.config.Database); err != nil {
			return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
		}

		reel.db = db
		return ledger.NewStore(func() database.Queryable { return db.GetSqlxDb() }), nil
	default:
		log.Emit(logger.WARNING, "Using in-memory ledger, job history will not persist between runs\n")
		return ledger.NewMemorySink(), nil
	}
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Reel service waitgroup is updated correctly
func (reel *reelImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

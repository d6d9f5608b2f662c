package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/event"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
	"github.com/hbomb79/Reel/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Millisecond * 500
	MAX_TIMER_DURATION time.Duration = time.Second * 2
)

var activityLog = logger.Get("Activity")

type (
	reportHandler func(uuid.UUID)

	jobLookup interface {
		GetJob(uuid.UUID) *pipeline.Job
	}

	// activityService listens for job events on the event bus and reports
	// on the progress of each job. Updates for a job are debounced, as
	// a job may change stage many times in quick succession; completions
	// are reported immediately.
	activityService struct {
		*sync.Mutex
		jobs           jobLookup
		eventBus       event.EventHandler
		report         reportHandler
		debounce       time.Duration
		maxWait        time.Duration
		debounceTimers map[uuid.UUID]*time.Timer
		maxTimers      map[uuid.UUID]*time.Timer
	}
)

func newActivityService(jobs jobLookup, eventBus event.EventHandler) *activityService {
	service := &activityService{
		Mutex:          &sync.Mutex{},
		jobs:           jobs,
		eventBus:       eventBus,
		debounce:       DEBOUNCE_DURATION,
		maxWait:        MAX_TIMER_DURATION,
		debounceTimers: make(map[uuid.UUID]*time.Timer),
		maxTimers:      make(map[uuid.UUID]*time.Timer),
	}
	service.report = service.logJob

	return service
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan, event.JOB_UPDATE, event.JOB_COMPLETE)

	activityLog.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				activityLog.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			service.stopTimers()
			activityLog.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	jobID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		return errors.New("illegal payload (expected UUID)")
	}

	switch ev.Event {
	case event.JOB_UPDATE:
		service.scheduleReport(jobID)
	case event.JOB_COMPLETE:
		service.reportNow(jobID)
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleReport(jobID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	reporter := func() { service.reportNow(jobID) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[jobID]; ok {
		t.Stop()
	}
	service.debounceTimers[jobID] = time.AfterFunc(service.debounce, reporter)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[jobID]; !ok {
		service.maxTimers[jobID] = time.AfterFunc(service.maxWait, reporter)
	}
}

func (service *activityService) reportNow(jobID uuid.UUID) {
	service.Lock()
	if t, ok := service.debounceTimers[jobID]; ok {
		t.Stop()
		delete(service.debounceTimers, jobID)
	}

	if t, ok := service.maxTimers[jobID]; ok {
		t.Stop()
		delete(service.maxTimers, jobID)
	}
	service.Unlock()

	service.report(jobID)
}

func (service *activityService) stopTimers() {
	service.Lock()
	defer service.Unlock()

	for id, t := range service.debounceTimers {
		t.Stop()
		delete(service.debounceTimers, id)
	}
	for id, t := range service.maxTimers {
		t.Stop()
		delete(service.maxTimers, id)
	}
}

func (service *activityService) logJob(jobID uuid.UUID) {
	job := service.jobs.GetJob(jobID)
	if job == nil {
		return
	}

	outcome := job.Outcome()
	if outcome == nil {
		activityLog.Emit(logger.INFO, "Job %s (%s) is %s\n", jobID, job.Spec().URL, job.Stage())
		return
	}

	switch outcome.Status {
	case media.Success:
		activityLog.Emit(logger.SUCCESS, "Job %s (%s) produced %s in %s\n", jobID, outcome.URL, outcome.ProducedPath, outcome.Duration())
	case media.PartialFailure:
		activityLog.Emit(logger.WARNING, "Job %s (%s) left partial artifact %s: %v\n", jobID, outcome.URL, outcome.ProducedPath, outcome.Err())
	default:
		activityLog.Emit(logger.ERROR, "Job %s (%s) failed [%s]: %v\n", jobID, outcome.URL, outcome.ErrorKind(), outcome.Err())
	}
}

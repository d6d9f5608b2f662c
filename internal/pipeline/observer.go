package pipeline

import (
	"time"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
)

type (
	// Observer is notified after every call the orchestrator makes to one of it's
	// collaborators, with the name of the operation, how long it took and
	// the error (if any) it returned.
	Observer interface {
		Observe(operation string, duration time.Duration, err error)
	}

	ObserverFunc func(operation string, duration time.Duration, err error)

	logObserver struct {
		logger logger.Logger
	}
)

func (f ObserverFunc) Observe(operation string, duration time.Duration, err error) {
	f(operation, duration, err)
}

// NewLogObserver returns an Observer which emits the timing of each operation to the log.
func NewLogObserver() Observer {
	return &logObserver{logger: logger.Get("Timing")}
}

func (o *logObserver) Observe(operation string, duration time.Duration, err error) {
	if err != nil {
		o.logger.Emit(logger.WARNING, "%s failed after %s (%s)\n", operation, duration.Round(time.Millisecond), media.ErrorKind(err))
		return
	}

	o.logger.Emit(logger.DEBUG, "%s took %s\n", operation, duration.Round(time.Millisecond))
}

type noopObserver struct{}

func (noopObserver) Observe(string, time.Duration, error) {}

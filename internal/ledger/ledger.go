package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
)

var log = logger.Get("Ledger")

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type (
	// Record is a single, immutable, entry in the ledger describing
	// the terminal outcome of a job.
	Record struct {
		ID        uuid.UUID `db:"id" json:"id"`
		JobID     uuid.UUID `db:"job_id" json:"job_id"`
		URL       string    `db:"url" json:"url"`
		Mode      string    `db:"mode" json:"mode"`
		Stage     string    `db:"stage" json:"stage"`
		Status    string    `db:"status" json:"status"`
		Filename  *string   `db:"filename" json:"filename,omitempty"`
		ErrorKind *string   `db:"error_kind" json:"error_kind,omitempty"`
		Error     *string   `db:"error" json:"error,omitempty"`
		CreatedAt time.Time `db:"created_at" json:"created_at"`
	}

	// Sink is the persistence behind the ledger. Sinks are append-only; the
	// Ledger guarantees that Append is never called concurrently.
	Sink interface {
		Append(ctx context.Context, record Record) error
		QueryByURL(ctx context.Context, url string) ([]Record, error)
	}

	// Ledger records the outcome of every job exactly once. Appends are
	// serialized; queries are not.
	Ledger struct {
		mu       sync.Mutex
		sink     Sink
		now      func() time.Time
		lastTime time.Time
	}
)

var ErrNilOutcome = errors.New("cannot record nil job outcome")

func New(sink Sink) *Ledger {
	return &Ledger{sink: sink, now: time.Now}
}

// NewWithClock constructs a Ledger which sources record timestamps from
// the clock provided.
func NewWithClock(sink Sink, clock func() time.Time) *Ledger {
	return &Ledger{sink: sink, now: clock}
}

// Record appends a record for the outcome provided. Only the status of the
// outcome is persisted (success/failure); partial failures are persisted as
// failures, with the filename of the artifact retained.
func (ledger *Ledger) Record(ctx context.Context, outcome *media.JobOutcome) (Record, error) {
	if outcome == nil {
		return Record{}, ErrNilOutcome
	}

	record := Record{
		ID:     uuid.New(),
		JobID:  outcome.JobID,
		URL:    outcome.URL,
		Mode:   outcome.Mode.String(),
		Stage:  outcome.Stage.String(),
		Status: StatusFailure,
	}
	if outcome.Status == media.Success {
		record.Status = StatusSuccess
	}
	if filename := outcome.Filename(); filename != "" {
		record.Filename = &filename
	}
	if err := outcome.Err(); err != nil {
		kind, message := media.ErrorKind(err), err.Error()
		record.ErrorKind = &kind
		record.Error = &message
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	// Timestamps are strictly increasing so that 'most recent first'
	// ordering is stable even if the clock does not advance between
	// appends.
	now := ledger.now().UTC().Truncate(time.Microsecond)
	if !now.After(ledger.lastTime) {
		now = ledger.lastTime.Add(time.Microsecond)
	}
	record.CreatedAt = now

	if err := ledger.sink.Append(ctx, record); err != nil {
		log.Emit(logger.ERROR, "Failed to append ledger record for job %s: %v\n", outcome.JobID, err)
		return Record{}, fmt.Errorf("failed to append ledger record: %w", err)
	}

	ledger.lastTime = now
	log.Emit(logger.NEW, "Recorded %s outcome for job %s (%s)\n", record.Status, record.JobID, record.URL)
	return record, nil
}

// Query returns all records for the URL, most recent first.
func (ledger *Ledger) Query(ctx context.Context, url string) ([]Record, error) {
	return ledger.sink.QueryByURL(ctx, url)
}

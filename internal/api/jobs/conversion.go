package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/api/util"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
)

type (
	JobStateDto string

	// JobDto is the response used by endpoints that return
	// jobs (e.g., create, list, get)
	JobDto struct {
		ID              uuid.UUID   `json:"id"`
		URL             string      `json:"url"`
		Mode            media.Mode  `json:"mode"`
		OutputDirectory string      `json:"output_directory"`
		State           JobStateDto `json:"state"`
		Stage           media.Stage `json:"stage"`
		SubmittedAt     time.Time   `json:"submitted_at"`
		Outcome         *OutcomeDto `json:"outcome,omitempty"`
	}

	OutcomeDto struct {
		Status       media.Status `json:"status"`
		Stage        media.Stage  `json:"stage"`
		ProducedPath string       `json:"produced_path,omitempty"`
		ErrorKind    string       `json:"error_kind,omitempty"`
		Errors       []string     `json:"errors"`
		StartedAt    time.Time    `json:"started_at"`
		FinishedAt   time.Time    `json:"finished_at"`
		DurationMs   int64        `json:"duration_ms"`
	}
)

const (
	QUEUED   JobStateDto = "QUEUED"
	RUNNING  JobStateDto = "RUNNING"
	COMPLETE JobStateDto = "COMPLETE"
)

func NewDto(job *pipeline.Job) *JobDto {
	spec := job.Spec()
	dto := &JobDto{
		ID:              job.ID(),
		URL:             spec.URL,
		Mode:            spec.Mode,
		OutputDirectory: spec.OutputDirectory,
		State:           stateModelToDto(job.State()),
		Stage:           job.Stage(),
		SubmittedAt:     job.SubmittedAt(),
	}

	if outcome := job.Outcome(); outcome != nil {
		dto.Outcome = &OutcomeDto{
			Status:       outcome.Status,
			Stage:        outcome.Stage,
			ProducedPath: outcome.ProducedPath,
			ErrorKind:    outcome.ErrorKind(),
			Errors:       util.ApplyConversion(outcome.Errors, func(e media.StageError) string { return e.Error() }),
			StartedAt:    outcome.StartedAt,
			FinishedAt:   outcome.FinishedAt,
			DurationMs:   outcome.Duration().Milliseconds(),
		}
	}

	return dto
}

func stateModelToDto(state pipeline.JobState) JobStateDto {
	switch state {
	case pipeline.Queued:
		return QUEUED
	case pipeline.Running:
		return RUNNING
	case pipeline.Complete:
		return COMPLETE
	}

	panic("unreachable")
}

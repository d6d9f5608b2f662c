package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/labstack/echo/v4"
)

type (
	CreateRequest struct {
		URL             string      `json:"url" validate:"required,url"`
		Mode            *media.Mode `json:"mode" validate:"required"`
		OutputDirectory string      `json:"output_directory"`
	}

	JobService interface {
		Submit(context.Context, media.JobSpec) (*pipeline.Job, error)
		GetJob(uuid.UUID) *pipeline.Job
		AllJobs() []*pipeline.Job
		CancelJob(uuid.UUID) error
	}

	// Controller is the struct which is responsible for defining the
	// routes for this controller. Requested output directories are
	// relative to the default output directory, and may not escape it.
	Controller struct {
		service          JobService
		validate         *validator.Validate
		defaultOutputDir string
	}
)

var controllerLogger = logger.Get("JobsController")

func New(validate *validator.Validate, service JobService, defaultOutputDir string) *Controller {
	return &Controller{service: service, validate: validate, defaultOutputDir: defaultOutputDir}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
}

// create submits a new job. By default the job is detached from the request and
// the response is sent as soon as the job is queued. If the 'wait' query
// param is true, the response is delayed until the job completes, and the
// job is cancelled if the client goes away.
func (controller *Controller) create(ec echo.Context) error {
	var request CreateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	wait := false
	if param := ec.QueryParam("wait"); param != "" {
		parsed, err := strconv.ParseBool(param)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Query param 'wait' must be a boolean")
		}
		wait = parsed
	}

	outputDir, err := controller.resolveOutputDirectory(request.OutputDirectory)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	spec := media.JobSpec{URL: request.URL, Mode: *request.Mode, OutputDirectory: outputDir}

	jobCtx := context.Background()
	if wait {
		jobCtx = ec.Request().Context()
	}

	job, err := controller.service.Submit(jobCtx, spec)
	if err != nil {
		return submitError(err)
	}

	controllerLogger.Emit(logger.NEW, "Job %s submitted (wait=%v)\n", job.ID(), wait)
	if !wait {
		return ec.JSON(http.StatusAccepted, NewDto(job))
	}

	if _, err := job.Wait(ec.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusRequestTimeout, "Request ended before job completed")
	}

	return ec.JSON(http.StatusOK, NewDto(job))
}

// list returns all the jobs known to the pipeline service, oldest first.
func (controller *Controller) list(ec echo.Context) error {
	items := controller.service.AllJobs()
	dtos := make([]*JobDto, len(items))
	for k, v := range items {
		dtos[k] = NewDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	job := controller.service.GetJob(id)
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, NewDto(job))
}

// delete cancels the job. The job remains visible until it has recorded it's
// (cancelled) outcome.
func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	if err := controller.service.CancelJob(id); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrJobNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrJobComplete):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return ec.NoContent(http.StatusAccepted)
}

// resolveOutputDirectory joins the requested directory on to the default output
// directory. Absolute paths, and relative paths which would escape the
// default output directory, are rejected.
func (controller *Controller) resolveOutputDirectory(requested string) (string, error) {
	if requested == "" {
		return controller.defaultOutputDir, nil
	}

	if !filepath.IsLocal(requested) {
		return "", fmt.Errorf("output_directory %q must be a relative path inside the output directory", requested)
	}

	return filepath.Join(controller.defaultOutputDir, requested), nil
}

func submitError(err error) error {
	switch {
	case errors.Is(err, media.ErrInvalidJobSpec):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrServiceNotActive):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		controllerLogger.Emit(logger.ERROR, "Failed to submit job: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

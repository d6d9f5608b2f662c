package history

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/labstack/echo/v4"
)

type (
	QueryRequest struct {
		URL string `query:"url" validate:"required,url"`
	}

	Store interface {
		Query(ctx context.Context, url string) ([]ledger.Record, error)
	}

	// Controller exposes the (read-only) job ledger.
	Controller struct {
		store    Store
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, store Store) *Controller {
	return &Controller{store: store, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
}

// list returns every ledger record for the 'url' query param, most recent first.
func (controller *Controller) list(ec echo.Context) error {
	var request QueryRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid query: %s", err.Error()))
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid query: %s", err.Error()))
	}

	records, err := controller.store.Query(ec.Request().Context(), request.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, records)
}

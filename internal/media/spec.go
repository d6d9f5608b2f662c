package media

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// JobSpec is the description of a single acquisition job as provided
// by a caller. It must pass Validate before any I/O is performed.
type JobSpec struct {
	URL             string `json:"url" validate:"required,url"`
	OutputDirectory string `json:"output_directory" validate:"required"`
	Mode            Mode   `json:"mode" validate:"job_mode"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("job_mode", func(fl validator.FieldLevel) bool {
		return Mode(fl.Field().Int()).IsValid()
	}); err != nil {
		panic(fmt.Sprintf("failed to register job_mode validation: %s", err))
	}

	return v
}

// Validate checks the structure of the JobSpec. Any failure wraps
// ErrInvalidJobSpec.
func (spec JobSpec) Validate() error {
	if err := validate.Struct(spec); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, len(fieldErrs))
			for i, fe := range fieldErrs {
				fields[i] = fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag())
			}

			return fmt.Errorf("%w: %s", ErrInvalidJobSpec, strings.Join(fields, ", "))
		}

		return fmt.Errorf("%w: %s", ErrInvalidJobSpec, err)
	}

	return nil
}

func (spec JobSpec) String() string {
	return fmt.Sprintf("{url=%s mode=%s out=%s}", spec.URL, spec.Mode, spec.OutputDirectory)
}

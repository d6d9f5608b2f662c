package media

import (
	"context"
	"errors"
	"fmt"
)

type (
	ResolutionErrorKind int
	FetchErrorKind      int
	TranscodeErrorKind  int

	// ResolutionError is returned when a media source cannot be resolved, or
	// when none of it's streams satisfy the selection policy of a job.
	ResolutionError struct {
		Kind ResolutionErrorKind
		URL  string
		Err  error
	}

	// FetchError is returned when the bytes of a stream could not be
	// retrieved to local storage. Permanent marks Network failures
	// which retrying will not fix (e.g. HTTP 403).
	FetchError struct {
		Kind      FetchErrorKind
		SourceURL string
		Permanent bool
		Err       error
	}

	TranscodeError struct {
		Kind  TranscodeErrorKind
		Input string
		Err   error
	}
)

const (
	NotFound ResolutionErrorKind = iota
	NoSuitableStream
)

const (
	Network FetchErrorKind = iota
	Disk
	Cancelled
)

const (
	UnsupportedCodec TranscodeErrorKind = iota
	CorruptInput
	IOFailure
)

const (
	ErrorKindValidation = "validation"
	ErrorKindInternal   = "internal"
)

// ErrInvalidJobSpec is wrapped by all errors produced when a JobSpec fails
// validation.
var ErrInvalidJobSpec = errors.New("invalid job specification")

func (k ResolutionErrorKind) String() string {
	switch k {
	case NotFound:
		return fmt.Sprintf("NOT_FOUND[%d]", k)
	case NoSuitableStream:
		return fmt.Sprintf("NO_SUITABLE_STREAM[%d]", k)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", k)
	}
}

func (k FetchErrorKind) String() string {
	switch k {
	case Network:
		return fmt.Sprintf("NETWORK[%d]", k)
	case Disk:
		return fmt.Sprintf("DISK[%d]", k)
	case Cancelled:
		return fmt.Sprintf("CANCELLED[%d]", k)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", k)
	}
}

func (k TranscodeErrorKind) String() string {
	switch k {
	case UnsupportedCodec:
		return fmt.Sprintf("UNSUPPORTED_CODEC[%d]", k)
	case CorruptInput:
		return fmt.Sprintf("CORRUPT_INPUT[%d]", k)
	case IOFailure:
		return fmt.Sprintf("IO_FAILURE[%d]", k)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", k)
	}
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution of '%s' failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch of '%s' failed (%s): %v", e.SourceURL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode of '%s' failed (%s): %v", e.Input, e.Kind, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// ErrorKind maps an error from the pipeline to a stable string which
// callers can use to distinguish bad input, transient failures and
// unsupported media. A nil error yields an empty string.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var resErr *ResolutionError
	var fetchErr *FetchError
	var transErr *TranscodeError
	switch {
	case errors.As(err, &fetchErr):
		switch fetchErr.Kind {
		case Network:
			return "fetch:network"
		case Disk:
			return "fetch:disk"
		case Cancelled:
			return "fetch:cancelled"
		}
	case errors.As(err, &resErr):
		switch resErr.Kind {
		case NotFound:
			return "resolution:not_found"
		case NoSuitableStream:
			return "resolution:no_suitable_stream"
		}
	case errors.As(err, &transErr):
		switch transErr.Kind {
		case UnsupportedCodec:
			return "transcode:unsupported_codec"
		case CorruptInput:
			return "transcode:corrupt_input"
		case IOFailure:
			return "transcode:io_failure"
		}
	case errors.Is(err, ErrInvalidJobSpec):
		return ErrorKindValidation
	}

	return ErrorKindInternal
}

// IsTransient returns true if the error is a FetchError{Network} that
// has not been marked permanent; these are the only errors worth retrying.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind == Network && !fetchErr.Permanent
	}

	return false
}

// IsCancelled returns true if the error represents a cancelled job, either
// via a FetchError{Cancelled} or a context cancellation/deadline.
func IsCancelled(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Kind == Cancelled {
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// NewCancelledError constructs the error reported for a job that was
// cancelled or timed out, regardless of the stage it was in.
func NewCancelledError(sourceURL string, cause error) *FetchError {
	return &FetchError{Kind: Cancelled, SourceURL: sourceURL, Err: cause}
}

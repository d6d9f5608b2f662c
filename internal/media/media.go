package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	StreamKind int
	Mode       int
	Status     int
	Stage      int

	// StreamDescriptor describes a single stream offered by a remote
	// provider. Descriptors are never mutated once resolved.
	StreamDescriptor struct {
		ID         string     `json:"id"`
		Kind       StreamKind `json:"kind"`
		Container  string     `json:"container"`
		Codec      string     `json:"codec"`
		Resolution int        `json:"resolution"`
		Bitrate    float64    `json:"bitrate"`
		SizeBytes  int64      `json:"size_bytes,omitempty"`
		URL        string     `json:"-"`
		Title      string     `json:"title"`
	}

	MediaSource struct {
		URL     string
		Title   string
		Streams []StreamDescriptor
	}

	// FetchResult is the successful product of fetching, extracting or
	// muxing. The holder of a FetchResult owns the file at LocalPath.
	FetchResult struct {
		LocalPath string
		SizeBytes int64
		SourceURL string
	}

	StageError struct {
		Stage Stage
		Err   error
	}

	// JobOutcome is the terminal result of a pipeline job. It is
	// produced exactly once per job.
	JobOutcome struct {
		JobID        uuid.UUID
		URL          string
		Mode         Mode
		Status       Status
		Stage        Stage
		ProducedPath string
		Errors       []StageError
		StartedAt    time.Time
		FinishedAt   time.Time
	}
)

const (
	VideoStream StreamKind = iota
	AudioStream
	ProgressiveStream
)

const (
	VideoOnly Mode = iota
	AudioOnly
	Combined
)

const (
	Success Status = iota
	PartialFailure
	Failure
)

const (
	Resolving Stage = iota
	Fetching
	Transcoding
	Finalizing
	Done
	Aborted
)

var (
	streamKindNames = []string{"video", "audio", "progressive"}
	modeNames       = []string{"video_only", "audio_only", "combined"}
	statusNames     = []string{"success", "partial_failure", "failure"}
	stageNames      = []string{"resolving", "fetching", "transcoding", "finalizing", "done", "aborted"}

	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
)

func (k StreamKind) String() string { return enumName(streamKindNames, int(k)) }
func (m Mode) String() string       { return enumName(modeNames, int(m)) }
func (s Status) String() string     { return enumName(statusNames, int(s)) }
func (s Stage) String() string      { return enumName(stageNames, int(s)) }

func (m Mode) IsValid() bool { return m >= VideoOnly && m <= Combined }

// ParseMode accepts the textual representation of a Mode (e.g. 'audio_only').
func ParseMode(s string) (Mode, error) {
	for k, v := range modeNames {
		if strings.EqualFold(v, strings.TrimSpace(s)) {
			return Mode(k), nil
		}
	}

	return -1, fmt.Errorf("unknown job mode '%s' (expected one of %v)", s, modeNames)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid job mode %d", m)
	}

	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s Stage) MarshalText() ([]byte, error)  { return []byte(s.String()), nil }

// Filename returns the provider-assigned filename for this stream. The
// filename is derived from the media title and the stream ID, which
// keeps the separate legs of a Combined job from colliding.
func (s StreamDescriptor) Filename() string {
	ext := s.Container
	if ext == "" {
		ext = "bin"
	}

	return fmt.Sprintf("%s-%s.%s", Slugify(s.Title), Slugify(s.ID), ext)
}

func (s StreamDescriptor) String() string {
	return fmt.Sprintf("{stream id=%s kind=%s container=%s res=%d bitrate=%.1f size=%d}", s.ID, s.Kind, s.Container, s.Resolution, s.Bitrate, s.SizeBytes)
}

// StreamsOfKind returns the streams of this source which match the given kind,
// preserving the order the provider reported them in.
func (source *MediaSource) StreamsOfKind(kind StreamKind) []StreamDescriptor {
	out := make([]StreamDescriptor, 0)
	for _, s := range source.Streams {
		if s.Kind == kind {
			out = append(out, s)
		}
	}

	return out
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }

// Err returns the first error recorded against this outcome, or nil if
// the outcome carries no errors.
func (outcome *JobOutcome) Err() error {
	if len(outcome.Errors) == 0 {
		return nil
	}

	return outcome.Errors[0]
}

// ErrorKind returns the stable error kind of the first error in
// this outcome, or an empty string if there is none.
func (outcome *JobOutcome) ErrorKind() string {
	return ErrorKind(outcome.Err())
}

// Filename returns the base name of the produced artifact, if any.
func (outcome *JobOutcome) Filename() string {
	if outcome.ProducedPath == "" {
		return ""
	}

	return filepath.Base(outcome.ProducedPath)
}

func (outcome *JobOutcome) Duration() time.Duration {
	return outcome.FinishedAt.Sub(outcome.StartedAt)
}

// Slugify lower-cases the input and replaces runs of characters which
// are unsafe in filenames with a single hyphen.
func Slugify(s string) string {
	slug := strings.Trim(slugInvalidChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "media"
	}
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}

	return slug
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("UNKNOWN[%d]", i)
	}

	return names[i]
}

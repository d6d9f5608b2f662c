package pipeline

import (
	"fmt"

	"github.com/hbomb79/Reel/internal/media"
)

// allowedTransitions is the state machine every job follows. Done and
// Aborted are terminal.
var allowedTransitions = map[media.Stage][]media.Stage{
	media.Resolving:   {media.Fetching, media.Aborted},
	media.Fetching:    {media.Transcoding, media.Finalizing, media.Aborted},
	media.Transcoding: {media.Finalizing, media.Aborted},
	media.Finalizing:  {media.Done, media.Aborted},
}

func canTransition(from media.Stage, to media.Stage) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

type illegalTransitionError struct {
	from media.Stage
	to   media.Stage
}

func (e *illegalTransitionError) Error() string {
	return fmt.Sprintf("illegal pipeline transition %s -> %s", e.from, e.to)
}

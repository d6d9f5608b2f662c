package source

import (
	"fmt"
	"strings"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
)

// Selection is the set of streams chosen for a job. Video is nil for
// AudioOnly jobs which have an audio-only stream available, and Audio
// is nil for VideoOnly jobs. NeedsExtraction indicates that an AudioOnly
// job was forced to select a progressive stream, and so the audio must
// be extracted from the fetched video.
type Selection struct {
	Video           *media.StreamDescriptor
	Audio           *media.StreamDescriptor
	NeedsExtraction bool
}

// Select applies the stream selection policy for the mode given:
//   - VideoOnly: the best progressive stream in the target container, falling
//     back to the best video-only stream if no progressive stream exists.
//   - AudioOnly: the audio-only stream with the highest bitrate, falling back
//     to the best progressive stream (with NeedsExtraction set).
//   - Combined: the best video-only stream in the target container and the
//     best audio-only stream. Both legs are required.
//
// "Best" video is the maximum resolution, with ties broken by the smallest
// known size. Audio bitrate ties are broken by provider order.
func Select(source *media.MediaSource, mode media.Mode, container string) (Selection, error) {
	noSuitable := func(reason string, args ...any) error {
		return &media.ResolutionError{Kind: media.NoSuitableStream, URL: source.URL, Err: fmt.Errorf(reason, args...)}
	}

	switch mode {
	case media.VideoOnly:
		video := bestVideo(source.StreamsOfKind(media.ProgressiveStream), container)
		if video == nil {
			video = bestVideo(source.StreamsOfKind(media.VideoStream), container)
		}
		if video == nil {
			return Selection{}, noSuitable("no video stream in container '%s'", container)
		}

		return Selection{Video: video}, nil
	case media.AudioOnly:
		if audio := bestAudio(source.StreamsOfKind(media.AudioStream)); audio != nil {
			return Selection{Audio: audio}, nil
		}

		progressive := bestVideo(source.StreamsOfKind(media.ProgressiveStream), container)
		if progressive == nil {
			progressive = bestVideo(source.StreamsOfKind(media.ProgressiveStream), "")
		}
		if progressive == nil {
			return Selection{}, noSuitable("no audio-only or progressive stream available")
		}

		return Selection{Video: progressive, NeedsExtraction: true}, nil
	case media.Combined:
		video := bestVideo(source.StreamsOfKind(media.VideoStream), container)
		if video == nil {
			return Selection{}, noSuitable("no video-only stream in container '%s'", container)
		}

		audio := bestAudio(source.StreamsOfKind(media.AudioStream))
		if audio == nil {
			return Selection{}, noSuitable("no audio-only stream available")
		}

		return Selection{Video: video, Audio: audio}, nil
	default:
		return Selection{}, fmt.Errorf("%w: unknown mode %d", media.ErrInvalidJobSpec, mode)
	}
}

// bestVideo returns the stream with the maximum resolution among those
// in the given container (an empty container matches any). Equal
// resolutions prefer the smaller stream; unknown sizes rank last.
func bestVideo(streams []media.StreamDescriptor, container string) *media.StreamDescriptor {
	var best *media.StreamDescriptor
	for i := range streams {
		candidate := &streams[i]
		if container != "" && !strings.EqualFold(candidate.Container, container) {
			continue
		}

		if best == nil || candidate.Resolution > best.Resolution {
			best = candidate
			continue
		}

		if candidate.Resolution == best.Resolution && smallerSize(candidate.SizeBytes, best.SizeBytes) {
			best = candidate
		}
	}

	return best
}

func smallerSize(a, b int64) bool {
	if a <= 0 {
		return false
	}

	return b <= 0 || a < b
}

// bestAudio returns the audio stream with the highest bitrate. When
// several streams share the highest bitrate the first one reported by
// the provider wins. Provider ordering is not guaranteed to be stable
// across requests, so the tie is logged.
func bestAudio(streams []media.StreamDescriptor) *media.StreamDescriptor {
	var best *media.StreamDescriptor
	ties := 0
	for i := range streams {
		candidate := &streams[i]
		switch {
		case best == nil || candidate.Bitrate > best.Bitrate:
			best = candidate
			ties = 0
		case candidate.Bitrate == best.Bitrate:
			ties++
		}
	}

	if ties > 0 {
		log.Emit(logger.WARNING, "%d audio streams share the highest bitrate (%.1f); selected %s by provider order\n", ties+1, best.Bitrate, best.ID)
	}

	return best
}

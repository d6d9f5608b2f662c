package ffmpeg

import (
	"fmt"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Reel/internal/media"
)

const (
	videoCodecType = "video"
	audioCodecType = "audio"
)

// ProbeFile uses ffprobe to extract the container and stream metadata of the file. A
// file which ffprobe cannot parse is reported as TranscodeError{CorruptInput}.
func ProbeFile(config Config, path string) (transcoder.Metadata, error) {
	cfg := ffmpeg.Config{FfmpegBinPath: config.FfmpegBinPath, FfprobeBinPath: config.FfprobeBinPath}
	metadata, err := ffmpeg.New(&cfg).Input(path).GetMetadata()
	if err != nil {
		return nil, &media.TranscodeError{
			Kind:  classifyOr(err, media.CorruptInput),
			Input: path,
			Err:   fmt.Errorf("failed to extract file metadata information using ffprobe: %w", parseFfmpegError(err)),
		}
	}

	return metadata, nil
}

// requireStream ensures the probed file contains at least one stream of the codec type given.
func requireStream(path string, metadata transcoder.Metadata, codecType string) error {
	for _, stream := range metadata.GetStreams() {
		if stream.GetCodecType() == codecType {
			return nil
		}
	}

	return &media.TranscodeError{
		Kind:  media.UnsupportedCodec,
		Input: path,
		Err:   fmt.Errorf("input contains no %s stream", codecType),
	}
}

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
)

type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_bin_path" env:"FORMAT_FFMPEG_BINARY_PATH" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_bin_path" env:"FORMAT_FFPROBE_BINARY_PATH" env-default:"/usr/bin/ffprobe"`
	AudioBitrate   string `yaml:"audio_bitrate" env:"FORMAT_AUDIO_BITRATE" env-default:"192k"`
	VideoCodec     string `yaml:"video_codec" env:"FORMAT_VIDEO_CODEC" env-default:"libx264"`
	MuxAudioCodec  string `yaml:"mux_audio_codec" env:"FORMAT_MUX_AUDIO_CODEC" env-default:"aac"`
	Preset         string `yaml:"preset" env:"FORMAT_PRESET" env-default:"veryfast"`
}

// Transcoder derives audio from fetched media, and combines separately
// fetched video and audio in to a single container. It never deletes it's
// inputs; the caller owns them.
type Transcoder struct {
	config Config
}

func New(config Config) *Transcoder {
	if config.FfmpegBinPath == "" {
		config.FfmpegBinPath = "ffmpeg"
	}
	if config.FfprobeBinPath == "" {
		config.FfprobeBinPath = "ffprobe"
	}
	if config.AudioBitrate == "" {
		config.AudioBitrate = "192k"
	}
	if config.VideoCodec == "" {
		config.VideoCodec = "libx264"
	}
	if config.MuxAudioCodec == "" {
		config.MuxAudioCodec = "aac"
	}
	if config.Preset == "" {
		config.Preset = "veryfast"
	}

	return &Transcoder{config: config}
}

// ExtractAudio writes the audio track of the input to an mp3 file alongside
// the input. The input must contain an audio stream.
func (t *Transcoder) ExtractAudio(ctx context.Context, inputPath string) (*media.FetchResult, error) {
	if err := t.checkInputs(ctx, map[string]string{inputPath: audioCodecType}); err != nil {
		return nil, err
	}

	outputPath := replaceExt(inputPath, ".mp3")
	if outputPath == inputPath {
		outputPath = replaceExt(inputPath, ".extracted.mp3")
	}

	cmd := &transcodeCommand{
		inputPath:  inputPath,
		args:       []string{"-vn", "-acodec", "libmp3lame", "-ab", t.config.AudioBitrate, "-y"},
		outputPath: outputPath,
		config:     t.config,
	}
	if err := cmd.Run(ctx); err != nil {
		return nil, err
	}

	return resultFor(outputPath, inputPath)
}

// Mux combines the first video stream of videoPath with the first audio stream
// of audioPath, re-encoding the video using the configured video codec.
func (t *Transcoder) Mux(ctx context.Context, videoPath string, audioPath string) (*media.FetchResult, error) {
	if err := t.checkInputs(ctx, map[string]string{videoPath: videoCodecType, audioPath: audioCodecType}); err != nil {
		return nil, err
	}

	outputPath := replaceExt(videoPath, ".muxed.mp4")
	cmd := &transcodeCommand{
		inputPath: videoPath,
		args: []string{
			"-i", audioPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", t.config.VideoCodec,
			"-preset", t.config.Preset,
			"-c:a", t.config.MuxAudioCodec,
			"-shortest",
			"-y",
		},
		outputPath: outputPath,
		config:     t.config,
	}
	if err := cmd.Run(ctx); err != nil {
		return nil, err
	}

	return resultFor(outputPath, videoPath)
}

// checkInputs verifies that each input exists, is parseable by ffprobe, and
// contains a stream of the required codec type. A cancelled context
// prevents any work from starting.
func (t *Transcoder) checkInputs(ctx context.Context, required map[string]string) error {
	for path, codecType := range required {
		if err := ctx.Err(); err != nil {
			return media.NewCancelledError(path, err)
		}

		if info, err := os.Stat(path); err != nil {
			return &media.TranscodeError{Kind: media.IOFailure, Input: path, Err: err}
		} else if info.IsDir() || info.Size() == 0 {
			return &media.TranscodeError{Kind: media.CorruptInput, Input: path, Err: errors.New("input is empty or not a regular file")}
		}

		metadata, err := ProbeFile(t.config, path)
		if err != nil {
			return err
		}
		if err := requireStream(path, metadata, codecType); err != nil {
			return err
		}
	}

	log.Emit(logger.DEBUG, "Inputs %v passed pre-flight checks\n", required)
	return nil
}

func resultFor(outputPath string, sourcePath string) (*media.FetchResult, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &media.TranscodeError{Kind: media.IOFailure, Input: sourcePath, Err: fmt.Errorf("cannot stat output: %w", err)}
	}

	return &media.FetchResult{LocalPath: outputPath, SizeBytes: info.Size(), SourceURL: sourcePath}, nil
}

func replaceExt(path string, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

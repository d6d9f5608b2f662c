package ffmpeg_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Reel/internal/ffmpeg"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/hbomb79/Reel/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.DEBUG.Level())
}

// requireFfmpeg skips the test unless both ffmpeg and ffprobe are available, and
// returns a Transcoder configured to use them.
func requireFfmpeg(t *testing.T) (*ffmpeg.Transcoder, string) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not available on PATH")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not available on PATH")
	}

	return ffmpeg.New(ffmpeg.Config{FfmpegBinPath: ffmpegPath, FfprobeBinPath: ffprobePath}), ffmpegPath
}

// generate uses ffmpeg's lavfi test sources to create a short media file.
func generate(t *testing.T, ffmpegPath string, output string, args ...string) string {
	fullArgs := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	fullArgs = append(fullArgs, "-y", output)

	out, err := exec.Command(ffmpegPath, fullArgs...).CombinedOutput()
	require.Nil(t, err, "failed to generate fixture: %s", out)
	return output
}

func videoOnly(t *testing.T, ffmpegPath, dir string) string {
	return generate(t, ffmpegPath, filepath.Join(dir, "video-137.mp4"), "-f", "lavfi", "-i", "testsrc=duration=1:size=160x120:rate=10", "-an", "-c:v", "mpeg4")
}

func audioOnly(t *testing.T, ffmpegPath, dir string) string {
	return generate(t, ffmpegPath, filepath.Join(dir, "audio-140.m4a"), "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-vn", "-c:a", "aac")
}

func progressive(t *testing.T, ffmpegPath, dir string) string {
	return generate(t, ffmpegPath, filepath.Join(dir, "clip-18.mp4"),
		"-f", "lavfi", "-i", "testsrc=duration=1:size=160x120:rate=10",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1",
		"-c:v", "mpeg4", "-c:a", "aac", "-shortest")
}

const stubProbeOutput = `{"format": {"duration": "1.000000", "format_name": "mov,mp4"}, "streams": [{"codec_type": "video", "codec_name": "h264"}, {"codec_type": "audio", "codec_name": "aac"}]}`

// stubTranscoder writes fake ffprobe/ffmpeg executables in to a temporary
// directory. The ffprobe stub always describes a valid audio+video file, while
// the ffmpeg stub runs the script body given.
func stubTranscoder(t *testing.T, ffmpegScript string) *ffmpeg.Transcoder {
	binDir := t.TempDir()
	ffprobePath := filepath.Join(binDir, "ffprobe")
	ffmpegPath := filepath.Join(binDir, "ffmpeg")

	require.Nil(t, os.WriteFile(ffprobePath, []byte("#!/bin/sh\ncat <<'EOF'\n"+stubProbeOutput+"\nEOF\n"), 0o755))
	require.Nil(t, os.WriteFile(ffmpegPath, []byte("#!/bin/sh\n"+ffmpegScript+"\n"), 0o755))

	return ffmpeg.New(ffmpeg.Config{FfmpegBinPath: ffmpegPath, FfprobeBinPath: ffprobePath})
}

// lastArg is a shell snippet which resolves the final argument (the output path).
const lastArg = `for out in "$@"; do :; done`

func Test_ExtractAudio_FfmpegExitFailureRemovesPartialOutput(t *testing.T) {
	transcoder := stubTranscoder(t, lastArg+"\nprintf 'half-written' > \"$out\"\nexit 1")
	dir := t.TempDir()
	input := filepath.Join(dir, "clip-18.mp4")
	require.Nil(t, os.WriteFile(input, []byte("not really an mp4"), 0o644))

	res, err := transcoder.ExtractAudio(context.Background(), input)
	assert.Nil(t, res)
	requireTranscodeErr(t, err, media.IOFailure)
	helpers.AssertDirContainsOnly(t, dir, "clip-18.mp4")
}

func Test_Mux_FfmpegExitFailureRemovesPartialOutput(t *testing.T) {
	transcoder := stubTranscoder(t, lastArg+"\nprintf 'half-written' > \"$out\"\nexit 187")
	dir := t.TempDir()
	video := filepath.Join(dir, "video-137.mp4")
	audio := filepath.Join(dir, "audio-140.m4a")
	require.Nil(t, os.WriteFile(video, []byte("video"), 0o644))
	require.Nil(t, os.WriteFile(audio, []byte("audio"), 0o644))

	_, err := transcoder.Mux(context.Background(), video, audio)
	requireTranscodeErr(t, err, media.IOFailure)
	helpers.AssertDirContainsOnly(t, dir, "audio-140.m4a", "video-137.mp4")
}

func Test_ExtractAudio_FfmpegCleanExitIsSuccess(t *testing.T) {
	transcoder := stubTranscoder(t, lastArg+"\nprintf 'complete' > \"$out\"")
	dir := t.TempDir()
	input := filepath.Join(dir, "clip-18.mp4")
	require.Nil(t, os.WriteFile(input, []byte("not really an mp4"), 0o644))

	res, err := transcoder.ExtractAudio(context.Background(), input)
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "clip-18.mp3"), res.LocalPath)
	assert.Equal(t, int64(len("complete")), res.SizeBytes)
}

func requireTranscodeErr(t *testing.T, err error, kind media.TranscodeErrorKind) {
	var transErr *media.TranscodeError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, kind, transErr.Kind)
}

func Test_ExtractAudio_FromProgressive(t *testing.T) {
	transcoder, ffmpegPath := requireFfmpeg(t)
	dir := t.TempDir()
	input := progressive(t, ffmpegPath, dir)

	res, err := transcoder.ExtractAudio(context.Background(), input)
	require.Nil(t, err)

	assert.Equal(t, filepath.Join(dir, "clip-18.mp3"), res.LocalPath)
	assert.Greater(t, res.SizeBytes, int64(0))
	helpers.AssertDirContainsOnly(t, dir, "clip-18.mp3", "clip-18.mp4")
}

func Test_ExtractAudio_NoAudioStreamIsUnsupported(t *testing.T) {
	transcoder, ffmpegPath := requireFfmpeg(t)
	dir := t.TempDir()
	input := videoOnly(t, ffmpegPath, dir)

	_, err := transcoder.ExtractAudio(context.Background(), input)
	requireTranscodeErr(t, err, media.UnsupportedCodec)
	helpers.AssertDirContainsOnly(t, dir, "video-137.mp4")
}

func Test_ExtractAudio_CorruptInput(t *testing.T) {
	transcoder, _ := requireFfmpeg(t)
	dir, files := helpers.TempDirWithFiles(t, []string{"garbage.mp4"})

	_, err := transcoder.ExtractAudio(context.Background(), files[0])
	requireTranscodeErr(t, err, media.CorruptInput)
	helpers.AssertDirContainsOnly(t, dir, "garbage.mp4")
}

func Test_Mux_CombinesStreamsAndKeepsInputs(t *testing.T) {
	transcoder, ffmpegPath := requireFfmpeg(t)
	dir := t.TempDir()
	video := videoOnly(t, ffmpegPath, dir)
	audio := audioOnly(t, ffmpegPath, dir)

	res, err := transcoder.Mux(context.Background(), video, audio)
	require.Nil(t, err)

	assert.Equal(t, filepath.Join(dir, "video-137.muxed.mp4"), res.LocalPath)
	metadata, err := ffmpeg.ProbeFile(ffmpeg.Config{FfprobeBinPath: "ffprobe", FfmpegBinPath: ffmpegPath}, res.LocalPath)
	require.Nil(t, err)

	codecTypes := make([]string, 0)
	for _, stream := range metadata.GetStreams() {
		codecTypes = append(codecTypes, stream.GetCodecType())
	}
	assert.ElementsMatch(t, []string{"video", "audio"}, codecTypes)
	helpers.AssertDirContainsOnly(t, dir, "audio-140.m4a", "video-137.mp4", "video-137.muxed.mp4")
}

func Test_Mux_CancelledBeforeStartDoesNothing(t *testing.T) {
	transcoder, ffmpegPath := requireFfmpeg(t)
	dir := t.TempDir()
	video := videoOnly(t, ffmpegPath, dir)
	audio := audioOnly(t, ffmpegPath, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transcoder.Mux(ctx, video, audio)
	assert.True(t, media.IsCancelled(err))
	helpers.AssertDirContainsOnly(t, dir, "audio-140.m4a", "video-137.mp4")
}

func Test_Mux_MissingInputIsIOFailure(t *testing.T) {
	transcoder := ffmpeg.New(ffmpeg.Config{})
	dir := t.TempDir()

	_, err := transcoder.Mux(context.Background(), filepath.Join(dir, "nope.mp4"), filepath.Join(dir, "nope.m4a"))
	requireTranscodeErr(t, err, media.IOFailure)

	_, statErr := os.Stat(filepath.Join(dir, "nope.muxed.mp4"))
	assert.True(t, os.IsNotExist(statErr))
}

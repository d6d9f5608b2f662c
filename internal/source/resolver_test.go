package source_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/source"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type stubRunner struct {
	out  []byte
	err  error
	args []string
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.args = append([]string{name}, args...)
	return r.out, r.err
}

func fixtureResolver(t *testing.T) (*source.Resolver, *stubRunner) {
	raw, err := os.ReadFile("testdata/ytdlp_info.json")
	require.Nil(t, err)

	runner := &stubRunner{out: raw}
	return source.NewResolverWithRunner(source.Config{YtdlpBinPath: "yt-dlp-test"}, runner), runner
}

func Test_Resolve_ClassifiesFormats(t *testing.T) {
	resolver, runner := fixtureResolver(t)

	src, err := resolver.Resolve(context.Background(), "https://video.example.com/watch?v=abc123")
	require.Nil(t, err)

	assert.Equal(t, []string{"yt-dlp-test", "-J", "--no-warnings", "--no-playlist", "https://video.example.com/watch?v=abc123"}, runner.args)
	assert.Equal(t, "Sample Clip: The Movie", src.Title)

	// Storyboard and HLS formats are dropped
	assert.Len(t, src.Streams, 9)
	assert.Len(t, src.StreamsOfKind(media.AudioStream), 3)
	assert.Len(t, src.StreamsOfKind(media.ProgressiveStream), 2)
	assert.Len(t, src.StreamsOfKind(media.VideoStream), 4)

	audio := src.StreamsOfKind(media.AudioStream)
	assert.Equal(t, 129.5, audio[2].Bitrate, "string bitrates should be weakly decoded")
	assert.Equal(t, int64(2900), audio[2].SizeBytes, "approximate size used when exact size missing")
	assert.Equal(t, "mp4a.40.2", audio[1].Codec)
}

func Test_Resolve_ProviderFailureIsNotFound(t *testing.T) {
	resolver := source.NewResolverWithRunner(source.Config{}, &stubRunner{err: errors.New("ERROR: Video unavailable")})

	_, err := resolver.Resolve(context.Background(), "https://video.example.com/missing")

	var resErr *media.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, media.NotFound, resErr.Kind)
	assert.Equal(t, "resolution:not_found", media.ErrorKind(err))
}

func Test_Resolve_MissingProviderBinaryIsNotNotFound(t *testing.T) {
	for name, runErr := range map[string]error{
		"NotOnPath":     &exec.Error{Name: "yt-dlp", Err: exec.ErrNotFound},
		"MissingFile":   &os.PathError{Op: "fork/exec", Path: "/opt/yt-dlp", Err: os.ErrNotExist},
		"NotExecutable": &os.PathError{Op: "fork/exec", Path: "/opt/yt-dlp", Err: os.ErrPermission},
	} {
		t.Run(name, func(t *testing.T) {
			resolver := source.NewResolverWithRunner(source.Config{}, &stubRunner{err: fmt.Errorf("yt-dlp: %w", runErr)})

			_, err := resolver.Resolve(context.Background(), "https://video.example.com/x")
			assert.ErrorIs(t, err, source.ErrProviderUnavailable)
			assert.Equal(t, media.ErrorKindInternal, media.ErrorKind(err))
		})
	}
}

func Test_Resolve_RealMissingBinary(t *testing.T) {
	resolver := source.NewResolver(source.Config{YtdlpBinPath: filepath.Join(t.TempDir(), "yt-dlp")})

	_, err := resolver.Resolve(context.Background(), "https://video.example.com/x")
	assert.ErrorIs(t, err, source.ErrProviderUnavailable)
}

func Test_Resolve_ProviderNetworkFailureIsTransient(t *testing.T) {
	runErr := errors.New("yt-dlp: exit status 1 (stderr: ERROR: [generic] Unable to download webpage: <urlopen error [Errno -3] Temporary failure in name resolution>)")
	resolver := source.NewResolverWithRunner(source.Config{}, &stubRunner{err: runErr})

	_, err := resolver.Resolve(context.Background(), "https://video.example.com/x")
	assert.Equal(t, "fetch:network", media.ErrorKind(err))
	assert.True(t, media.IsTransient(err))
}

func Test_Resolve_GarbageOutputIsNotFound(t *testing.T) {
	resolver := source.NewResolverWithRunner(source.Config{}, &stubRunner{out: []byte("<html>")})

	_, err := resolver.Resolve(context.Background(), "https://video.example.com/x")
	assert.Equal(t, "resolution:not_found", media.ErrorKind(err))
}

func Test_Resolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resolver := source.NewResolverWithRunner(source.Config{}, &stubRunner{err: context.Canceled})

	_, err := resolver.Resolve(ctx, "https://video.example.com/x")
	assert.True(t, media.IsCancelled(err))
}

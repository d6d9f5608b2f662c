package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
	mocks "github.com/hbomb79/Reel/internal/pipeline/mocks"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/hbomb79/Reel/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

const testURL = "https://media.example.com/watch?v=abc123"

var errExpected = errors.New("test: expected error")

type harness struct {
	resolver   *mocks.MockResolver
	fetcher    *mocks.MockFetcher
	transcoder *mocks.MockTranscoder
	sink       *ledger.MemorySink
	ledger     *ledger.Ledger
	config     pipeline.Config
	outputDir  string
}

func newHarness(t *testing.T) *harness {
	sink := ledger.NewMemorySink()
	return &harness{
		resolver:   mocks.NewMockResolver(t),
		fetcher:    mocks.NewMockFetcher(t),
		transcoder: mocks.NewMockTranscoder(t),
		sink:       sink,
		ledger:     ledger.New(sink),
		config: pipeline.Config{
			ScratchDirectory:     t.TempDir(),
			FetchAttempts:        3,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     2 * time.Millisecond,
			Parallelism:          2,
		},
		outputDir: t.TempDir(),
	}
}

func (h *harness) orchestrator() *pipeline.Orchestrator {
	return h.orchestratorWithObserver(nil)
}

func (h *harness) orchestratorWithObserver(observer pipeline.Observer) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(h.config, h.resolver, h.fetcher, h.transcoder, h.ledger, observer)
}

func (h *harness) spec(mode media.Mode) media.JobSpec {
	return h.specFor(testURL, mode)
}

func (h *harness) specFor(url string, mode media.Mode) media.JobSpec {
	return media.JobSpec{URL: url, OutputDirectory: h.outputDir, Mode: mode}
}

func (h *harness) expectSource(src *media.MediaSource) {
	h.resolver.EXPECT().Resolve(mock.Anything, src.URL).Return(src, nil).Once()
	h.resolver.EXPECT().TargetContainer().Return("mp4").Maybe()
}

func (h *harness) records(t *testing.T, url string) []ledger.Record {
	records, err := h.ledger.Query(context.Background(), url)
	require.Nil(t, err)
	return records
}

func stream(id string, kind media.StreamKind, container string, resolution int, bitrate float64) media.StreamDescriptor {
	return media.StreamDescriptor{
		ID:         id,
		Kind:       kind,
		Container:  container,
		Codec:      "test",
		Resolution: resolution,
		Bitrate:    bitrate,
		URL:        "https://cdn.example.com/" + id,
		Title:      "Test Clip",
	}
}

func source(url string, streams ...media.StreamDescriptor) *media.MediaSource {
	return &media.MediaSource{URL: url, Title: "Test Clip", Streams: streams}
}

// writeStream is a fake fetch which writes the stream ID to a file in the
// destination directory.
func writeStream(_ context.Context, s media.StreamDescriptor, destDir string) (*media.FetchResult, error) {
	path := filepath.Join(destDir, s.Filename())
	content := []byte("stream:" + s.ID)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, err
	}

	return &media.FetchResult{LocalPath: path, SizeBytes: int64(len(content)), SourceURL: s.URL}, nil
}

func fakeExtractAudio(_ context.Context, inputPath string) (*media.FetchResult, error) {
	path := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return nil, err
	}

	return &media.FetchResult{LocalPath: path, SizeBytes: 5, SourceURL: inputPath}, nil
}

func fakeMux(_ context.Context, videoPath string, _ string) (*media.FetchResult, error) {
	path := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".muxed.mp4"
	if err := os.WriteFile(path, []byte("muxed"), 0o644); err != nil {
		return nil, err
	}

	return &media.FetchResult{LocalPath: path, SizeBytes: 5, SourceURL: videoPath}, nil
}

func networkError(permanent bool) error {
	return &media.FetchError{Kind: media.Network, SourceURL: "https://cdn.example.com", Permanent: permanent, Err: errExpected}
}

func Test_VideoOnly_FetchesMaximumResolution(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL,
		stream("720", media.VideoStream, "mp4", 720, 0),
		stream("1080", media.VideoStream, "mp4", 1080, 0),
	))
	h.fetcher.EXPECT().
		Fetch(mock.Anything, mock.MatchedBy(func(s media.StreamDescriptor) bool { return s.ID == "1080" }), mock.Anything).
		RunAndReturn(writeStream).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	assert.Equal(t, media.Done, outcome.Stage)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, filepath.Join(h.outputDir, "test-clip.mp4"), outcome.ProducedPath)

	content, err := os.ReadFile(outcome.ProducedPath)
	require.Nil(t, err)
	assert.Equal(t, "stream:1080", string(content))

	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip.mp4")
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_VideoOnly_ReportsStagesInOrder(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("v", media.ProgressiveStream, "mp4", 360, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()

	stages := make([]media.Stage, 0)
	listener := func(_ uuid.UUID, stage media.Stage) { stages = append(stages, stage) }

	spec := h.spec(media.VideoOnly)
	require.Nil(t, spec.Validate())
	outcome := h.orchestrator().RunJob(context.Background(), uuid.New(), spec, listener)

	assert.Equal(t, media.Success, outcome.Status)
	assert.Equal(t, []media.Stage{media.Resolving, media.Fetching, media.Finalizing, media.Done}, stages)
}

func Test_Combined_MuxesBothLegs(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL,
		stream("v1080", media.VideoStream, "mp4", 1080, 0),
		stream("v720", media.VideoStream, "webm", 720, 0),
		stream("a128", media.AudioStream, "m4a", 0, 128),
		stream("a160", media.AudioStream, "webm", 0, 160),
	))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Twice()

	var muxedVideo, muxedAudio string
	h.transcoder.EXPECT().Mux(mock.Anything, mock.Anything, mock.Anything).
		Run(func(_ context.Context, videoPath string, audioPath string) { muxedVideo, muxedAudio = videoPath, audioPath }).
		RunAndReturn(fakeMux).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.Combined))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	assert.True(t, strings.HasSuffix(muxedVideo, "-v1080.mp4"), "expected 1080p video leg, got %s", muxedVideo)
	assert.True(t, strings.HasSuffix(muxedAudio, "-a160.webm"), "expected highest bitrate audio leg, got %s", muxedAudio)

	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip.mp4")
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Combined_AudioFailureBeyondRetryBudget(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL,
		stream("video", media.VideoStream, "mp4", 1080, 0),
		stream("audio", media.AudioStream, "m4a", 0, 128),
	))

	var videoPath string
	h.fetcher.EXPECT().
		Fetch(mock.Anything, mock.MatchedBy(func(s media.StreamDescriptor) bool { return s.ID == "video" }), mock.Anything).
		RunAndReturn(func(ctx context.Context, s media.StreamDescriptor, dir string) (*media.FetchResult, error) {
			res, err := writeStream(ctx, s, dir)
			videoPath = res.LocalPath
			return res, err
		}).
		Once()
	h.fetcher.EXPECT().
		Fetch(mock.Anything, mock.MatchedBy(func(s media.StreamDescriptor) bool { return s.ID == "audio" }), mock.Anything).
		Return(nil, networkError(false)).
		Times(3)

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.Combined))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, "fetch:network", outcome.ErrorKind())
	assert.Empty(t, outcome.ProducedPath)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, media.Fetching, outcome.Errors[0].Stage)

	h.transcoder.AssertNotCalled(t, "Mux", mock.Anything, mock.Anything, mock.Anything)
	assert.NoFileExists(t, videoPath, "video intermediate must be deleted")
	helpers.AssertDirEmpty(t, h.outputDir)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Combined_RequiresBothLegs(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("prog", media.ProgressiveStream, "mp4", 720, 0)))

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.Combined))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, "resolution:no_suitable_stream", outcome.ErrorKind())
	h.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Combined_MuxFailureIsFailureByDefault(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL,
		stream("video", media.VideoStream, "mp4", 1080, 0),
		stream("audio", media.AudioStream, "m4a", 0, 128),
	))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Twice()
	h.transcoder.EXPECT().Mux(mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &media.TranscodeError{Kind: media.UnsupportedCodec, Input: "video", Err: errExpected}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.Combined))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, "transcode:unsupported_codec", outcome.ErrorKind())
	assert.Equal(t, media.Transcoding, outcome.Errors[0].Stage)
	helpers.AssertDirEmpty(t, h.outputDir)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Combined_MuxFailureKeepsVideoWhenConfigured(t *testing.T) {
	h := newHarness(t)
	h.config.KeepPartialArtifacts = true
	h.expectSource(source(testURL,
		stream("video", media.VideoStream, "mp4", 1080, 0),
		stream("audio", media.AudioStream, "m4a", 0, 128),
	))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Twice()
	h.transcoder.EXPECT().Mux(mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &media.TranscodeError{Kind: media.IOFailure, Input: "video", Err: errExpected}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.Combined))
	require.Nil(t, err)

	assert.Equal(t, media.PartialFailure, outcome.Status)
	assert.Equal(t, media.Done, outcome.Stage)
	assert.Equal(t, "transcode:io_failure", outcome.ErrorKind())
	require.FileExists(t, outcome.ProducedPath)

	content, err := os.ReadFile(outcome.ProducedPath)
	require.Nil(t, err)
	assert.Equal(t, "stream:video", string(content))
	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip.mp4")
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)

	records := h.records(t, testURL)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailure, records[0].Status)
	require.NotNil(t, records[0].Filename)
	assert.Equal(t, "test-clip.mp4", *records[0].Filename)
}

func Test_Finalize_OutputDirectoryIsAFile(t *testing.T) {
	h := newHarness(t)
	h.outputDir = filepath.Join(h.outputDir, "not-a-dir")
	require.Nil(t, os.WriteFile(h.outputDir, []byte("occupied"), 0o644))

	h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 720, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, "fetch:disk", outcome.ErrorKind())
	assert.Empty(t, outcome.ProducedPath)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, media.Finalizing, outcome.Errors[0].Stage)

	content, err := os.ReadFile(h.outputDir)
	require.Nil(t, err)
	assert.Equal(t, "occupied", string(content))
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)

	records := h.records(t, testURL)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailure, records[0].Status)
}

func Test_Finalize_FailedMoveReleasesReservedName(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 720, 0)))

	// A directory can be neither renamed over the reserved file nor copied
	// in to it, so both publish strategies fail.
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, s media.StreamDescriptor, destDir string) (*media.FetchResult, error) {
			path := filepath.Join(destDir, s.Filename())
			if err := os.Mkdir(path, 0o755); err != nil {
				return nil, err
			}

			return &media.FetchResult{LocalPath: path, SizeBytes: 1, SourceURL: s.URL}, nil
		}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, "fetch:disk", outcome.ErrorKind())
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, media.Finalizing, outcome.Errors[0].Stage)

	helpers.AssertDirEmpty(t, h.outputDir)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
	require.Len(t, h.records(t, testURL), 1)
}

func Test_AudioOnly_ExtractsFromProgressiveStream(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("prog", media.ProgressiveStream, "mp4", 720, 0)))

	var fetchedPath string
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, s media.StreamDescriptor, dir string) (*media.FetchResult, error) {
			res, err := writeStream(ctx, s, dir)
			fetchedPath = res.LocalPath
			return res, err
		}).
		Once()
	h.transcoder.EXPECT().ExtractAudio(mock.Anything, mock.Anything).RunAndReturn(fakeExtractAudio).Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.AudioOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	assert.Equal(t, filepath.Join(h.outputDir, "test-clip.mp3"), outcome.ProducedPath)
	assert.NoFileExists(t, fetchedPath, "video intermediate must be deleted after extraction")
	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip.mp3")
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_AudioOnly_PrefersAudioStream(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL,
		stream("prog", media.ProgressiveStream, "mp4", 720, 0),
		stream("a64", media.AudioStream, "m4a", 0, 64),
		stream("a128", media.AudioStream, "m4a", 0, 128),
	))
	h.fetcher.EXPECT().
		Fetch(mock.Anything, mock.MatchedBy(func(s media.StreamDescriptor) bool { return s.ID == "a128" }), mock.Anything).
		RunAndReturn(writeStream).
		Once()
	h.transcoder.EXPECT().ExtractAudio(mock.Anything, mock.Anything).RunAndReturn(fakeExtractAudio).Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.AudioOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip.mp3")
}

func Test_AudioOnly_ExtractionFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("prog", media.ProgressiveStream, "mp4", 720, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()
	h.transcoder.EXPECT().ExtractAudio(mock.Anything, mock.Anything).
		Return(nil, &media.TranscodeError{Kind: media.CorruptInput, Input: "prog", Err: errExpected}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.AudioOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, "transcode:corrupt_input", outcome.ErrorKind())
	helpers.AssertDirEmpty(t, h.outputDir)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Fetch_CancelledMidTransfer(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 1080, 0)))

	started := make(chan struct{})
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, s media.StreamDescriptor, dir string) (*media.FetchResult, error) {
			// Leave a partially written file behind; the orchestrator owns the scratch dir
			// and must clean it regardless of the fetcher.
			require.Nil(t, os.WriteFile(filepath.Join(dir, s.Filename()+".part"), []byte("part"), 0o644))
			close(started)

			<-ctx.Done()
			return nil, ctx.Err()
		}).
		Once()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	outcome, err := h.orchestrator().Run(ctx, h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, "fetch:cancelled", outcome.ErrorKind())
	helpers.AssertDirEmpty(t, h.outputDir)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)

	records := h.records(t, testURL)
	require.Len(t, records, 1, "cancelled jobs must still be recorded")
	assert.Equal(t, ledger.StatusFailure, records[0].Status)
	assert.Equal(t, "fetch:cancelled", *records[0].ErrorKind)
}

func Test_Run_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := h.orchestrator().Run(ctx, h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, media.Resolving, outcome.Errors[0].Stage)
	assert.Equal(t, "fetch:cancelled", outcome.ErrorKind())
	assert.Len(t, h.records(t, testURL), 1)
	h.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func Test_Run_TimeoutIsCancellation(t *testing.T) {
	h := newHarness(t)
	h.config.JobTimeout = 20 * time.Millisecond
	h.resolver.EXPECT().Resolve(mock.Anything, testURL).
		RunAndReturn(func(ctx context.Context, url string) (*media.MediaSource, error) {
			<-ctx.Done()
			return nil, &media.ResolutionError{Kind: media.NotFound, URL: url, Err: ctx.Err()}
		}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, "fetch:cancelled", outcome.ErrorKind())
	assert.ErrorIs(t, outcome.Err(), context.DeadlineExceeded)
}

func Test_Fetch_RetriesTransientErrors(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 1080, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).Return(nil, networkError(false)).Twice()
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	h.fetcher.AssertNumberOfCalls(t, "Fetch", 3)
}

func Test_Fetch_DoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"Disk", &media.FetchError{Kind: media.Disk, SourceURL: "x", Err: errExpected}, "fetch:disk"},
		{"PermanentNetwork", networkError(true), "fetch:network"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 1080, 0)))
			h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).Return(nil, test.err).Once()

			outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
			require.Nil(t, err)

			assert.Equal(t, media.Failure, outcome.Status)
			assert.Equal(t, test.kind, outcome.ErrorKind())
			h.fetcher.AssertNumberOfCalls(t, "Fetch", 1)
		})
	}
}

func Test_Resolve_NotFound(t *testing.T) {
	h := newHarness(t)
	h.resolver.EXPECT().Resolve(mock.Anything, testURL).
		Return(nil, &media.ResolutionError{Kind: media.NotFound, URL: testURL, Err: errExpected}).
		Once()

	outcome, err := h.orchestrator().Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Failure, outcome.Status)
	assert.Equal(t, media.Aborted, outcome.Stage)
	assert.Equal(t, "resolution:not_found", outcome.ErrorKind())
	assert.Equal(t, media.Resolving, outcome.Errors[0].Stage)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Run_InvalidSpecIsNotRecorded(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.orchestrator().Run(context.Background(), media.JobSpec{URL: "not a url", OutputDirectory: h.outputDir})
	assert.ErrorIs(t, err, media.ErrInvalidJobSpec)
	assert.Nil(t, outcome)
	assert.Empty(t, h.records(t, "not a url"))
}

func Test_Ledger_RecordsEveryJob(t *testing.T) {
	h := newHarness(t)
	src := source(testURL, stream("v", media.VideoStream, "mp4", 1080, 0))
	h.resolver.EXPECT().Resolve(mock.Anything, testURL).Return(src, nil).Times(3)
	h.resolver.EXPECT().TargetContainer().Return("mp4")
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Twice()
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &media.FetchError{Kind: media.Disk, SourceURL: "x", Err: errExpected}).
		Once()

	orchestrator := h.orchestrator()
	for i := 0; i < 3; i++ {
		_, err := orchestrator.Run(context.Background(), h.spec(media.VideoOnly))
		require.Nil(t, err)
	}

	records := h.records(t, testURL)
	require.Len(t, records, 3)
	assert.Equal(t, ledger.StatusFailure, records[0].Status, "most recent record first")
	assert.Equal(t, ledger.StatusSuccess, records[1].Status)
	assert.Equal(t, ledger.StatusSuccess, records[2].Status)
	for i, record := range records {
		assert.Equal(t, testURL, record.URL)
		assert.Equal(t, "video_only", record.Mode)
		if i > 0 {
			assert.True(t, record.CreatedAt.Before(records[i-1].CreatedAt))
		}
	}

	// Two successful jobs with the same title must not overwrite each other.
	helpers.AssertDirContainsOnly(t, h.outputDir, "test-clip-1.mp4", "test-clip.mp4")
}

func Test_Ledger_FailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("v", media.VideoStream, "mp4", 1080, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()

	mockLedger := mocks.NewMockLedger(t)
	mockLedger.EXPECT().Record(mock.Anything, mock.Anything).Return(ledger.Record{}, errExpected).Once()

	orchestrator := pipeline.NewOrchestrator(h.config, h.resolver, h.fetcher, h.transcoder, mockLedger, nil)
	outcome, err := orchestrator.Run(context.Background(), h.spec(media.VideoOnly))
	require.Nil(t, err)

	assert.Equal(t, media.Success, outcome.Status)
	assert.FileExists(t, outcome.ProducedPath)
}

func Test_ConcurrentJobs_DoNotInterfere(t *testing.T) {
	h := newHarness(t)
	urls := []string{"https://media.example.com/a", "https://media.example.com/b"}
	for _, url := range urls {
		src := &media.MediaSource{URL: url, Title: url, Streams: []media.StreamDescriptor{
			{ID: "video", Kind: media.VideoStream, Container: "mp4", Resolution: 720, URL: url + "/video", Title: url},
			{ID: "audio", Kind: media.AudioStream, Container: "m4a", Bitrate: 128, URL: url + "/audio", Title: url},
		}}
		h.expectSource(src)
	}

	// Both jobs share stream IDs and container; only their scratch
	// directories keep the intermediates apart.
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, s media.StreamDescriptor, dir string) (*media.FetchResult, error) {
			path := filepath.Join(dir, s.ID+"."+s.Container)
			if err := os.WriteFile(path, []byte(s.URL), 0o644); err != nil {
				return nil, err
			}
			return &media.FetchResult{LocalPath: path, SizeBytes: int64(len(s.URL)), SourceURL: s.URL}, nil
		}).
		Times(4)
	h.transcoder.EXPECT().Mux(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, videoPath string, audioPath string) (*media.FetchResult, error) {
			video, err := os.ReadFile(videoPath)
			if err != nil {
				return nil, err
			}
			audio, err := os.ReadFile(audioPath)
			if err != nil {
				return nil, err
			}

			path := filepath.Join(filepath.Dir(videoPath), "muxed.mp4")
			content := string(video) + "+" + string(audio)
			return &media.FetchResult{LocalPath: path, SizeBytes: int64(len(content))}, os.WriteFile(path, []byte(content), 0o644)
		}).
		Times(2)

	orchestrator := h.orchestrator()
	outcomes := make([]*media.JobOutcome, len(urls))
	wg := sync.WaitGroup{}
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			outcome, err := orchestrator.Run(context.Background(), h.specFor(url, media.Combined))
			assert.Nil(t, err)
			outcomes[i] = outcome
		}(i, url)
	}
	wg.Wait()

	for i, url := range urls {
		require.NotNil(t, outcomes[i])
		assert.Equal(t, media.Success, outcomes[i].Status)

		content, err := os.ReadFile(outcomes[i].ProducedPath)
		require.Nil(t, err)
		assert.Equal(t, url+"/video+"+url+"/audio", string(content))
		assert.Len(t, h.records(t, url), 1)
	}

	assert.NotEqual(t, outcomes[0].ProducedPath, outcomes[1].ProducedPath)
	helpers.AssertDirEmpty(t, h.config.ScratchDirectory)
}

func Test_Observer_SeesEveryCollaboratorCall(t *testing.T) {
	h := newHarness(t)
	h.expectSource(source(testURL, stream("prog", media.ProgressiveStream, "mp4", 720, 0)))
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).Return(nil, networkError(false)).Once()
	h.fetcher.EXPECT().Fetch(mock.Anything, mock.Anything, mock.Anything).RunAndReturn(writeStream).Once()
	h.transcoder.EXPECT().ExtractAudio(mock.Anything, mock.Anything).RunAndReturn(fakeExtractAudio).Once()

	mu := sync.Mutex{}
	observed := make([]string, 0)
	failures := 0
	observer := pipeline.ObserverFunc(func(operation string, duration time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()

		assert.GreaterOrEqual(t, duration, time.Duration(0))
		observed = append(observed, operation)
		if err != nil {
			failures++
		}
	})

	outcome, err := h.orchestratorWithObserver(observer).Run(context.Background(), h.spec(media.AudioOnly))
	require.Nil(t, err)
	assert.Equal(t, media.Success, outcome.Status)

	assert.Equal(t, []string{"resolve", "fetch", "fetch", "transcode.extract_audio", "publish", "ledger.record"}, observed)
	assert.Equal(t, 1, failures)
}

//go:build integration

package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/hbomb79/Reel/cmd"
	"github.com/hbomb79/Reel/internal/fetch"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/internal/pipeline"
)

const providerURL = "https://media.example.com/watch?v=feature"

// fakeProvider stands in for both the remote media site (resolution) and
// the CDN which serves the stream bytes.
type fakeProvider struct {
	mu       sync.Mutex
	title    string
	unknown  bool
	streams  []media.StreamDescriptor
	failures map[string]int
	stalls   map[string]bool
	served   map[string]int
	started  chan string
	server   *httptest.Server
}

func newFakeProvider(title string) *fakeProvider {
	p := &fakeProvider{
		title:    title,
		failures: make(map[string]int),
		stalls:   make(map[string]bool),
		served:   make(map[string]int),
		started:  make(chan string, 16),
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveStream))

	return p
}

func (p *fakeProvider) Resolve(_ context.Context, url string) (*media.MediaSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unknown {
		return nil, &media.ResolutionError{Kind: media.NotFound, URL: url, Err: errors.New("video unavailable")}
	}

	streams := make([]media.StreamDescriptor, len(p.streams))
	copy(streams, p.streams)
	return &media.MediaSource{URL: url, Title: p.title, Streams: streams}, nil
}

func (p *fakeProvider) TargetContainer() string { return "mp4" }

func (p *fakeProvider) serveStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/streams/")

	p.mu.Lock()
	p.served[id]++
	status, fails := p.failures[id]
	stalls := p.stalls[id]
	p.mu.Unlock()

	if fails {
		w.WriteHeader(status)
		return
	}

	payload := []byte(strings.Repeat(id, 1024))
	if stalls {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)*4))
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
		w.(http.Flusher).Flush()

		p.started <- id
		<-r.Context().Done()
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Write(payload)
}

func (p *fakeProvider) servedCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.served[id]
}

// fakeTranscoder writes plausible artifacts next to its inputs, recording
// each call.
type fakeTranscoder struct {
	mu       sync.Mutex
	extracts int
	muxes    int
}

func (t *fakeTranscoder) ExtractAudio(_ context.Context, inputPath string) (*media.FetchResult, error) {
	t.mu.Lock()
	t.extracts++
	t.mu.Unlock()

	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".extracted.mp3"
	return writeArtifact(out, inputPath)
}

func (t *fakeTranscoder) Mux(_ context.Context, videoPath string, audioPath string) (*media.FetchResult, error) {
	t.mu.Lock()
	t.muxes++
	t.mu.Unlock()

	out := filepath.Join(filepath.Dir(videoPath), "muxed.mp4")
	return writeArtifact(out, videoPath)
}

func writeArtifact(path string, source string) (*media.FetchResult, error) {
	if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
		return nil, &media.TranscodeError{Kind: media.IOFailure, Input: source, Err: err}
	}

	return &media.FetchResult{LocalPath: path, SizeBytes: 8, SourceURL: source}, nil
}

// orchestratorExecutor adapts the orchestrator to the fetch command.
type orchestratorExecutor struct {
	orchestrator *pipeline.Orchestrator
}

func (e orchestratorExecutor) Fetch(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error) {
	return e.orchestrator.Run(ctx, spec)
}

// acquisitionContext holds test state for acquisition scenarios
type acquisitionContext struct {
	provider   *fakeProvider
	transcoder *fakeTranscoder
	ledger     *ledger.Ledger
	executor   orchestratorExecutor
	workDir    string
	outputDir  string
	scratchDir string
	output     *bytes.Buffer
	outcome    *media.JobOutcome
	err        error
}

// SharedAcquisitionContext is reset before each scenario via Before hook
var SharedAcquisitionContext *acquisitionContext

func getAcquisitionContext() *acquisitionContext {
	return SharedAcquisitionContext
}

func InitializeAcquisitionScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		workDir, err := os.MkdirTemp("", "reel-features-")
		if err != nil {
			return c, err
		}

		a := &acquisitionContext{
			transcoder: &fakeTranscoder{},
			ledger:     ledger.New(ledger.NewMemorySink()),
			workDir:    workDir,
			outputDir:  filepath.Join(workDir, "out"),
			scratchDir: filepath.Join(workDir, "scratch"),
			output:     &bytes.Buffer{},
		}
		if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
			return c, err
		}

		SharedAcquisitionContext = a
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if a := getAcquisitionContext(); a != nil {
			if a.provider != nil {
				a.provider.server.Close()
			}
			os.RemoveAll(a.workDir)
		}

		SharedAcquisitionContext = nil
		return c, nil
	})

	ctx.Step(`^a media provider titled "([^"]*)"$`, aMediaProviderTitled)
	ctx.Step(`^the provider offers the following streams:$`, theProviderOffersTheFollowingStreams)
	ctx.Step(`^the provider does not know the URL$`, theProviderDoesNotKnowTheURL)
	ctx.Step(`^the stream "([^"]*)" fails with status (\d+)$`, theStreamFailsWithStatus)
	ctx.Step(`^the stream "([^"]*)" stalls after sending some bytes$`, theStreamStallsAfterSendingSomeBytes)
	ctx.Step(`^I fetch the URL in "([^"]*)" mode$`, iFetchTheURLInMode)
	ctx.Step(`^I fetch the URL in "([^"]*)" mode and cancel once the download starts$`, iFetchTheURLInModeAndCancelOnceTheDownloadStarts)
	ctx.Step(`^the job should succeed$`, theJobShouldSucceed)
	ctx.Step(`^the job should fail with error kind "([^"]*)"$`, theJobShouldFailWithErrorKind)
	ctx.Step(`^the job should have stopped at stage "([^"]*)"$`, theJobShouldHaveStoppedAtStage)
	ctx.Step(`^the provider should have served "([^"]*)"$`, theProviderShouldHaveServed)
	ctx.Step(`^the provider should have served "([^"]*)" (\d+) times$`, theProviderShouldHaveServedTimes)
	ctx.Step(`^the provider should not have served "([^"]*)"$`, theProviderShouldNotHaveServed)
	ctx.Step(`^no mux should have been attempted$`, noMuxShouldHaveBeenAttempted)
	ctx.Step(`^audio should have been extracted once$`, audioShouldHaveBeenExtractedOnce)
	ctx.Step(`^the output directory should contain only "([^"]*)"$`, theOutputDirectoryShouldContainOnly)
	ctx.Step(`^the output directory should be empty$`, theOutputDirectoryShouldBeEmpty)
	ctx.Step(`^the scratch directory should be empty$`, theScratchDirectoryShouldBeEmpty)
	ctx.Step(`^the ledger should hold (\d+) "([^"]*)" records? for the URL$`, theLedgerShouldHoldRecordsForTheURL)
}

func aMediaProviderTitled(title string) error {
	a := getAcquisitionContext()
	a.provider = newFakeProvider(title)

	config := pipeline.Config{
		ScratchDirectory:     a.scratchDir,
		FetchAttempts:        3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		Parallelism:          1,
	}
	fetcher := fetch.New(fetch.Config{ConnectTimeout: 5 * time.Second})
	orchestrator := pipeline.NewOrchestrator(config, a.provider, fetcher, a.transcoder, a.ledger, pipeline.NewLogObserver())
	a.executor = orchestratorExecutor{orchestrator}

	return nil
}

func theProviderOffersTheFollowingStreams(table *godog.Table) error {
	a := getAcquisitionContext()
	if len(table.Rows) < 2 {
		return fmt.Errorf("expected at least one stream row")
	}

	kinds := map[string]media.StreamKind{"video": media.VideoStream, "audio": media.AudioStream, "progressive": media.ProgressiveStream}
	for _, row := range table.Rows[1:] {
		id := row.Cells[0].Value
		kind, ok := kinds[row.Cells[1].Value]
		if !ok {
			return fmt.Errorf("unknown stream kind %q", row.Cells[1].Value)
		}
		resolution, err := strconv.Atoi(row.Cells[3].Value)
		if err != nil {
			return err
		}
		bitrate, err := strconv.ParseFloat(row.Cells[4].Value, 64)
		if err != nil {
			return err
		}

		a.provider.streams = append(a.provider.streams, media.StreamDescriptor{
			ID:         id,
			Kind:       kind,
			Container:  row.Cells[2].Value,
			Resolution: resolution,
			Bitrate:    bitrate,
			URL:        a.provider.server.URL + "/streams/" + id,
			Title:      a.provider.title,
		})
	}

	return nil
}

func theProviderDoesNotKnowTheURL() error {
	getAcquisitionContext().provider.unknown = true
	return nil
}

func theStreamFailsWithStatus(id string, status int) error {
	getAcquisitionContext().provider.failures[id] = status
	return nil
}

func theStreamStallsAfterSendingSomeBytes(id string) error {
	getAcquisitionContext().provider.stalls[id] = true
	return nil
}

func (a *acquisitionContext) spec(mode string) (media.JobSpec, error) {
	m, err := media.ParseMode(mode)
	if err != nil {
		return media.JobSpec{}, err
	}

	return media.JobSpec{URL: providerURL, OutputDirectory: a.outputDir, Mode: m}, nil
}

// capturingExecutor keeps the outcome the executor produced, as the fetch
// command only reports it's status.
type capturingExecutor struct {
	inner   cmd.JobExecutor
	outcome *media.JobOutcome
}

func (c *capturingExecutor) Fetch(ctx context.Context, spec media.JobSpec) (*media.JobOutcome, error) {
	outcome, err := c.inner.Fetch(ctx, spec)
	c.outcome = outcome
	return outcome, err
}

func (a *acquisitionContext) run(ctx context.Context, mode string) error {
	spec, err := a.spec(mode)
	if err != nil {
		return err
	}

	executor := &capturingExecutor{inner: a.executor}
	a.err = cmd.RunFetchWithDependencies(ctx, executor, spec, a.output)
	a.outcome = executor.outcome
	if a.outcome == nil {
		return fmt.Errorf("job produced no outcome: %v", a.err)
	}

	return nil
}

func iFetchTheURLInMode(mode string) error {
	return getAcquisitionContext().run(context.Background(), mode)
}

func iFetchTheURLInModeAndCancelOnceTheDownloadStarts(mode string) error {
	a := getAcquisitionContext()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.provider.started:
			cancel()
		case <-time.After(5 * time.Second):
		}
	}()

	return a.run(ctx, mode)
}

func theJobShouldSucceed() error {
	a := getAcquisitionContext()
	if a.err != nil {
		return fmt.Errorf("expected job to succeed, got %v (output: %s)", a.err, a.output.String())
	}
	if a.outcome.Status != media.Success {
		return fmt.Errorf("expected status success, got %s", a.outcome.Status)
	}

	return nil
}

func theJobShouldFailWithErrorKind(kind string) error {
	a := getAcquisitionContext()
	if !errors.Is(a.err, cmd.ErrJobFailed) {
		return fmt.Errorf("expected the fetch command to report a failed job, got %v", a.err)
	}
	if a.outcome.Status != media.Failure {
		return fmt.Errorf("expected status failure, got %s", a.outcome.Status)
	}
	if got := a.outcome.ErrorKind(); got != kind {
		return fmt.Errorf("expected error kind %q, got %q", kind, got)
	}

	return nil
}

func theJobShouldHaveStoppedAtStage(stage string) error {
	if got := getAcquisitionContext().outcome.Stage.String(); got != stage {
		return fmt.Errorf("expected final stage %q, got %q", stage, got)
	}

	return nil
}

func theProviderShouldHaveServed(id string) error {
	if getAcquisitionContext().provider.servedCount(id) == 0 {
		return fmt.Errorf("expected stream %q to have been requested", id)
	}

	return nil
}

func theProviderShouldHaveServedTimes(id string, times int) error {
	if got := getAcquisitionContext().provider.servedCount(id); got != times {
		return fmt.Errorf("expected stream %q to have been requested %d times, got %d", id, times, got)
	}

	return nil
}

func theProviderShouldNotHaveServed(id string) error {
	if got := getAcquisitionContext().provider.servedCount(id); got != 0 {
		return fmt.Errorf("expected stream %q to never be requested, got %d requests", id, got)
	}

	return nil
}

func noMuxShouldHaveBeenAttempted() error {
	if muxes := getAcquisitionContext().transcoder.muxes; muxes != 0 {
		return fmt.Errorf("expected no mux, got %d", muxes)
	}

	return nil
}

func audioShouldHaveBeenExtractedOnce() error {
	if extracts := getAcquisitionContext().transcoder.extracts; extracts != 1 {
		return fmt.Errorf("expected exactly one extraction, got %d", extracts)
	}

	return nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names, nil
}

func theOutputDirectoryShouldContainOnly(name string) error {
	names, err := listDir(getAcquisitionContext().outputDir)
	if err != nil {
		return err
	}
	if len(names) != 1 || names[0] != name {
		return fmt.Errorf("expected output directory to contain only %q, got %v", name, names)
	}

	return nil
}

func theOutputDirectoryShouldBeEmpty() error {
	names, err := listDir(getAcquisitionContext().outputDir)
	if err != nil {
		return err
	}
	if len(names) != 0 {
		return fmt.Errorf("expected output directory to be empty, got %v", names)
	}

	return nil
}

func theScratchDirectoryShouldBeEmpty() error {
	names, err := listDir(getAcquisitionContext().scratchDir)
	if err != nil {
		return err
	}
	if len(names) != 0 {
		return fmt.Errorf("expected scratch directory to be empty, got %v", names)
	}

	return nil
}

func theLedgerShouldHoldRecordsForTheURL(count int, status string) error {
	records, err := getAcquisitionContext().ledger.Query(context.Background(), providerURL)
	if err != nil {
		return err
	}

	matching := 0
	for _, record := range records {
		if record.Status == status {
			matching++
		}
	}
	if matching != count || len(records) != count {
		return fmt.Errorf("expected %d %q records, got %d records (%d matching)", count, status, len(records), matching)
	}

	return nil
}

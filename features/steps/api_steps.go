//go:build integration

package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/hbomb79/Reel/internal/api"
	"github.com/hbomb79/Reel/internal/event"
	"github.com/hbomb79/Reel/internal/ledger"
	"github.com/hbomb79/Reel/internal/pipeline"
)

const jobsPath = "/api/reel/v1/jobs"

// apiContext holds test state for API scenarios. The provider, ledger and
// directories are shared with the acquisition context.
type apiContext struct {
	handler  http.Handler
	stop     func()
	status   int
	body     map[string]any
	lastJob  string
	pollTime time.Duration
}

var SharedApiContext *apiContext

func getApiContext() *apiContext {
	return SharedApiContext
}

func InitializeApiScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedApiContext = &apiContext{pollTime: 5 * time.Second}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if a := getApiContext(); a != nil && a.stop != nil {
			a.stop()
		}

		SharedApiContext = nil
		return c, nil
	})

	ctx.Step(`^the reel API is running$`, theReelAPIIsRunning)
	ctx.Step(`^I submit a "([^"]*)" job for the URL$`, iSubmitAJobForTheURL)
	ctx.Step(`^I cancel the job once the download starts$`, iCancelTheJobOnceTheDownloadStarts)
	ctx.Step(`^the response status should be (\d+)$`, theResponseStatusShouldBe)
	ctx.Step(`^the job should eventually be "([^"]*)" with status "([^"]*)"$`, theJobShouldEventuallyBeWithStatus)
	ctx.Step(`^the history for the URL should list (\d+) "([^"]*)" records?$`, theHistoryForTheURLShouldListRecords)
}

func theReelAPIIsRunning() error {
	acq := getAcquisitionContext()
	a := getApiContext()

	service, err := pipeline.NewService(pipeline.Config{Parallelism: 2}, acq.executor.orchestrator, event.New())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.Run(ctx)
	}()
	a.stop = func() {
		cancel()
		wg.Wait()
	}

	gateway := api.NewRestGateway(&api.RestConfig{HostAddr: "127.0.0.1:0"}, service, acq.ledger, acq.outputDir)
	a.handler = gateway.Handler()
	return nil
}

func (a *apiContext) do(method string, target string, body string) (int, []byte) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func iSubmitAJobForTheURL(mode string) error {
	a := getApiContext()
	status, raw := a.do(http.MethodPost, jobsPath, fmt.Sprintf(`{"url":%q,"mode":%q}`, providerURL, mode))

	a.status = status
	a.body = nil
	if status == http.StatusAccepted {
		if err := json.Unmarshal(raw, &a.body); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}
		a.lastJob, _ = a.body["id"].(string)
	}

	return nil
}

func iCancelTheJobOnceTheDownloadStarts() error {
	acq := getAcquisitionContext()
	a := getApiContext()

	select {
	case <-acq.provider.started:
	case <-time.After(a.pollTime):
		return fmt.Errorf("download never started")
	}

	a.status, _ = a.do(http.MethodDelete, jobsPath+"/"+a.lastJob, "")
	return nil
}

func theResponseStatusShouldBe(status int) error {
	if got := getApiContext().status; got != status {
		return fmt.Errorf("expected response status %d, got %d", status, got)
	}

	return nil
}

func theJobShouldEventuallyBeWithStatus(state string, status string) error {
	a := getApiContext()
	deadline := time.Now().Add(a.pollTime)

	var last map[string]any
	for time.Now().Before(deadline) {
		code, raw := a.do(http.MethodGet, jobsPath+"/"+a.lastJob, "")
		if code != http.StatusOK {
			return fmt.Errorf("unexpected status %d fetching job", code)
		}
		if err := json.Unmarshal(raw, &last); err != nil {
			return err
		}

		if last["state"] == state {
			outcome, _ := last["outcome"].(map[string]any)
			if outcome == nil || outcome["status"] != status {
				return fmt.Errorf("expected outcome status %q, got %v", status, outcome)
			}
			return nil
		}

		time.Sleep(10 * time.Millisecond)
	}

	return fmt.Errorf("job never reached state %q (last seen %v)", state, last)
}

func theHistoryForTheURLShouldListRecords(count int, status string) error {
	a := getApiContext()
	code, raw := a.do(http.MethodGet, "/api/reel/v1/history?url="+url.QueryEscape(providerURL), "")
	if code != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching history", code)
	}

	var records []ledger.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return err
	}
	if len(records) != count {
		return fmt.Errorf("expected %d records, got %d", count, len(records))
	}
	for _, record := range records {
		if record.Status != status {
			return fmt.Errorf("expected record status %q, got %q", status, record.Status)
		}
	}

	return nil
}

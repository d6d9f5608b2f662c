//go:build integration

package features

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/hbomb79/Reel/features/steps"
	"github.com/hbomb79/Reel/pkg/logger"
)

func TestFeatures(t *testing.T) {
	logger.SetMinLoggingLevel(logger.WARNING.Level())

	opts := godog.Options{
		Format:   "pretty",
		Output:   colors.Colored(os.Stdout),
		Paths:    []string{"./"},
		TestingT: t,
	}

	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenarios,
		Options:             &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func initializeScenarios(ctx *godog.ScenarioContext) {
	steps.InitializeAcquisitionScenario(ctx)
	steps.InitializeApiScenario(ctx)
}

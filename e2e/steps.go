package e2e

import (
	"github.com/cucumber/godog"

	"referralintake/e2e/steps/accesskey"
	"referralintake/e2e/steps/common"
	"referralintake/e2e/steps/referral"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic response assertions)
	common.RegisterSteps(ctx, tc)

	// Register access-key verification steps
	accesskey.RegisterSteps(ctx, tc)

	// Register referral intake and lifecycle steps
	referral.RegisterSteps(ctx, tc)
}

package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Status() int
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers the generic response assertions shared by every
// feature.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the response status is (\d+)$`, steps.responseStatusIs)
	ctx.Step(`^the response field "([^"]*)" is "([^"]*)"$`, steps.responseFieldIs)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) responseStatusIs(ctx context.Context, expected int) error {
	if s.tc.Status() != expected {
		return fmt.Errorf("expected status %d, got %d", expected, s.tc.Status())
	}
	return nil
}

func (s *commonSteps) responseFieldIs(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", value) != expected {
		return fmt.Errorf("expected field %q to be %q, got %v", field, expected, value)
	}
	return nil
}

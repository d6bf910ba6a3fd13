package accesskey

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	SaveIssuedCode(email, code string)
	IssuedCode(email string) (string, error)
	SetStaffToken(token string)
}

// RegisterSteps registers access-key issue and validation step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accessKeySteps{tc: tc}

	ctx.Step(`^I request an access key for "([^"]*)"$`, steps.requestAccessKey)
	ctx.Step(`^I validate the issued code for "([^"]*)"$`, steps.validateIssuedCode)
	ctx.Step(`^I validate code "([^"]*)" for "([^"]*)"$`, steps.validateCode)
	ctx.Step(`^I save the staff token$`, steps.saveStaffToken)
}

type accessKeySteps struct {
	tc TestContext
}

func (s *accessKeySteps) requestAccessKey(ctx context.Context, email string) error {
	if err := s.tc.POST("/access-keys", map[string]interface{}{"email": email}, nil); err != nil {
		return err
	}
	// The server echoes the plaintext code only when started with
	// ACCESS_KEY_ECHO_CODE=true; without it these scenarios cannot run.
	code, err := s.tc.GetResponseField("code")
	if err != nil {
		return fmt.Errorf("%w (is the server running with ACCESS_KEY_ECHO_CODE=true?)", err)
	}
	s.tc.SaveIssuedCode(email, code.(string))
	return nil
}

func (s *accessKeySteps) validateIssuedCode(ctx context.Context, email string) error {
	code, err := s.tc.IssuedCode(email)
	if err != nil {
		return err
	}
	return s.validateCode(ctx, code, email)
}

func (s *accessKeySteps) validateCode(ctx context.Context, code, email string) error {
	return s.tc.POST("/access-keys/validate", map[string]interface{}{
		"email": email,
		"code":  code,
	}, nil)
}

func (s *accessKeySteps) saveStaffToken(ctx context.Context) error {
	token, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	s.tc.SetStaffToken(token.(string))
	return nil
}

package referral

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	ResponseList() ([]interface{}, error)
	StaffToken() string
	SetReferralID(id string)
	ReferralID() (string, error)
}

// RegisterSteps registers referral intake and lifecycle step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &referralSteps{tc: tc}

	ctx.Step(`^I submit a "([^"]*)" referral with nhs number "([^"]*)" and email "([^"]*)"$`, steps.submitReferral)
	ctx.Step(`^I submit a staff referral with nhs number "([^"]*)"$`, steps.submitStaffReferral)
	ctx.Step(`^I submit a staff referral with nhs number "([^"]*)" without a token$`, steps.submitStaffReferralWithoutToken)
	ctx.Step(`^I save the referral id$`, steps.saveReferralID)
	ctx.Step(`^I triage the referral as completion "([^"]*)" and weighted "([^"]*)"$`, steps.triageReferral)
	ctx.Step(`^I list candidate providers for the referral$`, steps.listCandidateProviders)
	ctx.Step(`^I select the first candidate provider$`, steps.selectFirstProvider)
	ctx.Step(`^I move the referral to "([^"]*)"$`, steps.moveReferral)
	ctx.Step(`^I check reuse for nhs number "([^"]*)"$`, steps.checkReuse)
}

type referralSteps struct {
	tc TestContext
}

func (s *referralSteps) submitReferral(ctx context.Context, channel, nhsNumber, email string) error {
	return s.tc.POST("/referrals/"+channel, map[string]interface{}{
		"nhs_number": nhsNumber,
		"email":      email,
	}, nil)
}

func (s *referralSteps) submitStaffReferral(ctx context.Context, nhsNumber string) error {
	return s.tc.POST("/referrals/staff", map[string]interface{}{
		"nhs_number": nhsNumber,
		"email":      "spoofed@example.com",
	}, map[string]string{
		"Authorization": "Bearer " + s.tc.StaffToken(),
	})
}

func (s *referralSteps) submitStaffReferralWithoutToken(ctx context.Context, nhsNumber string) error {
	return s.tc.POST("/referrals/staff", map[string]interface{}{
		"nhs_number": nhsNumber,
		"email":      "unverified@example.com",
	}, nil)
}

func (s *referralSteps) saveReferralID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.SetReferralID(id.(string))
	return nil
}

func (s *referralSteps) triageReferral(ctx context.Context, completion, weighted string) error {
	id, err := s.tc.ReferralID()
	if err != nil {
		return err
	}
	return s.tc.POST("/referrals/"+id+"/triage", map[string]interface{}{
		"completion_level": completion,
		"weighted_level":   weighted,
	}, nil)
}

func (s *referralSteps) listCandidateProviders(ctx context.Context) error {
	id, err := s.tc.ReferralID()
	if err != nil {
		return err
	}
	return s.tc.GET("/referrals/"+id+"/providers", nil)
}

func (s *referralSteps) selectFirstProvider(ctx context.Context) error {
	candidates, err := s.tc.ResponseList()
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no candidate providers returned")
	}
	first, ok := candidates[0].(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected candidate shape: %v", candidates[0])
	}
	providerID, ok := first["id"].(string)
	if !ok {
		return fmt.Errorf("candidate has no id: %v", first)
	}

	id, err := s.tc.ReferralID()
	if err != nil {
		return err
	}
	return s.tc.POST("/referrals/"+id+"/provider", map[string]interface{}{
		"provider_id": providerID,
	}, nil)
}

func (s *referralSteps) moveReferral(ctx context.Context, status string) error {
	id, err := s.tc.ReferralID()
	if err != nil {
		return err
	}
	return s.tc.POST("/referrals/"+id+"/status", map[string]interface{}{
		"status": status,
	}, nil)
}

func (s *referralSteps) checkReuse(ctx context.Context, nhsNumber string) error {
	return s.tc.GET("/referrals/reuse?nhs_number="+url.QueryEscape(nhsNumber), nil)
}

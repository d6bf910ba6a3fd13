// Package e2e drives a running referral intake server over HTTP with godog.
//
// The server under test must be started separately with
// ACCESS_KEY_ECHO_CODE=true so the scenarios can learn the plaintext codes
// they are issued. REFERRAL_INTAKE_BASE_URL overrides the default target of
// http://localhost:8080.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TestContext carries shared state across the steps of a scenario: the last
// HTTP response plus the identifiers earlier steps saved for later ones.
type TestContext struct {
	baseURL string
	client  *http.Client

	status   int
	rawBody  []byte
	bodyMap  map[string]interface{}
	bodyList []interface{}

	issuedCodes map[string]string
	staffToken  string
	referralID  string
}

// NewTestContext builds a context targeting REFERRAL_INTAKE_BASE_URL, or
// localhost:8080 when unset.
func NewTestContext() *TestContext {
	base := os.Getenv("REFERRAL_INTAKE_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		baseURL:     base,
		client:      &http.Client{Timeout: 10 * time.Second},
		issuedCodes: make(map[string]string),
	}
}

// Reset clears per-scenario state. Issued codes survive a reset so that a
// scenario's later steps can still replay a code saved before an assertion.
func (tc *TestContext) Reset() {
	tc.status = 0
	tc.rawBody = nil
	tc.bodyMap = nil
	tc.bodyList = nil
	tc.staffToken = ""
	tc.referralID = ""
}

// POST sends a JSON body to path, with optional extra headers.
func (tc *TestContext) POST(path string, body interface{}, headers map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

// GET fetches path with optional extra headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	tc.status = resp.StatusCode
	tc.rawBody = body
	tc.bodyMap = nil
	tc.bodyList = nil
	if len(body) > 0 {
		switch body[0] {
		case '{':
			if err := json.Unmarshal(body, &tc.bodyMap); err != nil {
				return fmt.Errorf("decode response object: %w", err)
			}
		case '[':
			if err := json.Unmarshal(body, &tc.bodyList); err != nil {
				return fmt.Errorf("decode response array: %w", err)
			}
		}
	}
	return nil
}

// Status returns the status code of the last response.
func (tc *TestContext) Status() int {
	return tc.status
}

// GetResponseField looks a field up in the last JSON object response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.bodyMap == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", tc.rawBody)
	}
	v, ok := tc.bodyMap[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.rawBody)
	}
	return v, nil
}

// ResponseList returns the last response when it was a JSON array.
func (tc *TestContext) ResponseList() ([]interface{}, error) {
	if tc.bodyList == nil {
		return nil, fmt.Errorf("last response was not a JSON array: %s", tc.rawBody)
	}
	return tc.bodyList, nil
}

func (tc *TestContext) SaveIssuedCode(email, code string) { tc.issuedCodes[email] = code }

func (tc *TestContext) IssuedCode(email string) (string, error) {
	code, ok := tc.issuedCodes[email]
	if !ok {
		return "", fmt.Errorf("no issued code saved for %q", email)
	}
	return code, nil
}

func (tc *TestContext) SetStaffToken(token string) { tc.staffToken = token }
func (tc *TestContext) StaffToken() string         { return tc.staffToken }

func (tc *TestContext) SetReferralID(id string) { tc.referralID = id }

func (tc *TestContext) ReferralID() (string, error) {
	if tc.referralID == "" {
		return "", fmt.Errorf("no referral id saved")
	}
	return tc.referralID, nil
}

package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/apiprobe/apiprobe/pkg/schema"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

// fakeClient scripts responses per "METHOD path-suffix" and records
// every request it saw.
type fakeClient struct {
	handler  func(req *transport.Request) (*transport.Response, error)
	requests []*transport.Request
}

func (f *fakeClient) Do(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	return f.handler(req)
}

func jsonResponse(status int, body string) (*transport.Response, error) {
	return &transport.Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}, nil
}

func newTestExecutor(client transport.Client) *Executor {
	e := NewExecutor(client)
	e.BaseURL = "https://api.test"
	e.Out = io.Discard
	return e
}

func parseScenario(t *testing.T, doc string) *schema.Scenario {
	t.Helper()
	d, err := schema.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	sc, err := schema.Parse(d)
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	return sc
}

func TestExecutePassingScenario(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		switch {
		case strings.HasSuffix(req.URL, "/login"):
			return jsonResponse(200, `{"token":"tok-1","id":7}`)
		default:
			return jsonResponse(200, `{"ok":true}`)
		}
	}}

	sc := parseScenario(t, `
scenario:
  name: happy path
  steps:
    - name: log in
      api: POST /login
      extract:
        - name: token
          path: $.token
      assert:
        - status_code == 200
    - name: use token
      api: GET /profile
      request:
        headers:
          Authorization: Bearer ${token}
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	if !result.Passed {
		t.Fatalf("scenario failed: %+v", result)
	}
	if result.PassedSteps != 2 || result.FailedSteps != 0 {
		t.Errorf("counts = %d/%d", result.PassedSteps, result.FailedSteps)
	}
	// The extracted token must flow into the next step's headers.
	if got := client.requests[1].Headers["Authorization"]; got != "Bearer tok-1" {
		t.Errorf("Authorization = %q", got)
	}
	if result.ContextSnapshot["scenario"]["token"] != "tok-1" {
		t.Errorf("snapshot = %v", result.ContextSnapshot["scenario"])
	}
}

func TestExecuteAssertionFailureNamesRule(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(404, `{"error":"not found"}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: assertion failure
  steps:
    - name: fetch
      api: GET /thing
      assert:
        - status_code == 200
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	if result.Passed {
		t.Fatal("scenario should have failed")
	}
	sr := result.StepResults[0]
	if sr.Passed {
		t.Error("step should have failed")
	}
	if len(sr.Errors) != 1 || sr.Errors[0] != "assertion failed: status_code == 200" {
		t.Errorf("errors = %v", sr.Errors)
	}
}

func TestExecuteNoAssertionsUsesStatusRange(t *testing.T) {
	status := 204
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(status, ``)
	}}
	sc := parseScenario(t, `
scenario:
  name: status only
  steps:
    - name: fetch
      api: GET /thing
`)
	e := newTestExecutor(client)

	if result := e.Execute(context.Background(), sc); !result.Passed {
		t.Errorf("204 should pass: %+v", result.StepResults[0])
	}
	status = 500
	if result := e.Execute(context.Background(), sc); result.Passed {
		t.Error("500 should fail")
	}
}

func TestExecuteRequestErrorContinuesPhase(t *testing.T) {
	calls := 0
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		calls++
		if calls == 1 {
			return nil, &transport.RequestError{Kind: transport.ErrConnection, Err: errors.New("refused")}
		}
		return jsonResponse(200, `{}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: flaky
  steps:
    - name: down
      api: GET /a
    - name: up
      api: GET /b
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	if calls != 2 {
		t.Fatalf("second step did not run, calls = %d", calls)
	}
	if result.StepResults[0].Passed {
		t.Error("failed request should fail the step")
	}
	if !strings.HasPrefix(result.StepResults[0].Errors[0], "request failed:") {
		t.Errorf("errors = %v", result.StepResults[0].Errors)
	}
	if !result.StepResults[1].Passed {
		t.Error("the phase should continue past a request failure")
	}
}

func TestExecuteTeardownAlwaysRuns(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		if strings.HasSuffix(req.URL, "/boom") {
			panic("kaboom")
		}
		return jsonResponse(200, `{}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: teardown invariance
  setup:
    - name: explode
      api: GET /boom
  steps:
    - name: never runs
      api: GET /main
  teardown:
    - name: cleanup
      api: DELETE /resource
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	if result.Passed {
		t.Error("scenario with a scenario-level error must not pass")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "scenario error in setup") {
		t.Errorf("scenario errors = %v", result.Errors)
	}
	if len(result.StepResults) != 0 {
		t.Errorf("main steps ran after setup blew up: %v", result.StepResults)
	}
	if len(result.TeardownResults) != 1 || !result.TeardownResults[0].Passed {
		t.Fatalf("teardown results = %+v", result.TeardownResults)
	}
}

func TestExecuteTemplateErrorIsStepError(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, `{}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: bad template
  steps:
    - name: broken
      api: GET /x
      request:
        headers:
          X-Custom: ${frobnicate()}
    - name: fine
      api: GET /y
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	sr := result.StepResults[0]
	if sr.Passed {
		t.Error("step with an unknown template function should fail")
	}
	if len(sr.Errors) != 1 || !strings.HasPrefix(sr.Errors[0], "step execution error:") {
		t.Errorf("errors = %v", sr.Errors)
	}
	if !result.StepResults[1].Passed {
		t.Error("later steps should still run")
	}
	if len(result.TeardownResults) != 0 {
		t.Errorf("unexpected teardown results: %v", result.TeardownResults)
	}
}

func TestExecuteBranchRecordedNotExecuted(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, `{"verified":true}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: branch
  steps:
    - name: check
      api: GET /user
      condition:
        if: response.verified == true
        then:
          - name: congratulate
            api: POST /congrats
        else:
          - name: nag
            api: POST /nag
`)
	result := newTestExecutor(client).Execute(context.Background(), sc)

	if got := result.StepResults[0].BranchTaken; got != "then" {
		t.Errorf("BranchTaken = %q, want then", got)
	}
	if len(client.requests) != 1 {
		t.Errorf("branch steps were executed: %d requests", len(client.requests))
	}
	if len(result.StepResults[0].Warnings) == 0 {
		t.Error("expected a warning that the branch is not executed")
	}
}

func TestExecuteConfigSeedsGlobalScope(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(200, `{}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: config
  config:
    base_url: https://from-config.test
    tenant: acme
  steps:
    - name: fetch
      api: GET /t/${tenant}
`)
	e := NewExecutor(client)
	e.Out = io.Discard
	result := e.Execute(context.Background(), sc)

	if got := client.requests[0].URL; got != "https://from-config.test/t/acme" {
		t.Errorf("URL = %q", got)
	}
	if result.ContextSnapshot["global"]["tenant"] != "acme" {
		t.Errorf("global scope = %v", result.ContextSnapshot["global"])
	}
}

func TestExecuteRequestBodyResolved(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(201, `{"id":1}`)
	}}
	sc := parseScenario(t, `
scenario:
  name: body resolution
  config:
    plan: pro
  steps:
    - name: create
      api: POST /subscriptions
      request:
        body:
          plan: ${plan}
          seats: 3
      assert:
        - status_code == 201
`)
	newTestExecutor(client).Execute(context.Background(), sc)

	body, ok := client.requests[0].Body.(map[string]any)
	if !ok {
		t.Fatalf("body = %T", client.requests[0].Body)
	}
	if body["plan"] != "pro" {
		t.Errorf("plan = %v", body["plan"])
	}
	if _, err := json.Marshal(body); err != nil {
		t.Errorf("body not JSON-encodable: %v", err)
	}
}

package runner

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apiprobe/apiprobe/pkg/auth"
	"github.com/apiprobe/apiprobe/pkg/generator"
	"github.com/apiprobe/apiprobe/pkg/openapi"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

type fakeClient struct {
	mu       sync.Mutex
	handler  func(req *transport.Request) (*transport.Response, error)
	requests []*transport.Request
}

func (f *fakeClient) Do(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handler(req)
}

func respond(status int, body string) (*transport.Response, error) {
	return &transport.Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}, nil
}

var petEndpoint = openapi.Endpoint{
	Method:      "GET",
	Path:        "/pets/{petId}",
	OperationID: "getPet",
	Responses: map[string]map[string]any{
		"200": {
			"description": "ok",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type":     "object",
						"required": []any{"id", "name"},
						"properties": map[string]any{
							"id":   map[string]any{"type": "integer"},
							"name": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
	},
}

func TestRunCasePassesOnExpectedStatus(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(200, `{"id":1,"name":"rex"}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}

	c := generator.Case{
		ID:                  "TC-getPet-POS-001",
		Method:              "GET",
		Path:                "/pets/{petId}",
		PathParams:          map[string]any{"petId": 1},
		ExpectedStatusCodes: []int{200},
	}
	res := r.RunCase(context.Background(), c, petEndpoint)
	if !res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if got := client.requests[0].URL; got != "https://api.test/pets/1" {
		t.Errorf("URL = %q", got)
	}
}

func TestRunCaseFailsOnUnexpectedStatus(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(500, `{}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}

	c := generator.Case{Method: "GET", Path: "/x", ExpectedStatusCodes: []int{200}}
	res := r.RunCase(context.Background(), c, petEndpoint)
	if res.Passed {
		t.Fatal("unexpected status should fail")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "unexpected status 500") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestRunCaseAppliesAuthUnlessSkipped(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(200, `{"id":1,"name":"rex"}`)
	}}
	handler, err := auth.New(auth.Config{Type: "apiKey", Name: "X-API-Key", In: "header", Value: "k"})
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	r := &Runner{Client: client, BaseURL: "https://api.test", Auth: handler}

	r.RunCase(context.Background(), generator.Case{Method: "GET", Path: "/a", ExpectedStatusCodes: []int{200}}, petEndpoint)
	r.RunCase(context.Background(), generator.Case{Method: "GET", Path: "/b", SkipAuth: true, ExpectedStatusCodes: []int{200}}, petEndpoint)

	if client.requests[0].Headers["X-API-Key"] != "k" {
		t.Errorf("auth not applied: %v", client.requests[0].Headers)
	}
	if _, ok := client.requests[1].Headers["X-API-Key"]; ok {
		t.Error("auth applied despite SkipAuth")
	}
}

func TestRunCaseStrictSchemaValidation(t *testing.T) {
	body := `{"id":1,"name":"rex"}`
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(200, body)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}
	c := generator.Case{
		Method: "GET", Path: "/pets/1",
		ExpectedStatusCodes: []int{200},
		ValidateSchema:      true,
		StrictSchema:        true,
	}

	if res := r.RunCase(context.Background(), c, petEndpoint); !res.Passed {
		t.Fatalf("conforming body failed: %+v", res)
	}

	body = `{"id":"not-an-int"}`
	res := r.RunCase(context.Background(), c, petEndpoint)
	if res.Passed {
		t.Fatal("non-conforming body passed strict validation")
	}
	if len(res.Errors) == 0 {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestRunCaseUndeclaredStatusIsWarningWhenNotStrict(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(201, `{}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}
	c := generator.Case{
		Method: "GET", Path: "/pets/1",
		ExpectedStatusCodes: []int{201},
		ValidateSchema:      true,
	}
	res := r.RunCase(context.Background(), c, petEndpoint)
	if !res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "not documented") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestRunCaseSecurityServerError(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(500, `{}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}
	c := generator.Case{
		Type: "security", Method: "GET", Path: "/x",
		ExpectedStatusCodes: []int{200, 400, 500},
	}
	res := r.RunCase(context.Background(), c, petEndpoint)
	if res.Passed {
		t.Fatal("5xx on an injection probe must fail")
	}
	if !strings.Contains(res.Errors[0], "server error") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestRunSuiteParallelCollectsAll(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return respond(200, `{"id":1,"name":"rex"}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}

	cases := make([]generator.Case, 20)
	for i := range cases {
		cases[i] = generator.Case{Method: "GET", Path: "/pets/1", ExpectedStatusCodes: []int{200}}
	}
	results := r.RunSuite(context.Background(), cases, petEndpoint, true, 4)

	if len(results) != 20 || calls.Load() != 20 {
		t.Fatalf("results = %d, calls = %d", len(results), calls.Load())
	}
	s := Summarize(results)
	if s.Passed != 20 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRunSuiteSequentialPreservesOrder(t *testing.T) {
	client := &fakeClient{handler: func(req *transport.Request) (*transport.Response, error) {
		return respond(200, `{"id":1,"name":"rex"}`)
	}}
	r := &Runner{Client: client, BaseURL: "https://api.test"}

	cases := []generator.Case{
		{ID: "first", Method: "GET", Path: "/a", ExpectedStatusCodes: []int{200}},
		{ID: "second", Method: "GET", Path: "/b", ExpectedStatusCodes: []int{200}},
	}
	results := r.RunSuite(context.Background(), cases, petEndpoint, false, 1)
	if results[0].CaseID != "first" || results[1].CaseID != "second" {
		t.Errorf("order = %v, %v", results[0].CaseID, results[1].CaseID)
	}
}

// Package runner executes generated test cases against a live API.
// Cases are stateless and independent, so a suite can fan out over a
// worker pool; results are collected unordered.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apiprobe/apiprobe/pkg/auth"
	"github.com/apiprobe/apiprobe/pkg/generator"
	"github.com/apiprobe/apiprobe/pkg/openapi"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

// Result is the outcome of one executed case.
type Result struct {
	CaseID     string        `json:"case_id"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Passed     bool          `json:"passed"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Errors     []string      `json:"errors,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Runner executes cases through a transport client.
type Runner struct {
	Client  transport.Client
	BaseURL string
	Auth    *auth.Handler
	Timeout time.Duration
}

// RunCase executes a single case and grades its response.
func (r *Runner) RunCase(ctx context.Context, c generator.Case, ep openapi.Endpoint) *Result {
	res := &Result{CaseID: c.ID, Name: c.Name, Type: c.Type}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	req := r.buildRequest(c)
	resp, err := r.Client.Do(ctx, req)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("request failed: %v", err))
		return res
	}
	res.StatusCode = resp.StatusCode

	if !statusExpected(resp.StatusCode, c.ExpectedStatusCodes) {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"unexpected status %d, want one of %v", resp.StatusCode, c.ExpectedStatusCodes))
		return res
	}

	if c.Type == "security" && resp.StatusCode >= 500 {
		res.Errors = append(res.Errors, fmt.Sprintf("injection payload caused server error %d", resp.StatusCode))
		return res
	}

	if c.ValidateSchema {
		findings := validateResponse(resp, ep, c.StrictSchema)
		for _, f := range findings {
			if c.StrictSchema {
				res.Errors = append(res.Errors, f)
			} else {
				res.Warnings = append(res.Warnings, f)
			}
		}
		if len(res.Errors) > 0 {
			return res
		}
	}

	res.Passed = true
	return res
}

// RunSuite executes a case set. With parallel true, workers goroutines
// share the case list and results arrive unordered; otherwise cases
// run sequentially in order.
func (r *Runner) RunSuite(ctx context.Context, cases []generator.Case, ep openapi.Endpoint, parallel bool, workers int) []*Result {
	if !parallel || workers <= 1 {
		results := make([]*Result, 0, len(cases))
		for _, c := range cases {
			results = append(results, r.RunCase(ctx, c, ep))
		}
		return results
	}

	jobs := make(chan generator.Case)
	out := make(chan *Result)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				out <- r.RunCase(ctx, c, ep)
			}
		}()
	}
	go func() {
		for _, c := range cases {
			jobs <- c
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	results := make([]*Result, 0, len(cases))
	for res := range out {
		results = append(results, res)
	}
	return results
}

// buildRequest turns a case into a concrete transport request: path
// parameters substituted, auth applied unless the case opts out.
func (r *Runner) buildRequest(c generator.Case) *transport.Request {
	path := c.Path
	for name, v := range c.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", fmt.Sprintf("%v", v))
	}

	headers := map[string]string{}
	for k, v := range c.Headers {
		headers[k] = fmt.Sprintf("%v", v)
	}
	query := map[string]string{}
	for k, v := range c.QueryParams {
		query[k] = fmt.Sprintf("%v", v)
	}
	if !c.SkipAuth {
		r.Auth.Apply(headers, query)
	}

	return &transport.Request{
		Method:  c.Method,
		URL:     strings.TrimRight(r.BaseURL, "/") + path,
		Headers: headers,
		Query:   query,
		Body:    c.Body,
		Timeout: r.Timeout,
	}
}

// Summary aggregates a result list.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	ByType   map[string]int
	Duration time.Duration
}

// Summarize tallies results by outcome and case type.
func Summarize(results []*Result) Summary {
	s := Summary{ByType: map[string]int{}}
	for _, r := range results {
		s.Total++
		s.Duration += r.Duration
		s.ByType[r.Type]++
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

func statusExpected(status int, expected []int) bool {
	if len(expected) == 0 {
		return status >= 200 && status < 300
	}
	for _, e := range expected {
		if status == e {
			return true
		}
	}
	return false
}

func decodeJSON(data []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

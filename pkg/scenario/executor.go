package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apiprobe/apiprobe/pkg/schema"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

// Executor runs scenarios against a live API through a transport
// client. Execution is strictly sequential: one step at a time, phases
// in setup → steps → teardown order, and teardown always runs.
type Executor struct {
	Client    transport.Client
	BaseURL   string        // overrides the scenario's config base_url
	Timeout   time.Duration // overrides the scenario's config timeout
	AuthToken string        // bearer token added when no Authorization header is set
	Out       io.Writer     // progress output, default os.Stdout
}

// NewExecutor creates an executor with progress output on stdout.
func NewExecutor(client transport.Client) *Executor {
	return &Executor{Client: client, Out: os.Stdout}
}

// Execute runs one scenario and returns its result. Step failures and
// scenario-level errors are captured in the result; Execute itself
// never fails. Teardown steps run even when setup or main steps blew
// up, so resources acquired in setup get their release attempt.
func (e *Executor) Execute(ctx context.Context, sc *schema.Scenario) *ScenarioResult {
	start := time.Now()
	result := &ScenarioResult{Name: sc.Name, Description: sc.Description}

	c := NewContext()
	e.seedConfig(c, sc.Config)
	ev := NewEvaluator(c)

	fmt.Fprintf(e.out(), "▶ scenario: %s\n", sc.Name)

	// Fixed phase order: setup, main steps, teardown. A scenario-level
	// error in setup skips the main steps; teardown runs regardless.
	setupOK := e.runPhase(ctx, c, ev, "setup", sc.Setup, &result.SetupResults, &result.Errors)
	if setupOK {
		e.runPhase(ctx, c, ev, "steps", sc.Steps, &result.StepResults, &result.Errors)
	} else {
		fmt.Fprintf(e.out(), "  ⊘ steps skipped after setup error\n")
	}
	e.runPhase(ctx, c, ev, "teardown", sc.Teardown, &result.TeardownResults, &result.Errors)

	result.Duration = time.Since(start)
	result.ContextSnapshot = c.Snapshot()
	result.tally()

	if result.Passed {
		fmt.Fprintf(e.out(), "✓ scenario passed (%d/%d steps)\n", result.PassedSteps, result.TotalSteps)
	} else {
		fmt.Fprintf(e.out(), "✗ scenario failed (%d failed, %d passed)\n", result.FailedSteps, result.PassedSteps)
	}
	return result
}

// runPhase executes one phase's steps in order. A panic escaping a
// step boundary is a scenario-level error: it is recorded, the rest of
// the phase is abandoned, and the return value tells the caller to
// skip remaining non-teardown phases.
func (e *Executor) runPhase(ctx context.Context, c *Context, ev *Evaluator, phase string, steps []schema.Step, into *[]*StepResult, scErrs *[]string) (ok bool) {
	ok = true
	if len(steps) == 0 {
		return ok
	}
	defer func() {
		if r := recover(); r != nil {
			*scErrs = append(*scErrs, fmt.Sprintf("scenario error in %s: %v", phase, r))
			ok = false
		}
	}()

	fmt.Fprintf(e.out(), "→ %s\n", phase)
	for i := range steps {
		sr := e.runStep(ctx, c, ev, &steps[i])
		*into = append(*into, sr)
	}
	return ok
}

// runStep performs one step: clear step scope, resolve templates, make
// the HTTP call, extract, assert, and evaluate any conditional branch.
// Every failure class is captured on the StepResult.
func (e *Executor) runStep(ctx context.Context, c *Context, ev *Evaluator, step *schema.Step) *StepResult {
	sr := &StepResult{Name: step.Name, API: step.API}
	start := time.Now()
	defer func() {
		sr.Duration = time.Since(start)
		e.printStep(sr)
	}()

	c.ClearStep()

	method, path, err := step.Endpoint()
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("step execution error: %v", err))
		return sr
	}

	req, err := e.buildRequest(c, method, path, step.Request)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("step execution error: %v", err))
		return sr
	}
	sr.Request = map[string]any{
		"method":  req.Method,
		"url":     req.URL,
		"headers": req.Headers,
		"query":   req.Query,
		"body":    req.Body,
	}

	resp, err := e.Client.Do(ctx, req)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("request failed: %v", err))
		return sr
	}
	sr.StatusCode = resp.StatusCode
	sr.ResponseHeaders = resp.Headers
	sr.ResponseBody = decodeBody(resp.Body)

	// Extractions land in scenario scope so later steps see them.
	sr.Extracted = Extract(sr.ResponseBody, step.Extract, resp.Headers)
	for name, v := range sr.Extracted {
		c.Set(name, v, ScopeScenario)
	}

	if len(step.Assert) > 0 {
		failed := 0
		for _, rule := range step.Assert {
			expr := strings.ReplaceAll(rule, "status_code", strconv.Itoa(resp.StatusCode))
			if !ev.Evaluate(expr, sr.ResponseBody) {
				sr.Errors = append(sr.Errors, fmt.Sprintf("assertion failed: %s", rule))
				failed++
			}
		}
		sr.Passed = failed == 0
	} else {
		sr.Passed = resp.StatusCode >= 200 && resp.StatusCode < 300
		if !sr.Passed {
			sr.Errors = append(sr.Errors, fmt.Sprintf("unexpected status code %d", resp.StatusCode))
		}
	}

	if step.Condition != nil {
		if ev.Evaluate(step.Condition.If, sr.ResponseBody) {
			sr.BranchTaken = "then"
		} else {
			sr.BranchTaken = "else"
		}
		sr.Warnings = append(sr.Warnings, fmt.Sprintf("condition selected %q branch; branch steps are not executed", sr.BranchTaken))
	}
	if len(step.Loop) > 0 {
		sr.Warnings = append(sr.Warnings, "loop configuration is not executed")
	}
	if len(step.Parallel) > 0 {
		sr.Warnings = append(sr.Warnings, "parallel configuration is not executed")
	}
	return sr
}

// buildRequest resolves the step's templates into a concrete transport
// request.
func (e *Executor) buildRequest(c *Context, method, path string, spec *schema.RequestSpec) (*transport.Request, error) {
	resolvedPath, err := c.ResolveString(path)
	if err != nil {
		return nil, err
	}

	req := &transport.Request{
		Method:  method,
		URL:     e.fullURL(c, resolvedPath),
		Headers: map[string]string{},
		Query:   map[string]string{},
		Timeout: e.timeout(c),
	}

	if spec != nil {
		for k, v := range spec.Headers {
			rv, err := c.Resolve(v)
			if err != nil {
				return nil, err
			}
			req.Headers[k] = stringify(rv)
		}
		for k, v := range spec.Query {
			rv, err := c.Resolve(v)
			if err != nil {
				return nil, err
			}
			req.Query[k] = stringify(rv)
		}
		if spec.Body != nil {
			body, err := c.Resolve(spec.Body)
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
	}

	if e.AuthToken != "" {
		if _, set := req.Headers["Authorization"]; !set {
			req.Headers["Authorization"] = "Bearer " + e.AuthToken
		}
	}
	return req, nil
}

func (e *Executor) fullURL(c *Context, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := e.BaseURL
	if base == "" {
		base = stringify(c.Get("base_url", ""))
	}
	return strings.TrimRight(base, "/") + path
}

func (e *Executor) timeout(c *Context) time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	if f, ok := toFloat(c.Get("timeout", nil)); ok && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return transport.DefaultTimeout
}

// seedConfig copies the scenario config map into the global scope.
// "retry" is accepted in the file but not consumed: no retries exist.
func (e *Executor) seedConfig(c *Context, config map[string]any) {
	for k, v := range config {
		if k == "retry" {
			continue
		}
		c.Set(k, v, ScopeGlobal)
	}
}

func (e *Executor) printStep(sr *StepResult) {
	switch {
	case sr.Skipped:
		fmt.Fprintf(e.out(), "  ⊘ %s (%s)\n", sr.Name, sr.SkipReason)
	case sr.Passed:
		fmt.Fprintf(e.out(), "  ✓ %s [%d] (%s)\n", sr.Name, sr.StatusCode, sr.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(e.out(), "  ✗ %s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
		for _, msg := range sr.Errors {
			fmt.Fprintf(e.out(), "    %s\n", msg)
		}
	}
	for _, w := range sr.Warnings {
		fmt.Fprintf(e.out(), "    warning: %s\n", w)
	}
}

func (e *Executor) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

// decodeBody decodes a response body as JSON when possible, falling
// back to the raw text.
func decodeBody(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	return string(data)
}

package scenario

import (
	"net/http"
	"time"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name            string          `json:"name"`
	API             string          `json:"api"`
	Passed          bool            `json:"passed"`
	StatusCode      int             `json:"status_code,omitempty"`
	Duration        time.Duration   `json:"duration"`
	Request         map[string]any  `json:"request,omitempty"`
	ResponseBody    any             `json:"response_body,omitempty"`
	ResponseHeaders http.Header     `json:"response_headers,omitempty"`
	Extracted       map[string]any  `json:"extracted,omitempty"`
	Errors          []string        `json:"errors,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Skipped         bool            `json:"skipped,omitempty"`
	SkipReason      string          `json:"skip_reason,omitempty"`
	BranchTaken     string          `json:"branch_taken,omitempty"`
}

// ScenarioResult aggregates a whole run: per-phase step results,
// scenario-level errors and a final context snapshot for diagnostics.
type ScenarioResult struct {
	Name            string                    `json:"name"`
	Description     string                    `json:"description,omitempty"`
	Passed          bool                      `json:"passed"`
	TotalSteps      int                       `json:"total_steps"`
	PassedSteps     int                       `json:"passed_steps"`
	FailedSteps     int                       `json:"failed_steps"`
	SkippedSteps    int                       `json:"skipped_steps"`
	Duration        time.Duration             `json:"duration"`
	SetupResults    []*StepResult             `json:"setup_results,omitempty"`
	StepResults     []*StepResult             `json:"step_results"`
	TeardownResults []*StepResult             `json:"teardown_results,omitempty"`
	Errors          []string                  `json:"errors,omitempty"`
	ContextSnapshot map[string]map[string]any `json:"context_snapshot,omitempty"`
}

// allResults iterates every phase's results in execution order.
func (r *ScenarioResult) allResults() []*StepResult {
	out := make([]*StepResult, 0, len(r.SetupResults)+len(r.StepResults)+len(r.TeardownResults))
	out = append(out, r.SetupResults...)
	out = append(out, r.StepResults...)
	out = append(out, r.TeardownResults...)
	return out
}

// tally recomputes the aggregate counters from the per-step results.
// The scenario passes when nothing failed and no scenario-level error
// was recorded.
func (r *ScenarioResult) tally() {
	r.TotalSteps, r.PassedSteps, r.FailedSteps, r.SkippedSteps = 0, 0, 0, 0
	for _, sr := range r.allResults() {
		r.TotalSteps++
		switch {
		case sr.Skipped:
			r.SkippedSteps++
		case sr.Passed:
			r.PassedSteps++
		default:
			r.FailedSteps++
		}
	}
	r.Passed = r.FailedSteps == 0 && len(r.Errors) == 0
}

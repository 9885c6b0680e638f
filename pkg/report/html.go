package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/apiprobe/apiprobe/pkg/runner"
	"github.com/apiprobe/apiprobe/pkg/scenario"
)

// htmlData is the template payload. Either Scenario or Suite is set.
type htmlData struct {
	Title        string
	GeneratedAt  string
	Scenario     *scenario.ScenarioResult
	Suite        []*runner.Result
	SuiteSummary runner.Summary
}

// WriteScenarioHTML writes a self-contained HTML report for a scenario
// run. An empty path defaults to reports/report_<timestamp>.html. The
// written file path is returned.
func WriteScenarioHTML(result *scenario.ScenarioResult, path string) (string, error) {
	data := htmlData{
		Title:       "Scenario: " + result.Name,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Scenario:    result,
	}
	return writeHTML(data, path)
}

// WriteSuiteHTML writes the report for a generated case suite run.
func WriteSuiteHTML(endpoint string, results []*runner.Result, path string) (string, error) {
	data := htmlData{
		Title:        "Endpoint: " + endpoint,
		GeneratedAt:  time.Now().Format(time.RFC3339),
		Suite:        results,
		SuiteSummary: runner.Summarize(results),
	}
	return writeHTML(data, path)
}

func writeHTML(data htmlData, path string) (string, error) {
	if path == "" {
		path = filepath.Join("reports", fmt.Sprintf("report_%s.html", time.Now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
  h1 { font-size: 1.4rem; }
  .meta { color: #777; font-size: 0.85rem; margin-bottom: 1.5rem; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
  th, td { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9rem; }
  th { background: #f5f5f5; }
  .pass { color: #1a7f37; font-weight: 600; }
  .fail { color: #cf222e; font-weight: 600; }
  .skip { color: #888; }
  .errors { color: #cf222e; font-size: 0.85rem; }
  .warnings { color: #9a6700; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">generated {{.GeneratedAt}}</div>

{{with .Scenario}}
<p>
  {{if .Passed}}<span class="pass">PASSED</span>{{else}}<span class="fail">FAILED</span>{{end}}
  &mdash; {{.PassedSteps}}/{{.TotalSteps}} steps passed, {{.FailedSteps}} failed, {{.SkippedSteps}} skipped
  in {{.Duration}}
</p>
{{range .Errors}}<div class="errors">scenario error: {{.}}</div>{{end}}

{{if .SetupResults}}<h2>Setup</h2>{{template "steps" .SetupResults}}{{end}}
{{if .StepResults}}<h2>Steps</h2>{{template "steps" .StepResults}}{{end}}
{{if .TeardownResults}}<h2>Teardown</h2>{{template "steps" .TeardownResults}}{{end}}
{{end}}

{{if .Suite}}
<p>
  {{if eq .SuiteSummary.Failed 0}}<span class="pass">PASSED</span>{{else}}<span class="fail">FAILED</span>{{end}}
  &mdash; {{.SuiteSummary.Passed}}/{{.SuiteSummary.Total}} cases passed
</p>
<table>
  <tr><th>ID</th><th>Case</th><th>Type</th><th>Status</th><th>Result</th><th>Duration</th><th>Details</th></tr>
  {{range .Suite}}
  <tr>
    <td>{{.CaseID}}</td>
    <td>{{.Name}}</td>
    <td>{{.Type}}</td>
    <td>{{if .StatusCode}}{{.StatusCode}}{{end}}</td>
    <td>{{if .Passed}}<span class="pass">pass</span>{{else}}<span class="fail">fail</span>{{end}}</td>
    <td>{{.Duration}}</td>
    <td>
      {{range .Errors}}<div class="errors">{{.}}</div>{{end}}
      {{range .Warnings}}<div class="warnings">{{.}}</div>{{end}}
    </td>
  </tr>
  {{end}}
</table>
{{end}}

</body>
</html>

{{define "steps"}}
<table>
  <tr><th>Step</th><th>API</th><th>Status</th><th>Result</th><th>Duration</th><th>Details</th></tr>
  {{range .}}
  <tr>
    <td>{{.Name}}</td>
    <td>{{.API}}</td>
    <td>{{if .StatusCode}}{{.StatusCode}}{{end}}</td>
    <td>
      {{if .Skipped}}<span class="skip">skipped</span>
      {{else if .Passed}}<span class="pass">pass</span>
      {{else}}<span class="fail">fail</span>{{end}}
    </td>
    <td>{{.Duration}}</td>
    <td>
      {{range .Errors}}<div class="errors">{{.}}</div>{{end}}
      {{range .Warnings}}<div class="warnings">{{.}}</div>{{end}}
      {{if .BranchTaken}}<div>branch: {{.BranchTaken}}</div>{{end}}
    </td>
  </tr>
  {{end}}
</table>
{{end}}
`))

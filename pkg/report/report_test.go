package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apiprobe/apiprobe/pkg/runner"
	"github.com/apiprobe/apiprobe/pkg/scenario"
)

func sampleScenarioResult() *scenario.ScenarioResult {
	return &scenario.ScenarioResult{
		Name:        "login flow",
		Passed:      false,
		TotalSteps:  2,
		PassedSteps: 1,
		FailedSteps: 1,
		Duration:    1500 * time.Millisecond,
		StepResults: []*scenario.StepResult{
			{Name: "log in", API: "POST /login", Passed: true, StatusCode: 200},
			{Name: "fetch profile", API: "GET /me", Passed: false, StatusCode: 404,
				Errors: []string{"assertion failed: status_code == 200"}},
		},
	}
}

func TestWriteScenarioHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	got, err := WriteScenarioHTML(sampleScenarioResult(), path)
	if err != nil {
		t.Fatalf("WriteScenarioHTML: %v", err)
	}
	if got != path {
		t.Errorf("path = %q", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(data)
	for _, want := range []string{"login flow", "POST /login", "assertion failed", "FAILED"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestWriteScenarioHTMLDefaultPath(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	path, err := WriteScenarioHTML(sampleScenarioResult(), "")
	if err != nil {
		t.Fatalf("WriteScenarioHTML: %v", err)
	}
	if !strings.HasPrefix(path, "reports/report_") || !strings.HasSuffix(path, ".html") {
		t.Errorf("default path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestWriteSuiteHTML(t *testing.T) {
	results := []*runner.Result{
		{CaseID: "TC-getPet-POS-001", Name: "valid fetch", Type: "positive", Passed: true, StatusCode: 200},
		{CaseID: "TC-getPet-AUT-001", Name: "no credentials", Type: "auth", Passed: false, StatusCode: 200,
			Errors: []string{"unexpected status 200, want one of [401 403]"}},
	}
	path := filepath.Join(t.TempDir(), "suite.html")
	if _, err := WriteSuiteHTML("GET /pets/{petId}", results, path); err != nil {
		t.Fatalf("WriteSuiteHTML: %v", err)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{"GET /pets/{petId}", "TC-getPet-AUT-001", "unexpected status 200"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestPrintSummariesDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	PrintScenarioSummary(&buf, sampleScenarioResult())
	if !strings.Contains(buf.String(), "login flow") {
		t.Errorf("scenario summary = %q", buf.String())
	}

	buf.Reset()
	PrintSuiteSummary(&buf, "GET /pets", []*runner.Result{
		{CaseID: "a", Type: "positive", Passed: true},
		{CaseID: "b", Type: "auth", Passed: false, Errors: []string{"boom"}},
	})
	out := buf.String()
	if !strings.Contains(out, "GET /pets") || !strings.Contains(out, "boom") {
		t.Errorf("suite summary = %q", out)
	}
}

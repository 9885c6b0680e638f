// Package report renders run results: a styled console summary and a
// self-contained HTML report file.
package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/apiprobe/apiprobe/pkg/runner"
	"github.com/apiprobe/apiprobe/pkg/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// PrintScenarioSummary renders the end-of-run summary of a scenario.
func PrintScenarioSummary(w io.Writer, result *scenario.ScenarioResult) {
	verdict := passStyle.Render("PASSED")
	if !result.Passed {
		verdict = failStyle.Render("FAILED")
	}

	body := titleStyle.Render(result.Name) + "  " + verdict + "\n" +
		fmt.Sprintf("steps: %d total, %s, %s, %s\n",
			result.TotalSteps,
			passStyle.Render(fmt.Sprintf("%d passed", result.PassedSteps)),
			failStyle.Render(fmt.Sprintf("%d failed", result.FailedSteps)),
			skipStyle.Render(fmt.Sprintf("%d skipped", result.SkippedSteps))) +
		dimStyle.Render("duration: "+result.Duration.Round(time.Millisecond).String())

	for _, msg := range result.Errors {
		body += "\n" + failStyle.Render("error: ") + msg
	}
	fmt.Fprintln(w, boxStyle.Render(body))
}

// PrintSuiteSummary renders the summary of a generated case suite.
func PrintSuiteSummary(w io.Writer, endpoint string, results []*runner.Result) {
	s := runner.Summarize(results)

	verdict := passStyle.Render("PASSED")
	if s.Failed > 0 {
		verdict = failStyle.Render("FAILED")
	}

	body := titleStyle.Render(endpoint) + "  " + verdict + "\n" +
		fmt.Sprintf("cases: %d total, %s, %s\n",
			s.Total,
			passStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
			failStyle.Render(fmt.Sprintf("%d failed", s.Failed)))

	types := make([]string, 0, len(s.ByType))
	for typ := range s.ByType {
		types = append(types, typ)
	}
	slices.Sort(types)
	for _, typ := range types {
		body += dimStyle.Render(fmt.Sprintf("  %-10s %d", typ, s.ByType[typ])) + "\n"
	}
	body += dimStyle.Render("total request time: " + s.Duration.Round(time.Millisecond).String())

	fmt.Fprintln(w, boxStyle.Render(body))

	for _, r := range results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", failStyle.Render("✗"), r.CaseID, r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
}

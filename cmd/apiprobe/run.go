package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/pkg/report"
	"github.com/apiprobe/apiprobe/pkg/scenario"
	"github.com/apiprobe/apiprobe/pkg/schema"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

var (
	runBaseURL     string
	runTimeout     time.Duration
	runNoVerifyTLS bool
	runToken       string
	runVars        []string
	runReportPath  string
	runNoReport    bool
)

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml]",
	Short: "Execute a scenario against a live API",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	// Validate first
	sc, errs := schema.ValidateFile(filePath)
	var fatal int
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			continue
		}
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		fatal++
	}
	if sc == nil || fatal > 0 {
		return fmt.Errorf("scenario validation failed with %d error(s)", fatal)
	}

	if sc.Config == nil {
		sc.Config = make(map[string]any)
	}
	for _, v := range runVars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		sc.Config[parts[0]] = parts[1]
	}

	exec := scenario.NewExecutor(transport.NewHTTPClient(!runNoVerifyTLS))
	exec.BaseURL = runBaseURL
	exec.Timeout = runTimeout
	exec.AuthToken = runToken

	result := exec.Execute(context.Background(), sc)

	report.PrintScenarioSummary(os.Stdout, result)
	if !runNoReport {
		path, err := report.WriteScenarioHTML(result, runReportPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ⚠ could not write report: %v\n", err)
		} else {
			fmt.Printf("report written to %s\n", path)
		}
	}

	if result.FailedSteps > 0 || !result.Passed {
		return fmt.Errorf("scenario failed: %d step(s) failed", result.FailedSteps)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "Base URL of the API under test (overrides config.base_url)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-request timeout (overrides config.timeout)")
	runCmd.Flags().BoolVar(&runNoVerifyTLS, "no-verify-tls", false, "Skip TLS certificate verification")
	runCmd.Flags().StringVar(&runToken, "token", "", "Bearer token added to requests without an Authorization header")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a config variable (key=value), repeatable")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "HTML report path (default reports/report_<timestamp>.html)")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "Skip writing the HTML report")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apiprobe/apiprobe/pkg/auth"
	"github.com/apiprobe/apiprobe/pkg/datagen"
	"github.com/apiprobe/apiprobe/pkg/generator"
	"github.com/apiprobe/apiprobe/pkg/openapi"
	"github.com/apiprobe/apiprobe/pkg/report"
	"github.com/apiprobe/apiprobe/pkg/runner"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

var (
	genSpecPath    string
	genEndpoint    string
	genConfigPath  string
	genOutput      string
	genBaseURL     string
	genParallel    bool
	genWorkers     int
	genTimeout     time.Duration
	genNoSSLVerify bool
	genSeed        int64
	genDryRun      bool
	genReportPath  string
)

// genConfig is the optional run configuration file for generate.
type genConfig struct {
	BaseURL string      `yaml:"base_url"`
	Auth    auth.Config `yaml:"auth"`
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test cases for one OpenAPI endpoint and run them",
	Long: "Generate positive, negative, boundary, auth and injection test cases\n" +
		"for a single endpoint of an OpenAPI 2.0/3.x document, then execute them.",
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genSpecPath == "" {
		return fmt.Errorf("--spec is required")
	}
	spec, err := openapi.LoadFile(genSpecPath)
	if err != nil {
		return err
	}

	ep, err := pickEndpoint(spec, genEndpoint)
	if err != nil {
		return err
	}
	fmt.Printf("▶ %s %s (OpenAPI %s)\n", ep.Method, ep.Path, spec.Version())

	cases := generator.New(datagen.New(genSeed)).Cases(ep)
	fmt.Printf("→ generated %d test cases\n", len(cases))

	if genOutput != "" {
		data, err := json.MarshalIndent(cases, "", "  ")
		if err != nil {
			return fmt.Errorf("encode cases: %w", err)
		}
		if err := os.WriteFile(genOutput, data, 0o644); err != nil {
			return fmt.Errorf("write cases: %w", err)
		}
		fmt.Printf("✓ cases written to %s\n", genOutput)
	}
	if genDryRun {
		return nil
	}

	cfg, err := loadGenConfig(genConfigPath)
	if err != nil {
		return err
	}
	handler, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	baseURL := genBaseURL
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		baseURL = spec.BaseURL()
	}
	if baseURL == "" {
		return fmt.Errorf("no base URL: pass --url, set base_url in the config, or declare servers in the spec")
	}

	r := &runner.Runner{
		Client:  transport.NewHTTPClient(!genNoSSLVerify),
		BaseURL: baseURL,
		Auth:    handler,
		Timeout: genTimeout,
	}
	results := r.RunSuite(context.Background(), cases, ep, genParallel, genWorkers)

	endpoint := ep.Method + " " + ep.Path
	report.PrintSuiteSummary(os.Stdout, endpoint, results)
	if path, err := report.WriteSuiteHTML(endpoint, results, genReportPath); err != nil {
		fmt.Fprintf(os.Stderr, "  ⚠ could not write report: %v\n", err)
	} else {
		fmt.Printf("report written to %s\n", path)
	}

	s := runner.Summarize(results)
	if s.Failed > 0 {
		return fmt.Errorf("%d test case(s) failed", s.Failed)
	}
	return nil
}

// pickEndpoint selects the endpoint matching "METHOD /path", or the
// only endpoint when the spec declares exactly one and no selector was
// given.
func pickEndpoint(spec *openapi.Spec, selector string) (openapi.Endpoint, error) {
	eps := spec.Endpoints()
	if len(eps) == 0 {
		return openapi.Endpoint{}, fmt.Errorf("spec declares no operations")
	}
	if selector == "" {
		if len(eps) == 1 {
			return eps[0], nil
		}
		var lines []string
		for _, ep := range eps {
			lines = append(lines, fmt.Sprintf("  %s %s", ep.Method, ep.Path))
		}
		return openapi.Endpoint{}, fmt.Errorf("--endpoint is required; available:\n%s", strings.Join(lines, "\n"))
	}

	parts := strings.Fields(selector)
	if len(parts) != 2 {
		return openapi.Endpoint{}, fmt.Errorf("invalid --endpoint %q: expected 'METHOD /path'", selector)
	}
	method, path := strings.ToUpper(parts[0]), parts[1]
	for _, ep := range eps {
		if ep.Method == method && ep.Path == path {
			return ep, nil
		}
	}
	return openapi.Endpoint{}, fmt.Errorf("endpoint %s %s not found in spec", method, path)
}

func loadGenConfig(path string) (*genConfig, error) {
	cfg := &genConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func init() {
	generateCmd.Flags().StringVarP(&genSpecPath, "spec", "s", "", "OpenAPI document (YAML or JSON)")
	generateCmd.Flags().StringVarP(&genEndpoint, "endpoint", "e", "", "Endpoint to test: 'METHOD /path'")
	generateCmd.Flags().StringVarP(&genConfigPath, "config", "c", "", "Run config YAML (base_url, auth)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Write generated cases to this JSON file")
	generateCmd.Flags().StringVarP(&genBaseURL, "url", "u", "", "Base URL override")
	generateCmd.Flags().BoolVar(&genParallel, "parallel", false, "Run cases concurrently")
	generateCmd.Flags().IntVar(&genWorkers, "workers", 4, "Worker count for --parallel")
	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 0, "Per-request timeout")
	generateCmd.Flags().BoolVar(&genNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "Data generation seed (0 = fixed default)")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "Generate cases without executing them")
	generateCmd.Flags().StringVar(&genReportPath, "report", "", "HTML report path (default reports/report_<timestamp>.html)")
}

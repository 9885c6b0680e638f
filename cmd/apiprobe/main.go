package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "apiprobe",
	Short: "HTTP API test automation",
	Long:  "apiprobe — scenario-driven API testing plus OpenAPI-based test case generation and execution.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.yaml]",
	Short: "Validate a scenario YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateCmd,
}

func runValidateCmd(cmd *cobra.Command, args []string) error {
	sc, errs := schema.ValidateFile(args[0])

	var errors, warnings []*schema.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			warnings = append(warnings, e)
		} else {
			errors = append(errors, e)
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
		if w.Path != "" {
			fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
		}
	}
	if len(errors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
		for i, e := range errors {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errors))
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", sc.Name, len(sc.Steps))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Scenario schema utilities",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the scenario JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apiprobe %s (%s)\n", version, commit)
	},
}

func init() {
	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

// Package schema defines the Go struct types for the scenario YAML
// document and provides strict parsing into an executable Scenario.
package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the top-level scenario YAML document.
type Document struct {
	Scenario *Scenario `yaml:"scenario" json:"scenario" jsonschema:"required"`
}

// Scenario is a named business-flow test: ordered setup, main and
// teardown step phases plus a config map that seeds the global scope.
type Scenario struct {
	Name        string         `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string         `yaml:"version,omitempty"     json:"version,omitempty"`
	Config      map[string]any `yaml:"config,omitempty"      json:"config,omitempty"`
	Setup       []Step         `yaml:"setup,omitempty"       json:"setup,omitempty"`
	Steps       []Step         `yaml:"steps"                 json:"steps" jsonschema:"required,minItems=1"`
	Teardown    []Step         `yaml:"teardown,omitempty"    json:"teardown,omitempty"`
}

// Step is one HTTP call plus its request template, extraction rules,
// assertions and optional conditional branch. Loop and Parallel are
// parsed structurally but not interpreted at execution time.
type Step struct {
	Name      string         `yaml:"name"                json:"name" jsonschema:"required"`
	API       string         `yaml:"api"                 json:"api"  jsonschema:"required"`
	Request   *RequestSpec   `yaml:"request,omitempty"   json:"request,omitempty"`
	Extract   []ExtractRule  `yaml:"extract,omitempty"   json:"extract,omitempty"`
	Assert    []string       `yaml:"assert,omitempty"    json:"assert,omitempty"`
	Condition *Condition     `yaml:"condition,omitempty" json:"condition,omitempty"`
	Loop      map[string]any `yaml:"loop,omitempty"      json:"loop,omitempty"`
	Parallel  map[string]any `yaml:"parallel,omitempty"  json:"parallel,omitempty"`
}

// RequestSpec is the request template of a step. Any string value may
// embed ${...} templates resolved against the context at run time.
type RequestSpec struct {
	Headers map[string]any `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query   map[string]any `yaml:"query,omitempty"   json:"query,omitempty"`
	Body    any            `yaml:"body,omitempty"    json:"body,omitempty"`
}

// ExtractRule pulls a named value out of a step's response. Exactly
// one source (path/header/cookie/regex) should be set.
type ExtractRule struct {
	Name   string `yaml:"name"             json:"name" jsonschema:"required"`
	Path   string `yaml:"path,omitempty"   json:"path,omitempty"`
	Header string `yaml:"header,omitempty" json:"header,omitempty"`
	Cookie string `yaml:"cookie,omitempty" json:"cookie,omitempty"`
	Regex  string `yaml:"regex,omitempty"  json:"regex,omitempty"`
	Group  int    `yaml:"group,omitempty"  json:"group,omitempty"`
}

// Condition is a conditional branch attached to a step. The selected
// branch is recorded on the step result; its steps are not executed.
type Condition struct {
	If   string `yaml:"if"              json:"if" jsonschema:"required"`
	Then []Step `yaml:"then,omitempty"  json:"then,omitempty"`
	Else []Step `yaml:"else,omitempty"  json:"else,omitempty"`
}

// ValidMethods lists the HTTP methods a step's api field may use.
var ValidMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ErrMalformedScenario marks fatal structural problems in a scenario
// document: missing scenario root, empty name, or no main steps.
var ErrMalformedScenario = errors.New("malformed scenario")

// MalformedStepError reports a fatally malformed step entry with its
// phase and 1-based index within that phase.
type MalformedStepError struct {
	Phase  string
	Index  int
	Reason string
}

func (e *MalformedStepError) Error() string {
	return fmt.Sprintf("malformed step %d in %s: %s", e.Index, e.Phase, e.Reason)
}

// Endpoint splits the step's api field into method and path. The api
// must be exactly two whitespace-separated tokens ("METHOD /path").
func (s *Step) Endpoint() (method, path string, err error) {
	parts := strings.Fields(s.API)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("api %q: want exactly 'METHOD /path'", s.API)
	}
	return strings.ToUpper(parts[0]), parts[1], nil
}

// LoadFile reads and decodes a scenario YAML file with strict
// unknown-field rejection.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a scenario document from r with strict unknown-field
// rejection (yaml.v3 KnownFields).
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &doc, nil
}

// Parse checks a decoded document for the fatal structural invariants
// and returns the contained Scenario. Non-fatal findings are left to
// Validate.
func Parse(doc *Document) (*Scenario, error) {
	if doc == nil || doc.Scenario == nil {
		return nil, fmt.Errorf("%w: missing 'scenario' root", ErrMalformedScenario)
	}
	sc := doc.Scenario
	if strings.TrimSpace(sc.Name) == "" {
		return nil, fmt.Errorf("%w: missing scenario name", ErrMalformedScenario)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%w: scenario has no main steps", ErrMalformedScenario)
	}
	if sc.Version == "" {
		sc.Version = "1.0"
	}
	for phase, steps := range map[string][]Step{"setup": sc.Setup, "steps": sc.Steps, "teardown": sc.Teardown} {
		if err := checkSteps(phase, steps); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// ParseFile loads and parses a scenario file in one call.
func ParseFile(path string) (*Scenario, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}

func checkSteps(phase string, steps []Step) error {
	for i, st := range steps {
		if strings.TrimSpace(st.Name) == "" {
			return &MalformedStepError{Phase: phase, Index: i + 1, Reason: "missing step name"}
		}
		if _, _, err := st.Endpoint(); err != nil {
			return &MalformedStepError{Phase: phase, Index: i + 1, Reason: err.Error()}
		}
	}
	return nil
}

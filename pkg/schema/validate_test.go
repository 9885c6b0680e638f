package schema

import (
	"strings"
	"testing"
)

func findingAt(errs []*ValidationError, path string) *ValidationError {
	for _, e := range errs {
		if e.Path == path {
			return e
		}
	}
	return nil
}

func TestValidateCleanScenario(t *testing.T) {
	sc := mustParse(t, validDoc)
	if errs := Validate(sc); len(errs) != 0 {
		t.Errorf("Validate returned %d findings: %v", len(errs), errs)
	}
}

func TestValidateDomainFindings(t *testing.T) {
	sc := &Scenario{
		Name: "x",
		Steps: []Step{
			{Name: "bad method", API: "YEET /x"},
			{Name: "no extract name", API: "GET /x", Extract: []ExtractRule{{Path: "$.id"}}},
			{Name: "no if", API: "GET /x", Condition: &Condition{}},
			{Name: "looped", API: "GET /x", Loop: map[string]any{"count": 3}},
		},
	}
	errs := Validate(sc)

	if f := findingAt(errs, "steps[0].api"); f == nil || !strings.Contains(f.Message, "unsupported HTTP method") {
		t.Errorf("missing unsupported-method finding, got %v", errs)
	}
	if f := findingAt(errs, "steps[1].extract[0]"); f == nil {
		t.Errorf("missing extract-name finding, got %v", errs)
	}
	if f := findingAt(errs, "steps[2].condition"); f == nil {
		t.Errorf("missing condition-if finding, got %v", errs)
	}
	f := findingAt(errs, "steps[3].loop")
	if f == nil || f.Severity != "warning" {
		t.Errorf("loop should produce a warning, got %v", f)
	}
}

func TestValidateSemanticAcceptsValidDocument(t *testing.T) {
	d, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if errs := validateSemantic(d); len(errs) != 0 {
		t.Errorf("semantic validation of a valid document: %v", errs)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema: %v", err)
	}
	for _, want := range []string{"scenario-v1.json", "Scenario", "steps"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

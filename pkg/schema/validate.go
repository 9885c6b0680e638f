package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is a single non-fatal validation finding with
// location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g. "steps[0].api")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile runs the full 3-phase validation pipeline on a scenario
// file.
// Phase 1: structural (strict YAML decode + fatal invariants)
// Phase 2: semantic (JSON Schema validation)
// Phase 3: domain (custom Go rules, never raising)
func ValidateFile(path string) (*Scenario, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	sc, err := Parse(doc)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var all []*ValidationError
	all = append(all, validateSemantic(doc)...)
	all = append(all, Validate(sc)...)
	return sc, all
}

// Validate performs the non-fatal structural checks on a parsed
// scenario and returns every violation found; it never raises. The
// caller decides whether findings abort the run.
func Validate(sc *Scenario) []*ValidationError {
	var errs []*ValidationError

	if strings.TrimSpace(sc.Name) == "" {
		errs = append(errs, domainErr("name", "scenario name must not be empty"))
	}
	if len(sc.Steps) == 0 {
		errs = append(errs, domainErr("steps", "scenario must declare at least one main step"))
	}

	for phase, steps := range map[string][]Step{"setup": sc.Setup, "steps": sc.Steps, "teardown": sc.Teardown} {
		for i, st := range steps {
			errs = append(errs, validateStep(fmt.Sprintf("%s[%d]", phase, i), st)...)
		}
	}
	return errs
}

func validateStep(path string, st Step) []*ValidationError {
	var errs []*ValidationError

	if strings.TrimSpace(st.Name) == "" {
		errs = append(errs, domainErr(path+".name", "step name must not be empty"))
	}
	if strings.TrimSpace(st.API) == "" {
		errs = append(errs, domainErr(path+".api", "step is missing its api definition"))
	} else if method, _, err := st.Endpoint(); err != nil {
		errs = append(errs, domainErr(path+".api", err.Error()))
	} else if !slices.Contains(ValidMethods, method) {
		errs = append(errs, domainErr(path+".api", fmt.Sprintf("unsupported HTTP method %q", method)))
	}

	for i, rule := range st.Extract {
		if strings.TrimSpace(rule.Name) == "" {
			errs = append(errs, domainErr(fmt.Sprintf("%s.extract[%d]", path, i), "extract rule is missing 'name'"))
		}
	}
	if st.Condition != nil && strings.TrimSpace(st.Condition.If) == "" {
		errs = append(errs, domainErr(path+".condition", "condition block is missing its 'if' expression"))
	}
	if len(st.Loop) > 0 {
		errs = append(errs, &ValidationError{
			Phase: "domain", Path: path + ".loop",
			Message:  "loop configuration is parsed but not executed",
			Severity: "warning",
		})
	}
	if len(st.Parallel) > 0 {
		errs = append(errs, &ValidationError{
			Phase: "domain", Path: path + ".parallel",
			Message:  "parallel configuration is parsed but not executed",
			Severity: "warning",
		})
	}
	return errs
}

func domainErr(path, msg string) *ValidationError {
	return &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"}
}

// validateSemantic validates the document against the generated JSON
// Schema.
func validateSemantic(doc *Document) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return semanticFailure(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticFailure(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticFailure(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("scenario-v1.json", schemaDoc); err != nil {
		return semanticFailure(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("scenario-v1.json")
	if err != nil {
		return semanticFailure(fmt.Sprintf("compile schema: %v", err))
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return semanticFailure(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(instance); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = semanticFailure(err.Error())
		}
		return errs
	}
	return nil
}

func semanticFailure(msg string) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

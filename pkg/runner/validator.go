package runner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/apiprobe/apiprobe/pkg/openapi"
	"github.com/apiprobe/apiprobe/pkg/transport"
)

// validateResponse checks a response against the endpoint's
// documentation: the status code must be declared, and in strict mode
// the body must validate against the declared response schema.
func validateResponse(resp *transport.Response, ep openapi.Endpoint, strict bool) []string {
	var findings []string

	decl, declared := responseFor(ep, resp.StatusCode)
	if !declared {
		findings = append(findings, fmt.Sprintf("status %d is not documented for %s %s", resp.StatusCode, ep.Method, ep.Path))
		return findings
	}
	if !strict {
		return findings
	}

	schema := responseSchema(decl)
	if schema == nil {
		return findings
	}
	body, ok := decodeJSON(resp.Body)
	if !ok {
		findings = append(findings, "response body is not valid JSON")
		return findings
	}
	findings = append(findings, validateAgainstSchema(body, schema)...)
	return findings
}

// responseFor finds the declared response object for a status code,
// falling back to "default".
func responseFor(ep openapi.Endpoint, status int) (map[string]any, bool) {
	if ep.Responses == nil {
		return nil, true // nothing documented, nothing to hold against it
	}
	if r, ok := ep.Responses[strconv.Itoa(status)]; ok {
		return r, true
	}
	if r, ok := ep.Responses["default"]; ok {
		return r, true
	}
	return nil, false
}

// responseSchema digs the JSON schema out of a response object,
// handling both the 3.x content map and the 2.0 inline schema.
func responseSchema(decl map[string]any) map[string]any {
	if decl == nil {
		return nil
	}
	if content, ok := decl["content"].(map[string]any); ok {
		for _, media := range content {
			if m, ok := media.(map[string]any); ok {
				if schema, ok := m["schema"].(map[string]any); ok {
					return schema
				}
			}
		}
		return nil
	}
	schema, _ := decl["schema"].(map[string]any)
	return schema
}

// validateAgainstSchema compiles the schema fragment and reports every
// leaf violation.
func validateAgainstSchema(instance any, schema map[string]any) []string {
	// Round-trip through JSON so YAML-decoded numbers and the schema
	// document are in the shapes the validator expects.
	data, err := json.Marshal(schema)
	if err != nil {
		return []string{fmt.Sprintf("marshal response schema: %v", err)}
	}
	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return []string{fmt.Sprintf("unmarshal response schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("response.json", schemaDoc); err != nil {
		return []string{fmt.Sprintf("add response schema: %v", err)}
	}
	sch, err := c.Compile("response.json")
	if err != nil {
		return []string{fmt.Sprintf("compile response schema: %v", err)}
	}

	instData, err := json.Marshal(instance)
	if err != nil {
		return []string{fmt.Sprintf("marshal response body: %v", err)}
	}
	var inst any
	if err := json.Unmarshal(instData, &inst); err != nil {
		return []string{fmt.Sprintf("unmarshal response body: %v", err)}
	}

	if err := sch.Validate(inst); err != nil {
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			var findings []string
			for _, leaf := range flattenCauses(ve) {
				findings = append(findings, fmt.Sprintf("schema violation at /%s: %v",
					strings.Join(leaf.InstanceLocation, "/"), leaf.ErrorKind))
			}
			return findings
		}
		return []string{fmt.Sprintf("schema validation: %v", err)}
	}
	return nil
}

// flattenCauses collects the leaf validation errors.
func flattenCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenCauses(cause)...)
	}
	return flat
}

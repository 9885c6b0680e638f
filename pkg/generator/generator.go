// Package generator derives executable test cases from a single
// OpenAPI endpoint: a positive case, required-field and wrong-type
// negatives, boundary probes, auth checks and injection probes.
package generator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/apiprobe/apiprobe/pkg/datagen"
	"github.com/apiprobe/apiprobe/pkg/openapi"
)

// Case is one generated, self-contained test case for an endpoint.
type Case struct {
	ID                  string
	Name                string
	Type                string // positive, required, type, boundary, auth, schema, security
	Priority            string // high, medium, low
	Method              string
	Path                string
	PathParams          map[string]any
	QueryParams         map[string]any
	Headers             map[string]any
	Body                any
	SkipAuth            bool
	ExpectedStatusCodes []int
	ValidateSchema      bool
	StrictSchema        bool
	Description         string
}

// Generator expands endpoints into cases using a seeded data
// generator.
type Generator struct {
	data *datagen.Generator
}

// New creates a case generator over a seeded datagen.Generator.
func New(data *datagen.Generator) *Generator {
	return &Generator{data: data}
}

// Cases generates the full case set for one endpoint. IDs are stable
// per endpoint: TC-<operation>-<KIND>-<NNN>.
func (g *Generator) Cases(ep openapi.Endpoint) []Case {
	var cases []Case
	ids := newIDSequence(operationTag(ep))

	cases = append(cases, g.positiveCase(ep, ids))
	cases = append(cases, g.requiredCases(ep, ids)...)
	cases = append(cases, g.typeCases(ep, ids)...)
	cases = append(cases, g.boundaryCases(ep, ids)...)
	if len(ep.Security) > 0 {
		cases = append(cases, g.authCases(ep, ids)...)
	}
	cases = append(cases, g.schemaCase(ep, ids))
	cases = append(cases, g.securityCases(ep, ids)...)
	return cases
}

// positiveCase exercises the endpoint with fully valid data.
func (g *Generator) positiveCase(ep openapi.Endpoint, ids *idSequence) Case {
	c := g.baseCase(ep)
	c.ID = ids.next("POS")
	c.Name = fmt.Sprintf("%s %s with valid data", ep.Method, ep.Path)
	c.Type = "positive"
	c.Priority = "high"
	c.ExpectedStatusCodes = successCodes(ep)
	c.ValidateSchema = true
	c.Description = "valid request should succeed"
	return c
}

// requiredCases omits each required field or parameter in turn.
func (g *Generator) requiredCases(ep openapi.Endpoint, ids *idSequence) []Case {
	var cases []Case

	for _, p := range ep.Parameters {
		if !p.Required || p.In == "path" {
			continue
		}
		c := g.baseCase(ep)
		c.ID = ids.next("REQ")
		c.Name = fmt.Sprintf("missing required %s parameter %q", p.In, p.Name)
		c.Type = "required"
		c.Priority = "high"
		c.ExpectedStatusCodes = []int{400, 422}
		c.Description = "omitting a required parameter should be rejected"
		switch p.In {
		case "query":
			delete(c.QueryParams, p.Name)
		case "header":
			delete(c.Headers, p.Name)
		}
		cases = append(cases, c)
	}

	if ep.RequestBody != nil && ep.RequestBody.Schema != nil {
		required, _ := ep.RequestBody.Schema["required"].([]any)
		for _, rf := range required {
			field, ok := rf.(string)
			if !ok {
				continue
			}
			c := g.baseCase(ep)
			c.ID = ids.next("REQ")
			c.Name = fmt.Sprintf("missing required body field %q", field)
			c.Type = "required"
			c.Priority = "high"
			c.ExpectedStatusCodes = []int{400, 422}
			c.Description = "omitting a required body field should be rejected"
			if body, ok := c.Body.(map[string]any); ok {
				delete(body, field)
			}
			cases = append(cases, c)
		}
	}
	return cases
}

// typeCases sends a wrong-typed value for each typed body property.
func (g *Generator) typeCases(ep openapi.Endpoint, ids *idSequence) []Case {
	if ep.RequestBody == nil || ep.RequestBody.Schema == nil {
		return nil
	}
	props, _ := ep.RequestBody.Schema["properties"].(map[string]any)
	var cases []Case
	for _, field := range sortedKeys(props) {
		ps, ok := props[field].(map[string]any)
		if !ok {
			continue
		}
		wrong := g.data.WrongTypeValue(ps)
		if wrong == nil {
			continue
		}
		c := g.baseCase(ep)
		c.ID = ids.next("TYP")
		c.Name = fmt.Sprintf("wrong type for body field %q", field)
		c.Type = "type"
		c.Priority = "medium"
		c.ExpectedStatusCodes = []int{400, 422}
		c.Description = "a mistyped field should be rejected"
		if body, ok := c.Body.(map[string]any); ok {
			body[field] = wrong
		}
		cases = append(cases, c)
	}
	return cases
}

// boundaryCases probes declared numeric and length limits on body
// properties and query parameters.
func (g *Generator) boundaryCases(ep openapi.Endpoint, ids *idSequence) []Case {
	var cases []Case

	addBody := func(field string, bc datagen.BoundaryCase) {
		c := g.baseCase(ep)
		c.ID = ids.next("BND")
		c.Name = fmt.Sprintf("body field %q %s", field, bc.Description)
		c.Type = "boundary"
		c.Priority = "medium"
		if bc.ExpectedValid {
			c.ExpectedStatusCodes = successCodes(ep)
		} else {
			c.ExpectedStatusCodes = []int{400, 422}
		}
		c.Description = "boundary probe on a declared limit"
		if body, ok := c.Body.(map[string]any); ok {
			body[field] = bc.Value
		}
		cases = append(cases, c)
	}

	if ep.RequestBody != nil && ep.RequestBody.Schema != nil {
		props, _ := ep.RequestBody.Schema["properties"].(map[string]any)
		for _, field := range sortedKeys(props) {
			ps, ok := props[field].(map[string]any)
			if !ok {
				continue
			}
			for _, bc := range g.data.BoundaryValues(ps) {
				addBody(field, bc)
			}
		}
	}

	for _, p := range ep.Parameters {
		if p.In != "query" {
			continue
		}
		for _, bc := range g.data.BoundaryValues(p.Schema) {
			c := g.baseCase(ep)
			c.ID = ids.next("BND")
			c.Name = fmt.Sprintf("query parameter %q %s", p.Name, bc.Description)
			c.Type = "boundary"
			c.Priority = "medium"
			if bc.ExpectedValid {
				c.ExpectedStatusCodes = successCodes(ep)
			} else {
				c.ExpectedStatusCodes = []int{400, 422}
			}
			c.Description = "boundary probe on a declared limit"
			c.QueryParams[p.Name] = bc.Value
			cases = append(cases, c)
		}
	}
	return cases
}

// authCases checks that a protected endpoint rejects anonymous calls.
func (g *Generator) authCases(ep openapi.Endpoint, ids *idSequence) []Case {
	c := g.baseCase(ep)
	c.ID = ids.next("AUT")
	c.Name = fmt.Sprintf("%s %s without credentials", ep.Method, ep.Path)
	c.Type = "auth"
	c.Priority = "high"
	c.SkipAuth = true
	c.ExpectedStatusCodes = []int{401, 403}
	c.Description = "a protected endpoint must reject anonymous requests"
	return []Case{c}
}

// schemaCase re-runs the positive case with strict response schema
// validation.
func (g *Generator) schemaCase(ep openapi.Endpoint, ids *idSequence) Case {
	c := g.positiveCase(ep, nil)
	c.ID = ids.next("SCH")
	c.Name = fmt.Sprintf("%s %s response matches declared schema", ep.Method, ep.Path)
	c.Type = "schema"
	c.Priority = "medium"
	c.ValidateSchema = true
	c.StrictSchema = true
	c.Description = "response body must validate against the documented schema"
	return c
}

// securityCases injects probe payloads into string inputs. The API may
// reject them, but must never answer 5xx.
func (g *Generator) securityCases(ep openapi.Endpoint, ids *idSequence) []Case {
	target := g.injectionTarget(ep)
	if target == "" {
		return nil
	}
	var cases []Case
	for _, payload := range datagen.MaliciousPayloads() {
		c := g.baseCase(ep)
		c.ID = ids.next("SEC")
		c.Name = fmt.Sprintf("injection probe in %q", target)
		c.Type = "security"
		c.Priority = "low"
		c.ExpectedStatusCodes = []int{200, 201, 204, 400, 404, 422}
		c.Description = "injection payloads must not cause server errors"
		if body, ok := c.Body.(map[string]any); ok && strings.HasPrefix(target, "body.") {
			body[strings.TrimPrefix(target, "body.")] = payload
		} else {
			c.QueryParams[target] = payload
		}
		cases = append(cases, c)
	}
	return cases
}

// injectionTarget picks the first string-typed input: a body property
// when one exists, else a query parameter.
func (g *Generator) injectionTarget(ep openapi.Endpoint) string {
	if ep.RequestBody != nil && ep.RequestBody.Schema != nil {
		props, _ := ep.RequestBody.Schema["properties"].(map[string]any)
		for _, field := range sortedKeys(props) {
			if ps, ok := props[field].(map[string]any); ok {
				if typ, _ := ps["type"].(string); typ == "string" || typ == "" {
					return "body." + field
				}
			}
		}
	}
	for _, p := range ep.Parameters {
		if p.In != "query" {
			continue
		}
		typ, _ := p.Schema["type"].(string)
		if typ == "string" || typ == "" {
			return p.Name
		}
	}
	return ""
}

// baseCase builds a valid skeleton request for the endpoint: every
// path parameter filled, required query parameters and headers set,
// and a valid body when one is declared.
func (g *Generator) baseCase(ep openapi.Endpoint) Case {
	c := Case{
		Method:      ep.Method,
		Path:        ep.Path,
		PathParams:  map[string]any{},
		QueryParams: map[string]any{},
		Headers:     map[string]any{},
	}
	for _, p := range ep.Parameters {
		v := g.data.FromSchema(p.Schema, true)
		switch p.In {
		case "path":
			c.PathParams[p.Name] = v
		case "query":
			if p.Required {
				c.QueryParams[p.Name] = v
			}
		case "header":
			if p.Required {
				c.Headers[p.Name] = v
			}
		}
	}
	if ep.RequestBody != nil {
		c.Body = g.data.FromSchema(ep.RequestBody.Schema, true)
	}
	return c
}

// successCodes lists the 2xx codes the endpoint documents, defaulting
// to 200/201/204.
func successCodes(ep openapi.Endpoint) []int {
	var codes []int
	for code := range ep.Responses {
		var n int
		if _, err := fmt.Sscanf(code, "%d", &n); err == nil && n >= 200 && n < 300 {
			codes = append(codes, n)
		}
	}
	if len(codes) == 0 {
		return []int{200, 201, 204}
	}
	slices.Sort(codes)
	return codes
}

// operationTag derives the ID stem from the operationId or, failing
// that, the method and path.
func operationTag(ep openapi.Endpoint) string {
	if ep.OperationID != "" {
		return ep.OperationID
	}
	path := strings.NewReplacer("/", "-", "{", "", "}", "").Replace(strings.Trim(ep.Path, "/"))
	return strings.ToLower(ep.Method) + "-" + path
}

// idSequence issues TC-<op>-<KIND>-<NNN> identifiers with a counter
// per kind.
type idSequence struct {
	op     string
	counts map[string]int
}

func newIDSequence(op string) *idSequence {
	return &idSequence{op: op, counts: map[string]int{}}
}

func (s *idSequence) next(kind string) string {
	if s == nil {
		return ""
	}
	s.counts[kind]++
	return fmt.Sprintf("TC-%s-%s-%03d", s.op, kind, s.counts[kind])
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

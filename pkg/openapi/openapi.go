// Package openapi loads OpenAPI 2.0 (Swagger) and 3.x documents and
// flattens their operations into endpoint descriptions the test case
// generator can consume. Only local (#/...) references are resolved.
package openapi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is a loaded and version-detected OpenAPI document.
type Spec struct {
	doc     map[string]any
	version string // "2.0" or "3.x"
}

// Parameter is a normalized operation parameter. For 2.0 documents the
// inline type fields are lifted into Schema.
type Parameter struct {
	Name     string
	In       string // path, query, header, cookie
	Required bool
	Schema   map[string]any
}

// RequestBody is a normalized request body schema with its media type.
type RequestBody struct {
	Required  bool
	MediaType string
	Schema    map[string]any
}

// Endpoint is one method+path operation.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Description string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   map[string]map[string]any // status code (or "default") → response object
	Security    []map[string][]string
	Deprecated  bool
}

// ErrUnsupportedVersion is returned for documents that declare neither
// swagger 2.0 nor openapi 3.x.
var ErrUnsupportedVersion = errors.New("unsupported OpenAPI version")

var httpMethods = []string{"get", "post", "put", "delete", "patch", "head", "options"}

// LoadFile reads an OpenAPI document from a YAML or JSON file. YAML
// decoding handles both syntaxes.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses raw document bytes. The extension hint is accepted for
// symmetry but both formats go through the YAML decoder.
func Load(data []byte, _ string) (*Spec, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}

	version := ""
	if v, ok := doc["swagger"].(string); ok && strings.HasPrefix(v, "2") {
		version = "2.0"
	}
	if v, ok := doc["openapi"].(string); ok && strings.HasPrefix(v, "3") {
		version = "3.x"
	}
	if version == "" {
		return nil, ErrUnsupportedVersion
	}
	return &Spec{doc: doc, version: version}, nil
}

// Version reports "2.0" or "3.x".
func (s *Spec) Version() string { return s.version }

// Info returns the document's info block (title, version, ...).
func (s *Spec) Info() map[string]any {
	info, _ := s.doc["info"].(map[string]any)
	return info
}

// BaseURL derives the server base URL: servers[0].url for 3.x,
// scheme://host/basePath for 2.0. Empty when the document declares
// none.
func (s *Spec) BaseURL() string {
	if s.version == "3.x" {
		servers, _ := s.doc["servers"].([]any)
		if len(servers) > 0 {
			if srv, ok := servers[0].(map[string]any); ok {
				if u, ok := srv["url"].(string); ok {
					return strings.TrimRight(u, "/")
				}
			}
		}
		return ""
	}

	host, _ := s.doc["host"].(string)
	if host == "" {
		return ""
	}
	scheme := "https"
	if schemes, ok := s.doc["schemes"].([]any); ok && len(schemes) > 0 {
		if sc, ok := schemes[0].(string); ok {
			scheme = sc
		}
	}
	basePath, _ := s.doc["basePath"].(string)
	return scheme + "://" + host + strings.TrimRight(basePath, "/")
}

// SecuritySchemes returns the declared security scheme definitions,
// keyed by scheme name.
func (s *Spec) SecuritySchemes() map[string]map[string]any {
	var raw map[string]any
	if s.version == "3.x" {
		if comps, ok := s.doc["components"].(map[string]any); ok {
			raw, _ = comps["securitySchemes"].(map[string]any)
		}
	} else {
		raw, _ = s.doc["securityDefinitions"].(map[string]any)
	}

	out := make(map[string]map[string]any, len(raw))
	for name, v := range raw {
		if m, ok := s.resolve(v).(map[string]any); ok {
			out[name] = m
		}
	}
	return out
}

// Endpoints flattens every path operation into an Endpoint, with
// path-level parameters merged into each operation and all local $refs
// resolved.
func (s *Spec) Endpoints() []Endpoint {
	paths, _ := s.doc["paths"].(map[string]any)
	var eps []Endpoint
	for _, path := range sortedKeys(paths) {
		item, ok := s.resolve(paths[path]).(map[string]any)
		if !ok {
			continue
		}
		shared := s.parameters(item["parameters"])
		for _, method := range httpMethods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			eps = append(eps, s.endpoint(strings.ToUpper(method), path, op, shared))
		}
	}
	return eps
}

func (s *Spec) endpoint(method, path string, op map[string]any, shared []Parameter) Endpoint {
	ep := Endpoint{Method: method, Path: path}
	ep.OperationID, _ = op["operationId"].(string)
	ep.Summary, _ = op["summary"].(string)
	ep.Description, _ = op["description"].(string)
	ep.Deprecated, _ = op["deprecated"].(bool)

	// Operation parameters override path-level ones with the same
	// name+location.
	own := s.parameters(op["parameters"])
	ep.Parameters = append(ep.Parameters, own...)
	for _, p := range shared {
		if !hasParam(own, p) {
			ep.Parameters = append(ep.Parameters, p)
		}
	}

	ep.RequestBody = s.requestBody(op, ep.Parameters)
	if s.version == "2.0" {
		ep.Parameters = dropBodyParams(ep.Parameters)
	}

	if responses, ok := op["responses"].(map[string]any); ok {
		ep.Responses = make(map[string]map[string]any, len(responses))
		for code, r := range responses {
			if m, ok := s.resolve(r).(map[string]any); ok {
				ep.Responses[code] = m
			}
		}
	}

	if security, ok := op["security"].([]any); ok {
		ep.Security = normalizeSecurity(security)
	} else if security, ok := s.doc["security"].([]any); ok {
		ep.Security = normalizeSecurity(security)
	}
	return ep
}

// parameters normalizes a raw parameter list. 2.0 inline type fields
// are lifted into a schema map so downstream generation sees one shape.
func (s *Spec) parameters(raw any) []Parameter {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []Parameter
	for _, item := range list {
		pm, ok := s.resolve(item).(map[string]any)
		if !ok {
			continue
		}
		p := Parameter{}
		p.Name, _ = pm["name"].(string)
		p.In, _ = pm["in"].(string)
		p.Required, _ = pm["required"].(bool)

		if sch, ok := s.resolve(pm["schema"]).(map[string]any); ok {
			p.Schema = sch
		} else {
			// 2.0 non-body parameters carry type fields inline.
			sch := map[string]any{}
			for _, key := range []string{"type", "format", "enum", "items", "minimum", "maximum", "minLength", "maxLength", "pattern", "default"} {
				if v, ok := pm[key]; ok {
					sch[key] = s.resolve(v)
				}
			}
			if len(sch) > 0 {
				p.Schema = sch
			}
		}
		out = append(out, p)
	}
	return out
}

// requestBody extracts the operation's body schema: the requestBody
// block for 3.x, the in:body parameter for 2.0. JSON media types are
// preferred.
func (s *Spec) requestBody(op map[string]any, params []Parameter) *RequestBody {
	if s.version == "3.x" {
		rb, ok := s.resolve(op["requestBody"]).(map[string]any)
		if !ok {
			return nil
		}
		content, ok := rb["content"].(map[string]any)
		if !ok {
			return nil
		}
		required, _ := rb["required"].(bool)
		for _, mt := range preferredMediaTypes(content) {
			media, ok := content[mt].(map[string]any)
			if !ok {
				continue
			}
			schema, _ := s.resolve(media["schema"]).(map[string]any)
			return &RequestBody{Required: required, MediaType: mt, Schema: schema}
		}
		return nil
	}

	raw, ok := op["parameters"].([]any)
	if !ok {
		return nil
	}
	for _, item := range raw {
		pm, ok := s.resolve(item).(map[string]any)
		if !ok {
			continue
		}
		if in, _ := pm["in"].(string); in != "body" {
			continue
		}
		required, _ := pm["required"].(bool)
		schema, _ := s.resolve(pm["schema"]).(map[string]any)
		return &RequestBody{Required: required, MediaType: "application/json", Schema: schema}
	}
	return nil
}

// preferredMediaTypes orders a content map's media types, JSON first.
func preferredMediaTypes(content map[string]any) []string {
	var json, rest []string
	for _, mt := range sortedKeys(content) {
		if strings.Contains(mt, "json") {
			json = append(json, mt)
		} else {
			rest = append(rest, mt)
		}
	}
	return append(json, rest...)
}

const maxRefDepth = 32

// resolve follows local $ref chains, fully resolving nested references
// inside the result. Depth is bounded to survive reference cycles.
func (s *Spec) resolve(v any) any {
	return s.resolveDepth(v, 0)
}

func (s *Spec) resolveDepth(v any, depth int) any {
	if depth > maxRefDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := t["$ref"].(string); ok && strings.HasPrefix(ref, "#/") {
			return s.resolveDepth(s.lookupRef(ref), depth+1)
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = s.resolveDepth(e, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.resolveDepth(e, depth+1)
		}
		return out
	default:
		return v
	}
}

func (s *Spec) lookupRef(ref string) any {
	var cur any = s.doc
	for _, seg := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

func hasParam(params []Parameter, p Parameter) bool {
	for _, q := range params {
		if q.Name == p.Name && q.In == p.In {
			return true
		}
	}
	return false
}

func dropBodyParams(params []Parameter) []Parameter {
	out := params[:0]
	for _, p := range params {
		if p.In != "body" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSecurity(raw []any) []map[string][]string {
	var out []map[string][]string
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		req := make(map[string][]string, len(m))
		for name, scopes := range m {
			var ss []string
			if list, ok := scopes.([]any); ok {
				for _, sc := range list {
					if str, ok := sc.(string); ok {
						ss = append(ss, str)
					}
				}
			}
			req[name] = ss
		}
		out = append(out, req)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

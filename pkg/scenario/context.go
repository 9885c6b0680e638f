// Package scenario implements the stateful scenario engine: the
// three-scope variable context with ${...} templating, response value
// extraction, condition evaluation and the phase-ordered step executor.
package scenario

import (
	"errors"
	"fmt"
)

// Scope identifies one of the three variable scopes. The set is
// closed: anything else is rejected at the Set boundary.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeScenario
	ScopeStep
)

// ErrInvalidScope is returned for scope values outside the closed set.
var ErrInvalidScope = errors.New("invalid scope")

// ErrUnknownFunction is returned when a template calls a function that
// is not a registered builtin.
var ErrUnknownFunction = errors.New("unknown function")

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeScenario:
		return "scenario"
	case ScopeStep:
		return "step"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope converts a scope name to its enum value.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "global":
		return ScopeGlobal, nil
	case "scenario":
		return ScopeScenario, nil
	case "step":
		return ScopeStep, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidScope, name)
}

// Context holds the variables of one scenario run. Lookup order is
// step → scenario → global; writes target exactly one scope. A Context
// is used by a single goroutine (scenario execution is sequential), so
// no locking is needed.
type Context struct {
	global   map[string]any
	scenario map[string]any
	step     map[string]any

	templates map[string]*compiledTemplate // per-string template cache
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{
		global:    make(map[string]any),
		scenario:  make(map[string]any),
		step:      make(map[string]any),
		templates: make(map[string]*compiledTemplate),
	}
}

// Set writes a variable into exactly one scope.
func (c *Context) Set(name string, value any, scope Scope) error {
	switch scope {
	case ScopeGlobal:
		c.global[name] = value
	case ScopeScenario:
		c.scenario[name] = value
	case ScopeStep:
		c.step[name] = value
	default:
		return fmt.Errorf("%w: %v", ErrInvalidScope, scope)
	}
	return nil
}

// Get returns the first value found searching step → scenario → global,
// or def when the name is bound in none of them.
func (c *Context) Get(name string, def any) any {
	if v, ok := c.lookup(name); ok {
		return v
	}
	return def
}

// lookup reports whether name is bound in any scope, most specific
// scope winning.
func (c *Context) lookup(name string) (any, bool) {
	if v, ok := c.step[name]; ok {
		return v, true
	}
	if v, ok := c.scenario[name]; ok {
		return v, true
	}
	if v, ok := c.global[name]; ok {
		return v, true
	}
	return nil, false
}

// ClearStep drops all step-scoped variables. Scenario and global
// scopes are untouched.
func (c *Context) ClearStep() {
	c.step = make(map[string]any)
}

// ClearScenario drops scenario-scoped variables, and step variables
// with them: step state cannot outlive its scenario.
func (c *Context) ClearScenario() {
	c.scenario = make(map[string]any)
	c.step = make(map[string]any)
}

// Snapshot deep-copies all three scopes for diagnostics. The result
// holds no live references into the context.
func (c *Context) Snapshot() map[string]map[string]any {
	return map[string]map[string]any{
		"global":   deepCopyMap(c.global),
		"scenario": deepCopyMap(c.scenario),
		"step":     deepCopyMap(c.step),
	}
}

// Resolve recursively walks a template value. Maps and slices resolve
// their members; a string is scanned for ${...} markers; anything else
// is returned unchanged. A string that is a single ${expr} marker
// yields the resolved value with its native type preserved.
func (c *Context) Resolve(template any) (any, error) {
	switch t := template.(type) {
	case string:
		return c.resolveString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := c.Resolve(v)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := c.Resolve(v)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return template, nil
	}
}

// ResolveString resolves a string template and stringifies the result.
// Convenience for callers that need text (URLs, headers).
func (c *Context) ResolveString(template string) (string, error) {
	v, err := c.resolveString(template)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

func (c *Context) resolveString(text string) (any, error) {
	tmpl, err := c.compiled(text)
	if err != nil {
		return nil, err
	}
	return tmpl.eval(c)
}

// compiled returns the cached compiled form of a template string,
// compiling it on first use.
func (c *Context) compiled(text string) (*compiledTemplate, error) {
	if t, ok := c.templates[text]; ok {
		return t, nil
	}
	t, err := compileTemplate(text)
	if err != nil {
		return nil, err
	}
	c.templates[text] = t
	return t, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

package scenario

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Evaluator decides assertion and branch expressions. Evaluation is
// total: any malformed expression or runtime fault resolves to false
// so a bad assertion can never abort the run.
type Evaluator struct {
	ctx *Context
}

// NewEvaluator creates an evaluator bound to a scenario context.
func NewEvaluator(ctx *Context) *Evaluator {
	return &Evaluator{ctx: ctx}
}

var (
	responseRefPattern = regexp.MustCompile(`response((?:\.[A-Za-z_]\w*(?:\[[^\]]*\])*)+)`)
	varRefPattern      = regexp.MustCompile(`\$\{([^}]*)\}`)
)

// Evaluate resolves an expression to a boolean. response.<path>
// references are substituted from the given response value, ${var}
// references from the context, and the result parsed as a boolean
// expression. Errors never escape.
func (e *Evaluator) Evaluate(expr string, response any) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	expr = e.substituteResponse(expr, response)
	expr = e.substituteVars(expr)

	if v, err := e.parseAndEval(expr); err == nil {
		return truthy(v)
	}
	return e.manualEvaluate(expr)
}

// substituteResponse replaces response.<path> references with literal
// renderings of the value found at that path. Unresolvable paths
// render as null.
func (e *Evaluator) substituteResponse(expr string, response any) string {
	return responseRefPattern.ReplaceAllStringFunc(expr, func(ref string) string {
		path := strings.TrimPrefix(ref, "response.")
		v, ok := QueryPath(response, path)
		if !ok {
			return "null"
		}
		return renderLiteral(v)
	})
}

// substituteVars replaces ${...} references with literal renderings of
// their resolved values. Resolution failures render as null.
func (e *Evaluator) substituteVars(expr string) string {
	return varRefPattern.ReplaceAllStringFunc(expr, func(ref string) string {
		v, err := e.ctx.Resolve(ref)
		if err != nil {
			return "null"
		}
		return renderLiteral(v)
	})
}

// renderLiteral renders a value as a source-level literal the
// expression parser can read back. Strings are quoted; lists render
// element-wise.
func renderLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = renderLiteral(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return stringify(v)
	}
}

func (e *Evaluator) parseAndEval(expr string) (any, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, ctx: e.ctx}
	v, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected trailing token %q", p.peek().text)
	}
	return v, nil
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp    // == != >= <= > <
	tokPunct // ( ) [ ] ,
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func lex(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')' || c == '[' || c == ']' || c == ',':
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				if expr[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			raw := expr[i+1 : j]
			if quote == '"' {
				if unq, err := strconv.Unquote(expr[i : j+1]); err == nil {
					raw = unq
				}
			}
			toks = append(toks, token{kind: tokString, text: raw})
			i = j + 1
		case strings.ContainsRune("=!<>", rune(c)):
			op := string(c)
			if i+1 < len(expr) && expr[i+1] == '=' {
				op += "="
				i++
			}
			i++
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("invalid operator %q", op)
			}
			toks = append(toks, token{kind: tokOp, text: op})
		case c == '-' || c == '.' || unicode.IsDigit(rune(c)):
			j := i
			if c == '-' {
				j++
			}
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", expr[i:j])
			}
			toks = append(toks, token{kind: tokNumber, text: expr[i:j], num: n})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) || expr[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: expr[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return toks, nil
}

// --- parser ---
//
// or   := and ("or" and)*
// and  := not ("and" not)*
// not  := "not" not | cmp
// cmp  := unary (op unary)?        op: == != > >= < <= in "not in"
// unary:= "(" or ")" | "len" "(" or ")" | list | literal | identifier

type exprParser struct {
	toks []token
	pos  int
	ctx  *Context
}

func (p *exprParser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *exprParser) peek() token {
	if p.atEnd() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *exprParser) acceptIdent(word string) bool {
	if !p.atEnd() && p.toks[p.pos].kind == tokIdent && p.toks[p.pos].text == word {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptPunct(text string) bool {
	if !p.atEnd() && p.toks[p.pos].kind == tokPunct && p.toks[p.pos].text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseOr() (any, error) {
	v, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		v = truthy(v) || truthy(rhs)
	}
	return v, nil
}

func (p *exprParser) parseAnd() (any, error) {
	v, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		v = truthy(v) && truthy(rhs)
	}
	return v, nil
}

func (p *exprParser) parseNot() (any, error) {
	if p.acceptIdent("not") {
		v, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.parseCmp()
}

func (p *exprParser) parseCmp() (any, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	var op string
	switch {
	case !p.atEnd() && p.toks[p.pos].kind == tokOp:
		op = p.toks[p.pos].text
		p.pos++
	case p.acceptIdent("in"):
		op = "in"
	case !p.atEnd() && p.peek().kind == tokIdent && p.peek().text == "not" &&
		p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokIdent && p.toks[p.pos+1].text == "in":
		p.pos += 2
		op = "not in"
	default:
		return lhs, nil
	}

	rhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return compare(lhs, op, rhs)
}

func (p *exprParser) parseUnary() (any, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	tok := p.toks[p.pos]

	switch {
	case tok.kind == tokPunct && tok.text == "(":
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.acceptPunct(")") {
			return nil, fmt.Errorf("missing ')'")
		}
		return v, nil

	case tok.kind == tokPunct && tok.text == "[":
		return p.parseList()

	case tok.kind == tokString:
		p.pos++
		return tok.text, nil

	case tok.kind == tokNumber:
		p.pos++
		return tok.num, nil

	case tok.kind == tokIdent:
		p.pos++
		switch tok.text {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		case "none", "None", "null":
			return nil, nil
		case "len":
			if !p.acceptPunct("(") {
				return nil, fmt.Errorf("len: missing '('")
			}
			v, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptPunct(")") {
				return nil, fmt.Errorf("len: missing ')'")
			}
			return lengthOf(v)
		}
		// A bare identifier resolves against the context; an unbound
		// name stands for its own text.
		if v, ok := p.ctx.lookup(tok.text); ok {
			return v, nil
		}
		return tok.text, nil
	}
	return nil, fmt.Errorf("unexpected token %q", tok.text)
}

func (p *exprParser) parseList() (any, error) {
	p.pos++ // consume '['
	var items []any
	if p.acceptPunct("]") {
		return items, nil
	}
	for {
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.acceptPunct(",") {
			continue
		}
		if p.acceptPunct("]") {
			return items, nil
		}
		return nil, fmt.Errorf("missing ']' in list")
	}
}

// --- operator semantics ---

func compare(lhs any, op string, rhs any) (any, error) {
	switch op {
	case "==":
		return looseEqual(lhs, rhs), nil
	case "!=":
		return !looseEqual(lhs, rhs), nil
	case ">", ">=", "<", "<=":
		return ordered(lhs, op, rhs)
	case "in":
		return contains(rhs, lhs)
	case "not in":
		ok, err := contains(rhs, lhs)
		if err != nil {
			return nil, err
		}
		return !ok, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func looseEqual(a, b any) bool {
	if fa, oka := toFloat(a); oka {
		if fb, okb := toFloat(b); okb {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func ordered(a any, op string, b any) (bool, error) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false, fmt.Errorf("%s: mixed operand types", op)
		}
		switch op {
		case ">":
			return fa > fb, nil
		case ">=":
			return fa >= fb, nil
		case "<":
			return fa < fb, nil
		case "<=":
			return fa <= fb, nil
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		switch op {
		case ">":
			return sa > sb, nil
		case ">=":
			return sa >= sb, nil
		case "<":
			return sa < sb, nil
		case "<=":
			return sa <= sb, nil
		}
	}
	return false, fmt.Errorf("%s: unordered operand types", op)
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, e := range c {
			if looseEqual(e, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			s = stringify(item)
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("in: non-string key lookup")
		}
		_, found := c[s]
		return found, nil
	}
	return false, fmt.Errorf("in: container is not a list, string or map")
}

func lengthOf(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return float64(len(t)), nil
	case []any:
		return float64(len(t)), nil
	case map[string]any:
		return float64(len(t)), nil
	}
	return nil, fmt.Errorf("len: value has no length")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// truthy folds an evaluation result to a boolean. Only true/1 (and
// their string spellings) count as true.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1":
			return true
		}
		return false
	default:
		if f, ok := toFloat(v); ok {
			return f == 1
		}
		return false
	}
}

// --- manual fallback ---

// manualOps is scanned in order; the first operator found splits the
// expression. ">" deliberately precedes ">=" to preserve historical
// splitting behavior.
var manualOps = []string{"==", "!=", ">", ">=", "<", "<=", " in ", " not in "}

// manualEvaluate is the last-resort single-operator parser used when
// full parsing fails. Each side is read as a plain literal; anything
// unrecognized is its own raw string. Faults yield false.
func (e *Evaluator) manualEvaluate(expr string) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	for _, op := range manualOps {
		idx := strings.Index(expr, op)
		if idx < 0 {
			continue
		}
		lhs := parseManualLiteral(expr[:idx])
		rhs := parseManualLiteral(expr[idx+len(op):])
		v, err := compare(lhs, strings.TrimSpace(op), rhs)
		if err != nil {
			return false
		}
		return truthy(v)
	}

	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "true", "1":
		return true
	}
	return false
}

// parseManualLiteral reads one side of a fallback comparison: quoted
// string, keyword, number, bracketed list, else the raw trimmed text.
func parseManualLiteral(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "none", "null":
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}
		}
		var items []any
		for _, part := range strings.Split(inner, ",") {
			items = append(items, parseManualLiteral(part))
		}
		return items
	}
	return s
}

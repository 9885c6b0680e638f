package scenario

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// compiledTemplate is a parsed template string: an alternating sequence
// of literal text and ${...} expressions. A template consisting of a
// single expression and nothing else evaluates to the expression's
// native value; any surrounding text forces string concatenation.
type compiledTemplate struct {
	segments []segment
}

type segment struct {
	literal string
	expr    exprNode // nil for literal segments
}

type exprNode interface {
	eval(c *Context) (any, error)
}

// varNode is a plain variable reference, resolved against the context.
// Unbound names yield the empty string.
type varNode struct {
	name string
}

func (n varNode) eval(c *Context) (any, error) {
	if v, ok := c.lookup(n.name); ok {
		return v, nil
	}
	return "", nil
}

// callNode is a builtin function call with literal arguments.
type callNode struct {
	name string
	args []any // string or int
}

func (n callNode) eval(_ *Context) (any, error) {
	return callBuiltin(n.name, n.args)
}

// compileTemplate scans text for ${...} markers. Text without markers
// compiles to a single literal segment. An unterminated marker is kept
// as literal text.
func compileTemplate(text string) (*compiledTemplate, error) {
	var segs []segment
	rest := text
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			break
		}
		j := strings.Index(rest[i:], "}")
		if j < 0 {
			break
		}
		if i > 0 {
			segs = append(segs, segment{literal: rest[:i]})
		}
		inner := rest[i+2 : i+j]
		node, err := parseExpr(inner)
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{expr: node})
		rest = rest[i+j+1:]
	}
	if rest != "" || len(segs) == 0 {
		segs = append(segs, segment{literal: rest})
	}
	return &compiledTemplate{segments: segs}, nil
}

func (t *compiledTemplate) eval(c *Context) (any, error) {
	if len(t.segments) == 1 {
		s := t.segments[0]
		if s.expr != nil {
			return s.expr.eval(c)
		}
		return s.literal, nil
	}
	var b strings.Builder
	for _, s := range t.segments {
		if s.expr == nil {
			b.WriteString(s.literal)
			continue
		}
		v, err := s.expr.eval(c)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

// parseExpr parses the inside of a ${...} marker: either a variable
// name or a function call name(arg, ...).
func parseExpr(inner string) (exprNode, error) {
	inner = strings.TrimSpace(inner)
	open := strings.Index(inner, "(")
	if open < 0 {
		return varNode{name: inner}, nil
	}
	if !strings.HasSuffix(inner, ")") {
		return nil, fmt.Errorf("template call %q: missing ')'", inner)
	}
	name := strings.TrimSpace(inner[:open])
	args, err := parseArgs(inner[open+1 : len(inner)-1])
	if err != nil {
		return nil, fmt.Errorf("template call %q: %w", inner, err)
	}
	return callNode{name: name, args: args}, nil
}

// parseArgs splits a comma-separated argument list into string and int
// literals. Quoted tokens are strings; numeric tokens are ints; any
// other bare token is taken as its own string.
func parseArgs(raw string) ([]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var args []any
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0]:
			args = append(args, tok[1:len(tok)-1])
		default:
			if n, err := strconv.Atoi(tok); err == nil {
				args = append(args, n)
			} else {
				args = append(args, tok)
			}
		}
	}
	return args, nil
}

const randomChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// callBuiltin dispatches a template function call. Arguments beyond
// what a function needs are ignored; missing ones fall back to
// defaults.
func callBuiltin(name string, args []any) (any, error) {
	switch name {
	case "timestamp":
		return int(time.Now().Unix()), nil
	case "uuid":
		return uuid.NewString(), nil
	case "random_string":
		n := intArg(args, 0, 10)
		if n < 0 {
			n = 0
		}
		b := make([]byte, n)
		for i := range b {
			b[i] = randomChars[rand.Intn(len(randomChars))]
		}
		return string(b), nil
	case "random_int":
		lo := intArg(args, 0, 0)
		hi := intArg(args, 1, 100)
		if hi < lo {
			lo, hi = hi, lo
		}
		return lo + rand.Intn(hi-lo+1), nil
	case "date":
		format := strArg(args, 0, "%Y-%m-%d")
		return time.Now().Format(strftimeToLayout(format)), nil
	case "md5":
		sum := md5.Sum([]byte(strArg(args, 0, "")))
		return hex.EncodeToString(sum[:]), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
}

func intArg(args []any, i, def int) int {
	if i >= len(args) {
		return def
	}
	switch v := args[i].(type) {
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func strArg(args []any, i int, def string) string {
	if i >= len(args) {
		return def
	}
	return stringify(args[i])
}

// strftimeReplacer maps the supported strftime directives to Go's
// reference-time layout tokens.
var strftimeReplacer = strings.NewReplacer(
	"%%", "%",
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
)

func strftimeToLayout(format string) string {
	return strftimeReplacer.Replace(format)
}

// stringify renders a resolved value for embedding into surrounding
// text. Numbers avoid exponent notation; composites render as JSON;
// nil renders empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

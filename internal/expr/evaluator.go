// Package expr evaluates $(...) parameter templates using JavaScript (goja).
// Templates let a tool call reference the outputs of the calls it depends
// on, e.g. $(deps.fetch_user.output.name).
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Context holds the variables visible to a template expression.
type Context struct {
	// Deps maps dependency call id to {"output": ..., "error": ...}.
	Deps map[string]any
	// Call describes the call being resolved: id, name, attempt.
	Call map[string]any
}

// Evaluator evaluates parameter templates with a fresh JavaScript runtime
// per evaluation, so expressions cannot leak state into each other.
type Evaluator struct{}

// NewEvaluator creates a template evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func setupVM(ctx *Context) (*goja.Runtime, error) {
	vm := goja.New()
	if err := vm.Set("deps", ctx.Deps); err != nil {
		return nil, fmt.Errorf("set deps: %w", err)
	}
	if err := vm.Set("call", ctx.Call); err != nil {
		return nil, fmt.Errorf("set call: %w", err)
	}
	return vm, nil
}

// Evaluate resolves a template string. A string that is exactly one
// $(...) expression returns the typed result; embedded expressions are
// interpolated into the surrounding text. \$( escapes a literal $(.
func (e *Evaluator) Evaluate(s string, ctx *Context) (any, error) {
	if !ContainsExpression(s) {
		return unescape(s), nil
	}

	vm, err := setupVM(ctx)
	if err != nil {
		return nil, err
	}

	matches := findExpressions(s)
	if len(matches) == 0 {
		return unescape(s), nil
	}

	// Sole expression: return the typed value, not its string form.
	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(s) {
		return runExpr(vm, matches[0].expr)
	}

	var b strings.Builder
	lastEnd := 0
	for _, m := range matches {
		b.WriteString(s[lastEnd:m.start])
		val, err := runExpr(vm, m.expr)
		if err != nil {
			return nil, err
		}
		b.WriteString(toString(val))
		lastEnd = m.end
	}
	b.WriteString(s[lastEnd:])
	return unescape(b.String()), nil
}

// ResolveParams walks a parameter tree and evaluates every template string
// in place, recursing through maps and slices. Non-string leaves pass
// through untouched.
func (e *Evaluator) ResolveParams(params map[string]any, ctx *Context) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := e.resolveValue(params, ctx)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (e *Evaluator) resolveValue(v any, ctx *Context) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Evaluate(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := e.resolveValue(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := e.resolveValue(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("param [%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func runExpr(vm *goja.Runtime, code string) (any, error) {
	// Object literals need parentheses to parse as expressions.
	if strings.HasPrefix(strings.TrimSpace(code), "{") {
		code = "(" + code + ")"
	}
	val, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("expression error in $(%s): %w", code, err)
	}
	if val == goja.Undefined() {
		return nil, fmt.Errorf("expression $(%s) returned undefined (invalid property access)", code)
	}
	return val.Export(), nil
}

// ContainsExpression reports whether s holds at least one unescaped $(.
func ContainsExpression(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '$' && s[i+1] == '(' {
			if i == 0 || s[i-1] != '\\' {
				return true
			}
		}
	}
	return false
}

type exprMatch struct {
	start int
	end   int
	expr  string
}

// findExpressions locates every unescaped $(expr) with balanced parens.
func findExpressions(s string) []exprMatch {
	var matches []exprMatch
	i := 0
	for i < len(s)-1 {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				if s[j] == '(' {
					depth++
				} else if s[j] == ')' {
					depth--
				}
				j++
			}
			if depth == 0 {
				matches = append(matches, exprMatch{start: i, end: j, expr: s[i+2 : j-1]})
				i = j
				continue
			}
		}
		i++
	}
	return matches
}

func unescape(s string) string {
	return strings.ReplaceAll(s, "\\$(", "$(")
}

func toString(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

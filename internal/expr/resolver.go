// Package expr evaluates templated references against a run context.
//
// The language is deliberately tiny: `{{node.field}}` addresses a field
// of a prior node's output, `{{trigger.field}}` addresses the trigger
// payload, and a fixed set of built-ins covers timestamps and simple
// coercion (`now()`, `string(x)`, `number(x)`). Guard conditions add
// `==` / `!=` comparison and bare truthiness on top. There is no user
// scripting beyond this.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/arbor/pkg/api"
)

// Resolver materializes templates against one run's context.
//
// Lenient mode is used for best-effort nodes: references to nodes that
// are absent from the context resolve to nil instead of failing, so a
// node can proceed around a failed or skipped predecessor.
type Resolver struct {
	ctx     api.RunContext
	Lenient bool

	// Now is the clock for the now() built-in; tests override it.
	Now func() time.Time
}

// New creates a Resolver over the given run context.
func New(ctx api.RunContext) *Resolver {
	return &Resolver{ctx: ctx, Now: time.Now}
}

// Resolve materializes a single template string. A string that is
// exactly one `{{...}}` expression yields the referenced value with its
// original type; any other string is interpolated, with embedded
// expressions coerced to their string form.
func (r *Resolver) Resolve(tmpl string) (any, error) {
	exprs := scan(tmpl)
	if len(exprs) == 0 {
		return tmpl, nil
	}

	// Whole-string expression: preserve the value's type.
	if len(exprs) == 1 && strings.TrimSpace(tmpl) == tmpl && exprs[0].start == 0 && exprs[0].end == len(tmpl) {
		return r.eval(exprs[0].body)
	}

	var sb strings.Builder
	last := 0
	for _, ex := range exprs {
		sb.WriteString(tmpl[last:ex.start])
		v, err := r.eval(ex.body)
		if err != nil {
			return nil, err
		}
		sb.WriteString(stringify(v))
		last = ex.end
	}
	sb.WriteString(tmpl[last:])
	return sb.String(), nil
}

// ResolveConfig deep-resolves every string inside a configuration
// mapping, recursing through nested maps and slices. The input is not
// mutated.
func (r *Resolver) ResolveConfig(cfg map[string]any) (map[string]any, error) {
	if cfg == nil {
		return nil, nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		rv, err := r.resolveValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.Resolve(t)
	case map[string]any:
		return r.ResolveConfig(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			rv, err := r.resolveValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// EvalGuard evaluates a routing condition to a boolean. Supported
// forms, where an operand is a `{{...}}` template, a quoted string, a
// number, true or false:
//
//	operand            -> truthiness of the operand
//	operand == operand -> equality of string forms
//	operand != operand -> negated equality
func (r *Resolver) EvalGuard(guard string) (bool, error) {
	guard = strings.TrimSpace(guard)
	if guard == "" {
		return false, &api.ResolutionError{Code: api.CodeUnresolvedReference, Reference: guard, Message: "empty guard"}
	}

	if lhs, rhs, ok := splitComparison(guard, "=="); ok {
		return r.compare(lhs, rhs)
	}
	if lhs, rhs, ok := splitComparison(guard, "!="); ok {
		eq, err := r.compare(lhs, rhs)
		return !eq, err
	}

	v, err := r.operand(guard)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (r *Resolver) compare(lhs, rhs string) (bool, error) {
	lv, err := r.operand(lhs)
	if err != nil {
		return false, err
	}
	rv, err := r.operand(rhs)
	if err != nil {
		return false, err
	}
	return stringify(lv) == stringify(rv), nil
}

// operand evaluates one side of a guard: a template, a quoted string,
// a literal number or boolean, or a bare reference.
func (r *Resolver) operand(s string) (any, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		return r.eval(strings.TrimSpace(s[2 : len(s)-2]))
	}
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1], nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	// Bare references are allowed in guards for brevity: `check.ok`
	// reads the same as `{{check.ok}}`.
	return r.eval(s)
}

// eval evaluates the body of one {{...}} expression.
func (r *Resolver) eval(body string) (any, error) {
	body = strings.TrimSpace(body)

	if name, arg, ok := builtinCall(body); ok {
		return r.callBuiltin(name, arg, body)
	}
	return r.reference(body)
}

func (r *Resolver) callBuiltin(name, arg, full string) (any, error) {
	switch name {
	case "now":
		if arg != "" {
			return nil, &api.ResolutionError{Code: api.CodeTypeMismatch, Reference: full, Message: "now() takes no arguments"}
		}
		return r.Now().UTC().Format(time.RFC3339), nil
	case "string":
		v, err := r.eval(arg)
		if err != nil {
			return nil, err
		}
		return stringify(v), nil
	case "number":
		v, err := r.eval(arg)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			n, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, &api.ResolutionError{Code: api.CodeTypeMismatch, Reference: full, Message: fmt.Sprintf("cannot coerce %q to number", t)}
			}
			return n, nil
		case bool:
			if t {
				return float64(1), nil
			}
			return float64(0), nil
		default:
			return nil, &api.ResolutionError{Code: api.CodeTypeMismatch, Reference: full, Message: fmt.Sprintf("cannot coerce %T to number", v)}
		}
	default:
		return nil, &api.ResolutionError{Code: api.CodeUnresolvedReference, Reference: full, Message: "unknown function " + name}
	}
}

// reference resolves a dotted path: the first segment names a node (or
// "trigger"), the rest walk into the output value.
func (r *Resolver) reference(ref string) (any, error) {
	parts := strings.Split(ref, ".")
	head := parts[0]

	var root map[string]any
	if head == "trigger" {
		root = r.ctx.Trigger
		if root == nil {
			root = map[string]any{}
		}
	} else {
		out, ok := r.ctx.Outputs[head]
		if !ok {
			if r.Lenient {
				return nil, nil
			}
			return nil, &api.ResolutionError{Code: api.CodeUnresolvedReference, Reference: ref, Message: "node " + head + " not in run context"}
		}
		root = out
	}

	if len(parts) == 1 {
		return root, nil
	}

	var cur any = root
	for _, field := range parts[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &api.ResolutionError{Code: api.CodeTypeMismatch, Reference: ref, Message: fmt.Sprintf("cannot address field %q of non-object value", field)}
		}
		v, ok := m[field]
		if !ok {
			return nil, &api.ResolutionError{Code: api.CodeTypeMismatch, Reference: ref, Message: fmt.Sprintf("field %q not present on output", field)}
		}
		cur = v
	}
	return cur, nil
}

// splitComparison splits a guard on op, ignoring occurrences inside
// {{...}} expressions and quoted strings.
func splitComparison(s, op string) (lhs, rhs string, ok bool) {
	depth := 0
	var quote byte
	for i := 0; i+len(op) <= len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case i+1 < len(s) && s[i] == '{' && s[i+1] == '{':
			depth++
			i++
		case i+1 < len(s) && s[i] == '}' && s[i+1] == '}':
			depth--
			i++
		case depth == 0 && s[i:i+len(op)] == op:
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(op):]), true
		}
	}
	return "", "", false
}

type span struct {
	start, end int
	body       string
}

// scan finds {{...}} expressions in a template string.
func scan(s string) []span {
	var spans []span
	for i := 0; i+1 < len(s); {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			break
		}
		open += i
		end := strings.Index(s[open:], "}}")
		if end < 0 {
			break
		}
		end += open + 2
		spans = append(spans, span{
			start: open,
			end:   end,
			body:  strings.TrimSpace(s[open+2 : end-2]),
		})
		i = end
	}
	return spans
}

func builtinCall(body string) (name, arg string, ok bool) {
	open := strings.Index(body, "(")
	if open <= 0 || !strings.HasSuffix(body, ")") {
		return "", "", false
	}
	name = body[:open]
	if strings.ContainsAny(name, ". ") {
		return "", "", false
	}
	return name, strings.TrimSpace(body[open+1 : len(body)-1]), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

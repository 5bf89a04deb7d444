// Package condition compiles and evaluates the JQ-style predicates used for
// conditional target selection (spec.md 4.3). There is no jq implementation
// in the retrieved example pack, so filters are a constrained grammar —
// an OR of ANDs of path/operator/literal comparisons — resolved against the
// synthesized JSON view via gjson. This keeps the teacher's own
// AND/OR-splitting condition-expression shape (server/utils/evaluator.go in
// the teacher repo) while swapping its flat-map value resolution for
// gjson path lookups into the richer view.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Default is the sentinel condition: always true, used as the
// conditional_routing fallback target.
const Default = "default"

// Filter is a compiled predicate, safe for concurrent evaluation and never
// re-parsed per request.
type Filter struct {
	raw    string
	orExpr [][]comparison
}

type comparison struct {
	path string
	op   string
	lit  string
}

var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

// Compile parses expr at config-validation time. Parse errors abort startup.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("condition expression is empty")
	}

	orParts := splitTop(expr, "||", " OR ")
	f := &Filter{raw: expr}
	for _, orPart := range orParts {
		andParts := splitTop(orPart, "&&", " AND ")
		var group []comparison
		for _, andPart := range andParts {
			c, err := compileComparison(andPart)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", expr, err)
			}
			group = append(group, c)
		}
		f.orExpr = append(f.orExpr, group)
	}
	return f, nil
}

// splitTop splits s on every occurrence, outside of any quoted literal, of
// symbol, or of its keyword alias when s contains the keyword but not the
// symbol.
func splitTop(s string, symbol, keyword string) []string {
	upper := strings.ToUpper(s)
	sep := symbol
	if strings.Contains(upper, strings.ToUpper(keyword)) && !strings.Contains(s, symbol) {
		sep = keyword
	}
	var parts []string
	var cur strings.Builder
	inQuote := byte(0)
	i := 0
	for i < len(s) {
		c := s[i]
		if inQuote != 0 {
			cur.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
			i++
			continue
		}
		if c == '\'' || c == '"' {
			inQuote = c
			cur.WriteByte(c)
			i++
			continue
		}
		if matchCI(s, i, sep) {
			parts = append(parts, cur.String())
			cur.Reset()
			i += len(sep)
			continue
		}
		cur.WriteByte(c)
		i++
	}
	parts = append(parts, cur.String())
	return parts
}

func matchCI(s string, i int, sep string) bool {
	if i+len(sep) > len(s) {
		return false
	}
	return strings.EqualFold(s[i:i+len(sep)], sep)
}

func compileComparison(s string) (comparison, error) {
	s = strings.TrimSpace(s)
	for _, op := range operators {
		if idx := strings.Index(s, op); idx >= 0 {
			path := strings.TrimSpace(s[:idx])
			lit := strings.TrimSpace(s[idx+len(op):])
			lit = strings.Trim(lit, `"'`)
			return comparison{path: toGjsonPath(path), op: op, lit: lit}, nil
		}
	}
	return comparison{}, fmt.Errorf("no comparison operator found in %q", s)
}

// toGjsonPath turns a jq-ish path like `.request.headers["x-pick"]` or
// `request.headers.x-pick` into gjson dot-path syntax. The top-level key
// (body, env, request) is lowercased, and a path under request is lowercased
// throughout: every key synthesized there (headers, uri, full, host, path,
// query) is lowercase, and header names are lowercased by BuildView, so a
// request condition matches regardless of the case the config author wrote
// or the case the wire transport canonicalized a header name to. Keys below
// body and env keep their case, since the request body's own keys and the
// context's CTX_* names are placed in the view unchanged.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, ".")
	var b strings.Builder
	i := 0
	for i < len(path) {
		switch path[i] {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteString(path[i:])
				i = len(path)
				continue
			}
			key := strings.Trim(path[i+1:i+end], `"'`)
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(key)
			i += end + 1
		default:
			b.WriteByte(path[i])
			i++
		}
	}
	out := b.String()
	head, rest, hasRest := strings.Cut(out, ".")
	head = strings.ToLower(head)
	if !hasRest || head == "request" {
		return strings.ToLower(out)
	}
	return head + "." + rest
}

// Eval resolves every comparison against view (the JSON bytes from
// BuildView) and returns whether the filter is satisfied: an OR across
// groups, an AND within each group.
func (f *Filter) Eval(view []byte) bool {
	for _, group := range f.orExpr {
		allTrue := true
		for _, c := range group {
			if !c.eval(view) {
				allTrue = false
				break
			}
		}
		if allTrue {
			return true
		}
	}
	return false
}

func (c comparison) eval(view []byte) bool {
	result := gjson.GetBytes(view, c.path)
	switch c.op {
	case "==":
		return compareEq(result, c.lit)
	case "!=":
		return !compareEq(result, c.lit)
	case "<", "<=", ">", ">=":
		rv, lv, ok := asFloats(result, c.lit)
		if !ok {
			return false
		}
		switch c.op {
		case "<":
			return rv < lv
		case "<=":
			return rv <= lv
		case ">":
			return rv > lv
		case ">=":
			return rv >= lv
		}
	}
	return false
}

func compareEq(result gjson.Result, lit string) bool {
	if lit == "true" || lit == "false" {
		if result.Type == gjson.True || result.Type == gjson.False {
			return result.String() == lit
		}
	}
	if rv, lv, ok := asFloats(result, lit); ok {
		return rv == lv
	}
	return result.String() == lit
}

func asFloats(result gjson.Result, lit string) (float64, float64, bool) {
	lv, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, 0, false
	}
	if result.Type != gjson.Number {
		return 0, 0, false
	}
	return result.Num, lv, true
}

// Raw returns the original expression text, for logging/diagnostics.
func (f *Filter) Raw() string { return f.raw }

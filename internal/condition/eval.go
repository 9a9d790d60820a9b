// Package condition implements the edge-condition grammar with a
// hand-rolled lexer and Pratt parser, favoring an explicit grammar over
// a script-engine-based evaluator. This package is never used for
// business-rule task evaluation — see internal/ruleadapter for that,
// which deliberately uses a real expression-engine dependency instead.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wfcore/engine/internal/domain"
)

// Evaluate returns the boolean result of condition against vars. An empty
// or whitespace-only condition is treated as true. Any evaluation error
// (parse failure, unresolvable identifier type mismatch that still must
// compare) returns false rather than propagating — "Evaluation
// errors return false and do not throw."
func Evaluate(cond string, vars domain.Vars) bool {
	if strings.TrimSpace(cond) == "" {
		return true
	}

	node, ok := parse(cond)
	if !ok {
		return false
	}

	result, ok := evalNode(node, vars)
	if !ok {
		return false
	}
	b, ok := result.(bool)
	if !ok {
		return truthy(result)
	}
	return b
}

func evalNode(n exprNode, vars domain.Vars) (any, bool) {
	switch e := n.(type) {
	case identNode:
		val, found := lookup(vars, e.name)
		if !found {
			return truthy(nil), true
		}
		return truthy(val), true
	case literalNode:
		return literalValue(e), true
	case binaryNode:
		return evalBinary(e, vars)
	default:
		return nil, false
	}
}

func evalBinary(e binaryNode, vars domain.Vars) (any, bool) {
	leftIdent, ok := e.left.(identNode)
	if !ok {
		// Grammar requires variable-on-left, literal-on-right; anything
		// else is a malformed condition.
		return nil, false
	}
	rightLit, ok := e.right.(literalNode)
	if !ok {
		return nil, false
	}

	leftVal, _ := lookup(vars, leftIdent.name)
	rightVal := literalValue(rightLit)

	return compare(e.op, leftVal, rightVal), true
}

func literalValue(l literalNode) any {
	switch l.kind {
	case tokTrue:
		return true
	case tokFalse:
		return false
	case tokNull:
		return nil
	case tokNumber:
		f, err := strconv.ParseFloat(l.text, 64)
		if err != nil {
			return l.text
		}
		return f
	default: // tokString
		return l.text
	}
}

// compare implements the "number vs number -> numeric; anything else ->
// string compare of stringified value" rule.
func compare(op tokenKind, left, right any) bool {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if lok && rok {
		return compareOrdered(op, lf, rf)
	}

	ls := stringify(left)
	rs := stringify(right)
	switch op {
	case tokEq:
		return ls == rs
	case tokNeq:
		return ls != rs
	case tokGt:
		return ls > rs
	case tokLt:
		return ls < rs
	case tokGte:
		return ls >= rs
	case tokLte:
		return ls <= rs
	default:
		return false
	}
}

func compareOrdered(op tokenKind, l, r float64) bool {
	switch op {
	case tokEq:
		return l == r
	case tokNeq:
		return l != r
	case tokGt:
		return l > r
	case tokLt:
		return l < r
	case tokGte:
		return l >= r
	case tokLte:
		return l <= r
	default:
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// truthy implements "non-null, non-empty, non-'false', non-zero" for a
// bare identifier.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}

// lookup resolves a dotted identifier path against a nested variable map,
// e.g. "customer.tier" into vars["customer"].(map[string]any)["tier"].
func lookup(vars domain.Vars, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(vars)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

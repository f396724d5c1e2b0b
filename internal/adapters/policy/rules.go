package policy

import (
	"strings"

	"github.com/eleven-am/warden/internal/domain"
	json "github.com/eleven-am/warden/internal/xjson"
)

// Matches evaluates a rule expression against the flattened context map.
// An empty condition list always matches.
func Matches(expr domain.RuleExpr, ctx map[string]interface{}) bool {
	if len(expr.Conditions) == 0 {
		return true
	}

	or := strings.EqualFold(expr.Logic, "OR")
	for _, cond := range expr.Conditions {
		matched := evalCondition(cond, ctx)
		if or && matched {
			return true
		}
		if !or && !matched {
			return false
		}
	}
	return !or
}

func evalCondition(cond domain.Condition, ctx map[string]interface{}) bool {
	actual, exists := resolveField(ctx, cond.Field)

	switch cond.Operator {
	case domain.OpExists:
		return exists && actual != nil && actual != ""
	case domain.OpNotExists:
		return !exists || actual == nil || actual == ""
	}

	if !exists {
		return false
	}

	switch cond.Operator {
	case domain.OpEquals:
		return valuesEqual(actual, cond.Value)
	case domain.OpNotEquals:
		return !valuesEqual(actual, cond.Value)
	case domain.OpIn:
		return valueIn(actual, cond.Value)
	case domain.OpNotIn:
		return !valueIn(actual, cond.Value)
	case domain.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case domain.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	case domain.OpContains:
		return containsValue(actual, cond.Value)
	case domain.OpStartsWith:
		a, aok := actual.(string)
		b, bok := cond.Value.(string)
		return aok && bok && strings.HasPrefix(a, b)
	case domain.OpEndsWith:
		a, aok := actual.(string)
		b, bok := cond.Value.(string)
		return aok && bok && strings.HasSuffix(a, b)
	}
	return false
}

// resolveField walks a dot-path into nested maps.
func resolveField(ctx map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var current interface{} = ctx
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	aBytes, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}

func valueIn(actual, candidates interface{}) bool {
	list, ok := candidates.([]interface{})
	if !ok {
		return false
	}
	for _, candidate := range list {
		if valuesEqual(actual, candidate) {
			return true
		}
	}
	return false
}

func containsValue(actual, value interface{}) bool {
	switch a := actual.(type) {
	case string:
		s, ok := value.(string)
		return ok && strings.Contains(a, s)
	case []interface{}:
		for _, item := range a {
			if valuesEqual(item, value) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

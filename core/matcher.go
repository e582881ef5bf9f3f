package core

import (
	"fmt"
	"reflect"
	"strings"
)

// MatchesFilters evaluates a subscription's event filters against an
// event payload. Every filter key must match for the event to pass; an
// empty filter set matches everything.
//
// Three predicate shapes are supported per key:
//   - a scalar value: the payload field must be equal to it
//   - a list: the payload field must equal one of the entries
//   - {"$contains": v}: the payload field must be a list containing v
//
// A key missing from the payload never matches.
func MatchesFilters(filters map[string]any, payload map[string]any) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	for key, predicate := range filters {
		value, ok := payload[key]
		if !ok {
			return false, nil
		}
		matched, err := matchPredicate(key, predicate, value)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// ValidateFilters checks filter shapes without evaluating them, so bad
// filters are rejected at subscription write time instead of surfacing
// on the first delivery.
func ValidateFilters(filters map[string]any) error {
	for key, predicate := range filters {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty filter key", ErrInvalidEventFilter)
		}
		if err := validatePredicate(key, predicate); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicate(key string, predicate any) error {
	operator, ok := predicate.(map[string]any)
	if !ok {
		return nil
	}
	if len(operator) != 1 {
		return fmt.Errorf("%w: %q expects exactly one operator", ErrInvalidEventFilter, key)
	}
	for op := range operator {
		if op != "$contains" {
			return fmt.Errorf("%w: %q uses unsupported operator %q", ErrInvalidEventFilter, key, op)
		}
	}
	return nil
}

func matchPredicate(key string, predicate any, value any) (bool, error) {
	switch pred := predicate.(type) {
	case map[string]any:
		if err := validatePredicate(key, pred); err != nil {
			return false, err
		}
		return matchContains(value, pred["$contains"]), nil
	case []any:
		for _, candidate := range pred {
			if looseEqual(candidate, value) {
				return true, nil
			}
		}
		return false, nil
	default:
		return looseEqual(predicate, value), nil
	}
}

func matchContains(value any, needle any) bool {
	list, ok := value.([]any)
	if !ok {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return false
		}
		list = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			list[i] = rv.Index(i).Interface()
		}
	}
	for _, item := range list {
		if looseEqual(item, needle) {
			return true
		}
	}
	return false
}

// looseEqual compares values across the numeric type drift introduced by
// JSON round trips (ints stored as float64 and so on).
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

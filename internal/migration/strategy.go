package migration

import (
	"fmt"
	"reflect"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// mergeSeparator joins two text values under the Merge strategy.
const mergeSeparator = "; "

// applied is the outcome of applying one strategy to one target value,
// computed without touching the store.
type applied struct {
	next  interface{} // value the target should hold afterwards
	write bool        // false when the target already satisfies the mapping
}

// applyStrategy computes the next target value for a strategy. current is the
// target's present value (nil when empty), transformed the source value after
// any transform. Pure: all store reads happen before, all writes after.
func applyStrategy(strategy models.Strategy, current, transformed interface{}) (applied, error) {
	switch strategy {
	case models.StrategyReplace, models.StrategyTransform:
		// Transform's effective value was computed by the transform func;
		// from here it behaves as a replace.
		return applied{next: transformed, write: true}, nil

	case models.StrategyCopyIfEmpty:
		if !models.IsEmptyValue(current) {
			return applied{next: current, write: false}, nil
		}
		return applied{next: transformed, write: true}, nil

	case models.StrategyAddOption:
		if _, isList := transformed.([]interface{}); isList {
			return applied{}, fmt.Errorf("add_option requires a scalar value, got a list")
		}
		options := asList(current)
		for _, opt := range options {
			if scalarEqual(opt, transformed) {
				// Already present: adding again is a no-op success.
				return applied{next: options, write: false}, nil
			}
		}
		return applied{next: append(options, transformed), write: true}, nil

	case models.StrategyMerge:
		if models.IsEmptyValue(current) {
			return applied{next: transformed, write: true}, nil
		}
		return applied{next: mergeValues(current, transformed), write: true}, nil
	}
	return applied{}, fmt.Errorf("unknown strategy %q", strategy)
}

// mergeValues combines a non-empty current value with the transformed one:
// string concatenation for text, set union for lists, last-value-wins
// for everything else.
func mergeValues(current, transformed interface{}) interface{} {
	curStr, curIsStr := current.(string)
	newStr, newIsStr := transformed.(string)
	if curIsStr && newIsStr {
		if curStr == newStr {
			return curStr
		}
		return curStr + mergeSeparator + newStr
	}

	curList, curIsList := current.([]interface{})
	newList, newIsList := transformed.([]interface{})
	if curIsList || newIsList {
		if !curIsList {
			curList = asList(current)
		}
		if !newIsList {
			newList = asList(transformed)
		}
		union := make([]interface{}, len(curList))
		copy(union, curList)
		for _, item := range newList {
			present := false
			for _, existing := range union {
				if scalarEqual(existing, item) {
					present = true
					break
				}
			}
			if !present {
				union = append(union, item)
			}
		}
		return union
	}

	return transformed
}

// asList coerces a value into a list of scalars: nil becomes an empty list,
// a scalar becomes a one-element list.
func asList(value interface{}) []interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		return v
	}
	if models.IsEmptyValue(value) {
		return nil
	}
	return []interface{}{value}
}

// scalarEqual compares two scalar values, treating numeric types loosely
// since JSON decoding yields float64.
func scalarEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// sameValue reports whether the target already holds exactly the value the
// strategy would produce. Lists compare as sets, order-independent.
func sameValue(a, b interface{}) bool {
	aList, aIsList := a.([]interface{})
	bList, bIsList := b.([]interface{})
	if aIsList && bIsList {
		if len(aList) != len(bList) {
			return false
		}
		for _, item := range aList {
			found := false
			for _, other := range bList {
				if scalarEqual(item, other) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	if scalarEqual(a, b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

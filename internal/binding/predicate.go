package binding

import "github.com/nerrad567/gray-logic-platform/internal/value"

// Predicate evaluates one valid input value. mode is only meaningful for
// KindModeSelect and is 1-based.
type Predicate func(v value.Value) (enabled bool, mode int)

// Domain is the accepted integer range of a setting. A domain with
// Min >= Max is unbounded.
type Domain struct {
	Min int64
	Max int64
}

// Contains reports whether n lies in the domain.
func (d Domain) Contains(n int64) bool {
	if d.Min >= d.Max {
		return true
	}
	return n >= d.Min && n <= d.Max
}

// Truthy is enabled for non-zero values inside d. Values outside the
// domain or of an unsupported shape are false.
func Truthy(d Domain) Predicate {
	return func(v value.Value) (bool, int) {
		n, ok := v.AsInt()
		if !ok {
			return false, 0
		}
		return n != 0 && d.Contains(n), 0
	}
}

// OneOf is enabled when the value equals one of values; the mode is the
// 1-based position of the match.
func OneOf(values ...int64) Predicate {
	allowed := append([]int64(nil), values...)
	return func(v value.Value) (bool, int) {
		n, ok := v.AsInt()
		if !ok {
			return false, 0
		}
		for i, candidate := range allowed {
			if n == candidate {
				return true, i + 1
			}
		}
		return false, 0
	}
}

// Equals is enabled when the value equals want.
func Equals(want int64) Predicate {
	return OneOf(want)
}

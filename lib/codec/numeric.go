package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ErrOverflow is returned by Add if the integer sum does not fit into the result type.
var ErrOverflow = errors.New("integer overflow")

// normalize converts decoded values into the canonical shapes documented on IValueSerializer.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalize(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return x
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case json.Number:
		if strings.ContainsAny(string(x), ".eE") {
			f, _ := x.Float64()
			return f
		}
		if i, err := x.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return u
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	default:
		return v
	}
}

// IsNumeric reports whether v is an integer or float value. Bools are not numeric.
func IsNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// isFloat reports whether v is a float value.
func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

// ToInt64 converts a numeric value to int64. Floats are truncated.
// Unsigned values above math.MaxInt64 are rejected.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return ToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// ToFloat64 converts a numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	if i, ok := ToInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Add returns a + b. The result is float64 if either operand is a float. Integer sums are
// int64; they are only allowed to leave the int64 range if an operand already is a uint64
// above math.MaxInt64. Sums that do not fit fail with ErrOverflow.
func Add(a, b any) (any, error) {
	if !IsNumeric(a) {
		return nil, fmt.Errorf("value of type %T is not numeric", a)
	}
	if !IsNumeric(b) {
		return nil, fmt.Errorf("delta of type %T is not numeric", b)
	}

	if isFloat(a) || isFloat(b) {
		x, _ := ToFloat64(a)
		y, _ := ToFloat64(b)
		return x + y, nil
	}

	x, xBig := toBigInt(a)
	y, yBig := toBigInt(b)
	sum := new(big.Int).Add(x, y)
	switch {
	case sum.IsInt64():
		return sum.Int64(), nil
	case (xBig || yBig) && sum.IsUint64():
		return sum.Uint64(), nil
	default:
		return nil, fmt.Errorf("%v + %v: %w", a, b, ErrOverflow)
	}
}

// toBigInt converts an integer value. The flag reports an unsigned value above math.MaxInt64.
func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case uint:
		return new(big.Int).SetUint64(uint64(n)), uint64(n) > math.MaxInt64
	case uint64:
		return new(big.Int).SetUint64(n), n > math.MaxInt64
	}
	i, _ := ToInt64(v)
	return big.NewInt(i), false
}

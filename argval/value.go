package argval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the argument value types.
// Only Null, String, Int, Float, Bool, Array, and Object implement it.
// A nil Value is legal at the top level and means "no argument" (absent),
// which is deliberately distinct from an explicit Null.
type Value interface {
	argValue() // Sealed - only these types implement it
}

// Null represents an explicit JSON null argument.
// Using a concrete type keeps null distinct from an absent (nil) Value.
type Null struct{}

func (Null) argValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string argument value.
type String string

func (String) argValue() {}

// Int represents an integer argument value. Always int64.
type Int int64

func (Int) argValue() {}

// Float represents a non-integral numeric argument value.
// Int and Float are distinct types and never compare or key equal.
type Float float64

func (Float) argValue() {}

// Bool represents a boolean argument value.
type Bool bool

func (Bool) argValue() {}

// Array represents an ordered sequence of Values. Order is significant
// for cache identity.
type Array []Value

func (Array) argValue() {}

// Object represents a map of string keys to Values. Key order is not
// significant for cache identity; use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) argValue() {}

// Pair is a key-value pair for typed Object construction.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand Pair constructor for ergonomic Object construction.
// Example: NewObject(P("name", String("cart")), P("count", Int(5)))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates an Object from typed key-value pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: sorting the UTF-8 byte representation produces a DIFFERENT
// order for strings containing supplementary-plane characters.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}

	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// FromJSON decodes JSON into a Value. JSON null becomes Null (never a
// nil Value). Numbers decode as Int when integral and in int64 range,
// Float otherwise.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return FromGo(raw)
}

// FromGo converts a Go native value (as produced by encoding/json or
// yaml.v3 decoding into any) to a Value. Existing Values pass through
// unchanged. A Go nil converts to an explicit Null; absence is expressed
// by not supplying a value at all.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value out of int64 range: %d", val)
		}
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value out of int64 range: %d", val)
		}
		return Int(val), nil
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case json.Number:
		return numberValue(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported argument type: %T", v)
	}
}

// MustFromGo is like FromGo but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// numberValue converts a json.Number, preferring Int for integral text.
func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Int(i), nil
		}
		// Falls through for integers out of int64 range.
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("unparseable number: %s", s)
	}
	return floatValue(f)
}

// floatValue rejects the float values JSON cannot express.
func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite numbers are not representable: %v", f)
	}
	return Float(f), nil
}

// MarshalValue marshals a Value to ordinary JSON bytes for display.
// NOTE: This is NOT the canonical form - key order and escaping follow
// encoding/json. Use Canonical for cache identity.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

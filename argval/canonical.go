package argval

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical produces the canonical JSON form of a Value for cache
// identity. CRITICAL: this is the ONLY serialization that may be used
// to derive keys.
//
// Properties, following RFC 8785 where JSON allows:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. Strings NFC normalized and minimally escaped (no HTML escaping,
//     U+2028/U+2029 left literal)
//  3. Int renders as a plain decimal integer
//  4. Float renders via shortest round-trip form, with ".0" forced onto
//     integral values so Float(3) and Int(3) never collide
//  5. NaN and infinities are rejected
//
// A nil Value (absent argument) canonicalizes to the empty string,
// which is distinct from the explicit null form "null". A nil Value
// nested inside a composite is an error.
func Canonical(v Value) (string, error) {
	if v == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := appendCanonical(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustCanonical is like Canonical but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCanonical(v Value) string {
	s, err := Canonical(v)
	if err != nil {
		panic(err)
	}
	return s
}

func appendCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil value inside composite (use explicit Null)")
	case Null:
		buf.WriteString("null")
		return nil
	case String:
		appendCanonicalString(buf, string(val))
		return nil
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case Float:
		return appendCanonicalFloat(buf, float64(val))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Array:
		return appendCanonicalArray(buf, val)
	case Object:
		return appendCanonicalObject(buf, val)
	default:
		return fmt.Errorf("unsupported value type for canonical form: %T", v)
	}
}

// appendCanonicalString writes a canonical JSON string with NFC
// normalization. Per RFC 8785:
//   - No HTML escaping (<, >, & are NOT escaped)
//   - U+2028 and U+2029 are NOT escaped
//   - Only quote, backslash, and control characters (U+0000-U+001F)
//     are escaped, the latter with two-character forms where defined
//     and lowercase \u00xx otherwise
//
// Escaping works on bytes: every byte below 0x20 is ASCII, and UTF-8
// continuation bytes are always >= 0x80, so multi-byte runes pass
// through untouched.
func appendCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)

	buf.WriteByte('"')
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c >= 0x20:
			buf.WriteByte(c)
		default:
			switch c {
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				fmt.Fprintf(buf, `\u%04x`, c)
			}
		}
	}
	buf.WriteByte('"')
}

// appendCanonicalFloat writes a float in shortest round-trip form.
// Integral results get a ".0" suffix so the rendering never collides
// with an Int, keeping value types distinguished in keys. Negative
// zero folds to positive zero first: the two compare equal in Go, so
// they must key equal too.
func appendCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite float has no canonical form: %v", f)
	}
	if f == 0 {
		f = 0 // fold -0 to 0
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	buf.WriteString(s)
	return nil
}

func appendCanonicalArray(buf *bytes.Buffer, arr Array) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func appendCanonicalObject(buf *bytes.Buffer, obj Object) error {
	buf.WriteByte('{')

	// CRITICAL: RFC 8785 UTF-16 code unit key ordering.
	keys := obj.SortedKeys()

	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		appendCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := appendCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}

	buf.WriteByte('}')
	return nil
}

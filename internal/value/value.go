package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	// Invalid means the value is not (yet) known.
	Invalid Kind = iota
	Int
	String
	Bool
	// Unsupported holds any payload shape the daemon does not interpret.
	Unsupported
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Int:
		return "int"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrMalformed is returned by Decode when the payload is not a JSON envelope.
var ErrMalformed = errors.New("malformed value payload")

// Value is an immutable tagged value. The zero Value is Invalid.
type Value struct {
	kind Kind
	i    int64
	s    string
	b    bool
	raw  string
}

// Unknown is the invalid value.
var Unknown = Value{}

// OfInt returns an Int value.
func OfInt(i int64) Value { return Value{kind: Int, i: i} }

// OfString returns a String value.
func OfString(s string) Value { return Value{kind: String, s: s} }

// OfBool returns a Bool value.
func OfBool(b bool) Value { return Value{kind: Bool, b: b} }

// OfUnsupported wraps a raw payload fragment the daemon does not interpret.
func OfUnsupported(raw string) Value { return Value{kind: Unsupported, raw: raw} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Valid reports whether the value is known. Unsupported values are valid
// (the remote side did produce something) but never satisfy a predicate.
func (v Value) Valid() bool { return v.kind != Invalid }

// AsInt converts the value to an integer.
// Bools map to 0/1 and numeric strings are parsed; everything else fails.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case Int:
		return v.i, true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	case String:
		n, err := strconv.ParseInt(v.s, 0, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// AsBool converts the value to a boolean. Integers are true when non-zero.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case Bool:
		return v.b, true
	case Int:
		return v.i != 0, true
	case String:
		if b, err := strconv.ParseBool(v.s); err == nil {
			return b, true
		}
		if n, ok := v.AsInt(); ok {
			return n != 0, true
		}
		return false, false
	default:
		return false, false
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

// String renders the value for logs and version comparison.
func (v Value) String() string {
	switch v.kind {
	case Int:
		return strconv.FormatInt(v.i, 10)
	case String:
		return v.s
	case Bool:
		return strconv.FormatBool(v.b)
	case Unsupported:
		return v.raw
	default:
		return "<invalid>"
	}
}

// Interface returns the Go value suitable for JSON encoding.
func (v Value) Interface() any {
	switch v.kind {
	case Int:
		return v.i
	case String:
		return v.s
	case Bool:
		return v.b
	case Unsupported:
		return json.RawMessage(v.raw)
	default:
		return nil
	}
}

// MarshalJSON encodes the bare value (null when invalid).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// envelope is the transport payload format.
type envelope struct {
	Value json.RawMessage `json:"value"`
}

// Decode parses a {"value": X} payload.
// An empty payload, a missing field or null yields Unknown.
func Decode(payload []byte) (Value, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Unknown, nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromJSON(env.Value), nil
}

// FromJSON converts a raw JSON fragment into a Value.
func FromJSON(raw json.RawMessage) Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Unknown
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return OfUnsupported(string(raw))
	}
	return fromAny(x, string(raw))
}

// FromAny converts a decoded Go value into a Value.
func FromAny(x any) Value {
	raw, _ := json.Marshal(x)
	return fromAny(x, string(raw))
}

func fromAny(x any, raw string) Value {
	switch t := x.(type) {
	case nil:
		return Unknown
	case bool:
		return OfBool(t)
	case string:
		return OfString(t)
	case int:
		return OfInt(int64(t))
	case int64:
		return OfInt(t)
	case int32:
		return OfInt(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return OfInt(n)
		}
		f, err := t.Float64()
		if err != nil {
			return OfUnsupported(raw)
		}
		return fromFloat(f, raw)
	case float64:
		return fromFloat(t, raw)
	default:
		return OfUnsupported(raw)
	}
}

// fromFloat keeps integral floats as Int; fractional ones are unsupported.
func fromFloat(f float64, raw string) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return OfInt(int64(f))
	}
	return OfUnsupported(raw)
}

// Encode builds the {"value": X} payload for v.
func Encode(v Value) ([]byte, error) {
	return json.Marshal(map[string]any{"value": v.Interface()})
}

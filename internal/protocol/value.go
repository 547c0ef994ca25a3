package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Kind is the wire tag of a Value.
type Kind int32

// Wire tags. The numbering matches what deployed producers emit; 2 is unused.
const (
	KindNil    Kind = 0
	KindBool   Kind = 1
	KindNumber Kind = 3
	KindString Kind = 4
)

// Accounted weights per kind. They do not match the wire size.
const (
	accountNil       = 6
	accountBool      = 6
	accountNumber    = 10
	accountStringPad = 2
)

func (k Kind) Valid() bool {
	switch k {
	case KindNil, KindBool, KindNumber, KindString:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one positional packet argument.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    []byte
}

func Nil() Value {
	return Value{kind: KindNil}
}

func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

func Number(v float64) Value {
	return Value{kind: KindNumber, n: v}
}

func String(v string) Value {
	return Value{kind: KindString, s: []byte(v)}
}

// Bytes creates a string value from a copy of v.
func Bytes(v []byte) Value {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Value{kind: KindString, s: buf}
}

// FromAny converts a JSON-decoded scalar into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNil() bool {
	return v.kind == KindNil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, ErrValueKindMismatch
	}
	return v.b, nil
}

func (v Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, ErrValueKindMismatch
	}
	return v.n, nil
}

// AsBytes returns a copy of the string payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindString {
		return nil, ErrValueKindMismatch
	}
	buf := make([]byte, len(v.s))
	copy(buf, v.s)
	return buf, nil
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", ErrValueKindMismatch
	}
	return string(v.s), nil
}

// AccountedSize is the quota weight of v, not its encoded length.
func (v Value) AccountedSize() int {
	switch v.kind {
	case KindNil:
		return accountNil
	case KindBool:
		return accountBool
	case KindNumber:
		return accountNumber
	case KindString:
		return len(v.s) + accountStringPad
	default:
		return 0
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return math.Float64bits(v.n) == math.Float64bits(other.n)
	case KindString:
		return bytes.Equal(v.s, other.s)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return strconv.Quote(string(v.s))
	default:
		return v.kind.String()
	}
}

// Interface returns v as a plain Go value: nil, bool, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return string(v.s)
	default:
		return nil
	}
}

// MarshalJSON renders a string payload that is not valid UTF-8 as
// {"bytes": "<base64>"} so binary arguments survive the round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)):
		return json.Marshal(v.String())
	case v.kind == KindString && !utf8.Valid(v.s):
		return json.Marshal(struct {
			Bytes []byte `json:"bytes"`
		}{Bytes: v.s})
	}
	return json.Marshal(v.Interface())
}

package protocol

import (
	"encoding/binary"
	"math"
)

const (
	lenPrefixSize = 4
	tagSize       = 4
)

// Encode builds one packet from h and values under limits.
// Nothing is returned on error; a partly written buffer is discarded.
func Encode(h Header, values []Value, limits Limits) ([]byte, error) {
	if err := ValidatePort(h.Port); err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerLength(h)+valuesLengthHint(values))
	out = appendBytes(out, h.Sender)
	if h.HasTarget {
		out = append(out, 1)
		out = appendBytes(out, h.Target)
	} else {
		out = append(out, 0)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(h.Port)))

	if len(values) > limits.MaxArguments {
		return nil, ErrTooManyArguments
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(len(values))))

	accounted := 0
	for i, v := range values {
		if !v.kind.Valid() {
			return nil, &ArgumentError{Index: i, Kind: v.kind, Accounted: accounted, Limit: limits.MaxPacketSize, Err: ErrUnsupportedType}
		}
		out = appendValue(out, v)
		accounted += v.AccountedSize()
		if accounted > limits.MaxPacketSize {
			return nil, &ArgumentError{Index: i, Kind: v.kind, Accounted: accounted, Limit: limits.MaxPacketSize, Err: ErrPacketTooBig}
		}
	}
	return out, nil
}

// AccountedSize sums the quota weights of values.
func AccountedSize(values []Value) int {
	total := 0
	for _, v := range values {
		total += v.AccountedSize()
	}
	return total
}

func appendValue(out []byte, v Value) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(v.kind))
	switch v.kind {
	case KindBool:
		if v.b {
			return append(out, 1)
		}
		return append(out, 0)
	case KindNumber:
		return binary.LittleEndian.AppendUint64(out, math.Float64bits(v.n))
	case KindString:
		return appendBytes(out, v.s)
	default:
		return out
	}
}

func appendBytes(out []byte, b []byte) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(len(b))))
	return append(out, b...)
}

func headerLength(h Header) int {
	n := lenPrefixSize + len(h.Sender) + 1 + 4 + 4
	if h.HasTarget {
		n += lenPrefixSize + len(h.Target)
	}
	return n
}

func valuesLengthHint(values []Value) int {
	n := 0
	for _, v := range values {
		n += tagSize
		switch v.kind {
		case KindBool:
			n++
		case KindNumber:
			n += 8
		case KindString:
			n += lenPrefixSize + len(v.s)
		}
	}
	return n
}

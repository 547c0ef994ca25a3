package protocol

import (
	"encoding/binary"
	"math"
)

// Decode parses one packet. Quotas are not applied; unknown argument tags
// are skipped without consuming payload bytes.
func Decode(b []byte) (Message, error) {
	r := reader{buf: b}

	sender, err := r.readBytes("sender")
	if err != nil {
		return Message{}, err
	}
	flag, err := r.readByte("has_target")
	if err != nil {
		return Message{}, err
	}
	h := Header{Sender: sender, HasTarget: flag != 0}
	if h.HasTarget {
		if h.Target, err = r.readBytes("target"); err != nil {
			return Message{}, err
		}
	}
	port, err := r.readInt32("port")
	if err != nil {
		return Message{}, err
	}
	h.Port = int(port)

	count, err := r.readInt32("num_args")
	if err != nil {
		return Message{}, err
	}
	if count < 0 {
		return Message{}, malformed("num_args", nil)
	}

	msg := Message{Header: h}
	if count > 0 {
		msg.Values = make([]Value, 0, min(int(count), len(b)/tagSize))
	}
	for i := int32(0); i < count; i++ {
		tag, err := r.readInt32("arg_tag")
		if err != nil {
			return Message{}, err
		}
		switch Kind(tag) {
		case KindNil:
			msg.Values = append(msg.Values, Nil())
		case KindBool:
			c, err := r.readByte("arg_bool")
			if err != nil {
				return Message{}, err
			}
			msg.Values = append(msg.Values, Bool(c != 0))
		case KindNumber:
			bits, err := r.readUint64("arg_number")
			if err != nil {
				return Message{}, err
			}
			msg.Values = append(msg.Values, Number(math.Float64frombits(bits)))
		case KindString:
			s, err := r.readBytes("arg_string")
			if err != nil {
				return Message{}, err
			}
			msg.Values = append(msg.Values, Value{kind: KindString, s: s})
		}
	}
	return msg, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if n < 0 || n > len(r.buf)-r.off {
		return nil, malformed(field, nil)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) readByte(field string) (byte, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readInt32(field string) (int32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *reader) readUint64(field string) (uint64, error) {
	b, err := r.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readBytes reads a length-prefixed field and returns a copy.
func (r *reader) readBytes(field string) ([]byte, error) {
	n, err := r.readInt32(field)
	if err != nil {
		return nil, err
	}
	raw, err := r.take(field, int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPort       = errors.New("protocol: invalid port number")
	ErrTooManyArguments  = errors.New("protocol: packet has too many parts")
	ErrPacketTooBig      = errors.New("protocol: packet too big")
	ErrUnsupportedType   = errors.New("protocol: unsupported data type")
	ErrMalformedMessage  = errors.New("protocol: malformed message")
	ErrValueKindMismatch = errors.New("protocol: value kind mismatch")
)

// ArgumentError reports which argument stopped an encode.
type ArgumentError struct {
	Index     int
	Kind      Kind
	Accounted int
	Limit     int
	Err       error
}

func (e *ArgumentError) Error() string {
	if errors.Is(e.Err, ErrPacketTooBig) {
		return fmt.Sprintf("%v (max %d): argument %d", e.Err, e.Limit, e.Index)
	}
	return fmt.Sprintf("%v: argument %d kind=%d", e.Err, e.Index, int32(e.Kind))
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func malformed(field string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedMessage, field)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, field, err)
}

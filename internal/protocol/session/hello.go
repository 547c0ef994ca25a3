package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/simmodem/internal/protocol/frame"
)

const maxAddressBytes = 256

var (
	ErrInvalidHello    = errors.New("session: invalid hello")
	ErrUnexpectedFrame = errors.New("session: unexpected frame type")
	ErrAddressTooLarge = errors.New("session: address too large")
)

// WriteHello announces the modem address as the first frame of a stream.
func WriteHello(w io.Writer, address []byte) error {
	if len(address) > maxAddressBytes {
		return ErrAddressTooLarge
	}
	if strings.TrimSpace(string(address)) == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidHello)
	}
	return frame.WriteFrame(w, frame.Frame{
		Header:  frame.Header{Type: frame.TypeHello},
		Payload: address,
	}, frame.DefaultLimits())
}

// ReadHello reads the first frame of a stream and returns the peer address.
func ReadHello(r io.Reader) ([]byte, error) {
	f, err := frame.ReadFrame(r, frame.Limits{MaxPayloadBytes: maxAddressBytes})
	if err != nil {
		return nil, err
	}
	if f.Header.Type != frame.TypeHello {
		return nil, fmt.Errorf("%w: type=%d", ErrUnexpectedFrame, f.Header.Type)
	}
	if strings.TrimSpace(string(f.Payload)) == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidHello)
	}
	return f.Payload, nil
}

// WritePacket writes one opaque modem packet.
func WritePacket(w io.Writer, seq uint64, packet []byte) error {
	return frame.WriteFrame(w, frame.Frame{
		Header:  frame.Header{Type: frame.TypePacket, Seq: seq},
		Payload: packet,
	}, frame.DefaultLimits())
}

// ReadPacket reads one packet frame; hello frames after the first are rejected.
func ReadPacket(r io.Reader) (frame.Frame, error) {
	f, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		return frame.Frame{}, err
	}
	if f.Header.Type != frame.TypePacket {
		return frame.Frame{}, fmt.Errorf("%w: type=%d", ErrUnexpectedFrame, f.Header.Type)
	}
	return f, nil
}

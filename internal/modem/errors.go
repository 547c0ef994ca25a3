package modem

import "errors"

var (
	ErrDriverStart  = errors.New("modem: driver failed to start")
	ErrInvalidPhase = errors.New("modem: invalid lifecycle phase")
	ErrNotSupported = errors.New("modem: not supported")
	ErrNilTransport = errors.New("modem: nil transport")
	ErrNilMachine   = errors.New("modem: nil machine")
)

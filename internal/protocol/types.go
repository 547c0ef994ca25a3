package protocol

const (
	MinPort = 1
	MaxPort = 0xffff

	DefaultMaxPacketSize = 8192
	DefaultMaxArguments  = 8
)

// Header is the addressing part of one modem packet.
type Header struct {
	Sender    []byte
	HasTarget bool
	Target    []byte
	Port      int
}

// Message is one decoded packet: header plus positional arguments.
type Message struct {
	Header Header
	Values []Value
}

// Limits are the per-modem encode quotas.
type Limits struct {
	MaxPacketSize int
	MaxArguments  int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPacketSize: DefaultMaxPacketSize,
		MaxArguments:  DefaultMaxArguments,
	}
}

// ValidatePort reports ErrInvalidPort for ports outside [MinPort, MaxPort].
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return ErrInvalidPort
	}
	return nil
}

package modem

import "github.com/danmuck/simmodem/internal/protocol"

// SignalModemMessage is the event name of a delivered packet.
const SignalModemMessage = "modem_message"

// Signal is one accepted packet as delivered to the machine.
type Signal struct {
	Name     string
	Receiver []byte
	Sender   []byte
	Port     int
	Distance float64
	Args     []protocol.Value
}

// Tuple flattens s into (name, receiver, sender, port, distance, args...).
func (s Signal) Tuple() []any {
	out := make([]any, 0, 5+len(s.Args))
	out = append(out, s.Name, string(s.Receiver), string(s.Sender), s.Port, s.Distance)
	for _, v := range s.Args {
		out = append(out, v.Interface())
	}
	return out
}

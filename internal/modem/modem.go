package modem

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/simmodem/internal/observability"
	"github.com/danmuck/simmodem/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Transport moves raw packets between modems.
// Pop must be safe to call while another goroutine fills the queue.
type Transport interface {
	Start() bool
	Stop()
	Send(packet []byte) bool
	Pop() ([]byte, bool)
}

// ConnectionReporter is implemented by transports that can lose their link
// after Start, such as the relay driver.
type ConnectionReporter interface {
	Connected() bool
}

// Machine receives accepted packets as signals.
type Machine interface {
	PushSignal(Signal)
}

type Phase string

const (
	PhaseConstructed Phase = "constructed"
	PhaseRunning     Phase = "running"
	PhaseStopped     Phase = "stopped"
)

// Config fixes a modem's identity and quotas for its lifetime.
type Config struct {
	Name    string
	Address []byte
	Limits  protocol.Limits
}

// Status is a point-in-time view of a modem.
type Status struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Phase         Phase    `json:"phase"`
	Ports         []uint16 `json:"ports"`
	MaxPacketSize int      `json:"max_packet_size"`
	MaxArguments  int      `json:"max_arguments"`
	Wireless      bool     `json:"wireless"`
	Connected     bool     `json:"connected"`
}

type Modem struct {
	name      string
	address   []byte
	limits    protocol.Limits
	transport Transport
	machine   Machine

	mu    sync.Mutex
	phase Phase
	ports *PortRegistry
}

func New(cfg Config, transport Transport, machine Machine) (*Modem, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if machine == nil {
		return nil, ErrNilMachine
	}
	limits := cfg.Limits
	def := protocol.DefaultLimits()
	if limits.MaxPacketSize <= 0 {
		limits.MaxPacketSize = def.MaxPacketSize
	}
	if limits.MaxArguments <= 0 {
		limits.MaxArguments = def.MaxArguments
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = string(cfg.Address)
	}
	addr := make([]byte, len(cfg.Address))
	copy(addr, cfg.Address)
	return &Modem{
		name:      name,
		address:   addr,
		limits:    limits,
		transport: transport,
		machine:   machine,
		phase:     PhaseConstructed,
		ports:     NewPortRegistry(),
	}, nil
}

// Start brings the transport up; a modem starts at most once.
func (m *Modem) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseConstructed {
		return ErrInvalidPhase
	}
	if !m.transport.Start() {
		log.Error().Str("modem", m.name).Msg("modem.Start driver failed to start")
		return ErrDriverStart
	}
	m.phase = PhaseRunning
	log.Info().
		Str("modem", m.name).
		Int("max_packet_size", m.limits.MaxPacketSize).
		Int("max_arguments", m.limits.MaxArguments).
		Msg("modem.Start running")
	return nil
}

// Stop tears the transport down. Calling it again has no effect.
func (m *Modem) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseStopped {
		return
	}
	wasRunning := m.phase == PhaseRunning
	m.phase = PhaseStopped
	if wasRunning {
		m.transport.Stop()
	}
	log.Info().Str("modem", m.name).Msg("modem.Stop stopped")
}

func (m *Modem) Name() string {
	return m.name
}

func (m *Modem) Address() []byte {
	out := make([]byte, len(m.address))
	copy(out, m.address)
	return out
}

func (m *Modem) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Connected reports whether the modem is running over a live transport.
// Transports without a ConnectionReporter count as connected while running.
// A lost relay link is not re-dialed; the modem must be restarted.
func (m *Modem) Connected() bool {
	return m.Phase() == PhaseRunning && m.transportConnected()
}

func (m *Modem) transportConnected() bool {
	if r, ok := m.transport.(ConnectionReporter); ok {
		return r.Connected()
	}
	return true
}

func (m *Modem) MaxPacketSize() int {
	return m.limits.MaxPacketSize
}

func (m *Modem) Limits() protocol.Limits {
	return m.limits
}

func (m *Modem) IsWireless() bool {
	return false
}

func (m *Modem) WakeMessage() (string, error) {
	return "", ErrNotSupported
}

func (m *Modem) SetWakeMessage(string) error {
	return ErrNotSupported
}

// Open starts listening on port and reports whether that changed anything.
func (m *Modem) Open(port int) (bool, error) {
	if err := protocol.ValidatePort(port); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports.Open(uint16(port)), nil
}

// Close stops listening on port and reports whether that changed anything.
func (m *Modem) Close(port int) (bool, error) {
	if err := protocol.ValidatePort(port); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports.Close(uint16(port)), nil
}

func (m *Modem) IsOpen(port int) (bool, error) {
	if err := protocol.ValidatePort(port); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports.IsOpen(uint16(port)), nil
}

func (m *Modem) Ports() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports.List()
}

func (m *Modem) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Name:          m.name,
		Address:       string(m.address),
		Phase:         m.phase,
		Ports:         m.ports.List(),
		MaxPacketSize: m.limits.MaxPacketSize,
		MaxArguments:  m.limits.MaxArguments,
		Wireless:      false,
		Connected:     m.phase == PhaseRunning && m.transportConnected(),
	}
}

// Send transmits a packet addressed to target.
// Codec errors are returned and nothing is transmitted; the bool is the
// transport result and is false while the modem is not running.
func (m *Modem) Send(target []byte, port int, values ...protocol.Value) (bool, error) {
	return m.transmit("send", protocol.Header{
		Sender:    m.address,
		HasTarget: true,
		Target:    target,
		Port:      port,
	}, values)
}

// Broadcast transmits a packet any listening modem accepts.
func (m *Modem) Broadcast(port int, values ...protocol.Value) (bool, error) {
	return m.transmit("broadcast", protocol.Header{
		Sender: m.address,
		Port:   port,
	}, values)
}

func (m *Modem) transmit(kind string, h protocol.Header, values []protocol.Value) (bool, error) {
	packet, err := protocol.Encode(h, values, m.limits)
	if err != nil {
		observability.RecordModemEncodeError(m.name, encodeReason(err))
		log.Debug().
			Str("modem", m.name).
			Str("kind", kind).
			Int("port", h.Port).
			Int("args", len(values)).
			Err(err).
			Msg("modem.transmit rejected")
		return false, err
	}

	if m.Phase() != PhaseRunning {
		observability.RecordModemSend(m.name, kind, false)
		log.Debug().Str("modem", m.name).Str("kind", kind).Msg("modem.transmit transport unavailable")
		return false, nil
	}

	ok := m.transport.Send(packet)
	observability.RecordModemSend(m.name, kind, ok)
	log.Trace().
		Str("modem", m.name).
		Str("kind", kind).
		Int("port", h.Port).
		Int("bytes", len(packet)).
		Bool("ok", ok).
		Msg("modem.transmit")
	return ok, nil
}

// Update drains every queued inbound packet and returns how many were
// delivered to the machine. It never blocks.
func (m *Modem) Update() int {
	delivered := 0
	for {
		raw, ok := m.transport.Pop()
		if !ok {
			return delivered
		}
		if m.deliver(raw) {
			delivered++
		}
	}
}

func (m *Modem) deliver(raw []byte) bool {
	msg, err := protocol.Decode(raw)
	if err != nil {
		observability.RecordModemInbound(m.name, observability.InboundMalformed)
		log.Debug().Str("modem", m.name).Int("bytes", len(raw)).Err(err).Msg("modem.Update dropped malformed packet")
		return false
	}

	result := m.filter(msg.Header)
	observability.RecordModemInbound(m.name, result)
	if result != observability.InboundAccepted {
		return false
	}

	m.machine.PushSignal(Signal{
		Name:     SignalModemMessage,
		Receiver: m.Address(),
		Sender:   msg.Header.Sender,
		Port:     msg.Header.Port,
		Distance: 0,
		Args:     msg.Values,
	})
	return true
}

// filter accepts a packet on an open port that is either a broadcast or
// addressed to exactly this modem.
func (m *Modem) filter(h protocol.Header) string {
	if protocol.ValidatePort(h.Port) != nil {
		return observability.InboundPortClosed
	}
	m.mu.Lock()
	open := m.ports.IsOpen(uint16(h.Port))
	m.mu.Unlock()
	if !open {
		return observability.InboundPortClosed
	}
	if h.HasTarget && !bytes.Equal(h.Target, m.address) {
		return observability.InboundWrongTarget
	}
	return observability.InboundAccepted
}

func encodeReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidPort):
		return "invalid_port"
	case errors.Is(err, protocol.ErrTooManyArguments):
		return "too_many_arguments"
	case errors.Is(err, protocol.ErrPacketTooBig):
		return "packet_too_big"
	case errors.Is(err, protocol.ErrUnsupportedType):
		return "unsupported_type"
	default:
		return "other"
	}
}

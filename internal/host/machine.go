package host

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/simmodem/internal/modem"
	"github.com/danmuck/simmodem/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSignalCapacity = 256
	DefaultTickInterval   = 50 * time.Millisecond
)

var (
	ErrEmptyComponentName = errors.New("host: empty component name")
	ErrDuplicateComponent = errors.New("host: component already attached")
	ErrNilModem           = errors.New("host: nil modem")
)

type Config struct {
	Name           string
	SignalCapacity int
	BusCapacity    int
}

// Component describes one attached device.
type Component struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// Machine owns modems and the signal queue they feed.
type Machine struct {
	name    string
	signals chan modem.Signal
	bus     *SignalBus

	mu     sync.RWMutex
	modems map[string]*modem.Modem
	order  []string

	stopOnce sync.Once
}

var _ modem.Machine = (*Machine)(nil)

func New(cfg Config) *Machine {
	capacity := cfg.SignalCapacity
	if capacity <= 0 {
		capacity = DefaultSignalCapacity
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "machine"
	}
	return &Machine{
		name:    name,
		signals: make(chan modem.Signal, capacity),
		bus:     NewSignalBus(cfg.BusCapacity),
		modems:  make(map[string]*modem.Modem),
	}
}

func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) Bus() *SignalBus {
	return m.bus
}

// PushSignal queues sig for the program and publishes it on the bus.
// When the queue is full the signal is dropped from the queue.
func (m *Machine) PushSignal(sig modem.Signal) {
	select {
	case m.signals <- sig:
	default:
		observability.RecordQueueDrop("signals:" + m.name)
		log.Warn().
			Str("machine", m.name).
			Str("receiver", string(sig.Receiver)).
			Int("port", sig.Port).
			Msg("host.Machine signal queue full, dropping signal")
	}
	m.bus.Publish(sig)
}

func (m *Machine) PullSignal() (modem.Signal, bool) {
	select {
	case sig := <-m.signals:
		return sig, true
	default:
		return modem.Signal{}, false
	}
}

// Signals drains the queue.
func (m *Machine) Signals() []modem.Signal {
	out := make([]modem.Signal, 0, len(m.signals))
	for {
		sig, ok := m.PullSignal()
		if !ok {
			return out
		}
		out = append(out, sig)
	}
}

func (m *Machine) PendingSignals() int {
	return len(m.signals)
}

func (m *Machine) Attach(name string, md *modem.Modem) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyComponentName
	}
	if md == nil {
		return ErrNilModem
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modems[name]; ok {
		return ErrDuplicateComponent
	}
	m.modems[name] = md
	m.order = append(m.order, name)
	log.Info().
		Str("machine", m.name).
		Str("component", name).
		Str("address", string(md.Address())).
		Msg("host.Machine attached modem")
	return nil
}

func (m *Machine) Modem(name string) (*modem.Modem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.modems[name]
	return md, ok
}

// Modems returns attached modems in attach order.
func (m *Machine) Modems() []*modem.Modem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*modem.Modem, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.modems[name])
	}
	return out
}

func (m *Machine) Components() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.modems))
	for name, md := range m.modems {
		out = append(out, Component{
			Name:    name,
			Type:    "modem",
			Address: string(md.Address()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Tick drains every attached modem once and returns the number of signals
// delivered.
func (m *Machine) Tick() int {
	delivered := 0
	for _, md := range m.Modems() {
		delivered += md.Update()
	}
	return delivered
}

// Run ticks every interval until ctx is done, then stops the machine.
func (m *Machine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.Stop()

	log.Info().Str("machine", m.name).Dur("interval", interval).Msg("host.Machine running")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("machine", m.name).Msg("host.Machine stopping")
			return nil
		case <-ticker.C:
			if n := m.Tick(); n > 0 {
				log.Trace().Str("machine", m.name).Int("delivered", n).Msg("host.Machine tick")
			}
		}
	}
}

// Stop stops every attached modem and closes the bus.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		for _, md := range m.Modems() {
			md.Stop()
		}
		m.bus.Close()
	})
}

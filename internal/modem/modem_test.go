package modem

import (
	"errors"
	"testing"

	"github.com/danmuck/simmodem/internal/protocol"
	"github.com/danmuck/simmodem/internal/testutil/testlog"
	"github.com/danmuck/simmodem/internal/transport"
)

type recordingMachine struct {
	signals []Signal
}

func (m *recordingMachine) PushSignal(s Signal) {
	m.signals = append(m.signals, s)
}

type fakeTransport struct {
	startOK bool
	sent    [][]byte
	inbound [][]byte
	stopped bool
}

func (f *fakeTransport) Start() bool { return f.startOK }
func (f *fakeTransport) Stop()       { f.stopped = true }

func (f *fakeTransport) Send(packet []byte) bool {
	f.sent = append(f.sent, packet)
	return true
}

func (f *fakeTransport) Pop() ([]byte, bool) {
	if len(f.inbound) == 0 {
		return nil, false
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	return next, true
}

func newEtherModem(t *testing.T, ether *transport.Ether, address string) (*Modem, *recordingMachine) {
	t.Helper()
	machine := &recordingMachine{}
	m, err := New(Config{Address: []byte(address), Limits: protocol.DefaultLimits()}, ether.Attach(address), machine)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start modem: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, machine
}

func TestPortRegistryIdempotent(t *testing.T) {
	testlog.Start(t)
	m, err := New(Config{Address: []byte("a")}, &fakeTransport{startOK: true}, &recordingMachine{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	steps := []struct {
		op      func(int) (bool, error)
		changed bool
		open    bool
	}{
		{m.Open, true, true},
		{m.Open, false, true},
		{m.Close, true, false},
		{m.Close, false, false},
	}
	for i, step := range steps {
		changed, err := step.op(42)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != step.changed {
			t.Fatalf("step %d changed=%v want %v", i, changed, step.changed)
		}
		open, _ := m.IsOpen(42)
		if open != step.open {
			t.Fatalf("step %d open=%v want %v", i, open, step.open)
		}
	}
}

func TestInvalidPortLeavesRegistryUnchanged(t *testing.T) {
	testlog.Start(t)
	m, _ := New(Config{Address: []byte("a")}, &fakeTransport{startOK: true}, &recordingMachine{})
	m.Open(7)

	for _, port := range []int{0, -1, 65536, 70000} {
		if _, err := m.Open(port); !errors.Is(err, protocol.ErrInvalidPort) {
			t.Fatalf("open(%d) expected ErrInvalidPort, got %v", port, err)
		}
		if _, err := m.Close(port); !errors.Is(err, protocol.ErrInvalidPort) {
			t.Fatalf("close(%d) expected ErrInvalidPort, got %v", port, err)
		}
		if _, err := m.IsOpen(port); !errors.Is(err, protocol.ErrInvalidPort) {
			t.Fatalf("isOpen(%d) expected ErrInvalidPort, got %v", port, err)
		}
	}
	if ports := m.Ports(); len(ports) != 1 || ports[0] != 7 {
		t.Fatalf("expected registry unchanged, got %v", ports)
	}
}

func TestBroadcastDeliversSignal(t *testing.T) {
	testlog.Start(t)
	ether := transport.NewEther()
	a, _ := newEtherModem(t, ether, "machine-a")
	b, machineB := newEtherModem(t, ether, "machine-b")

	if changed, err := b.Open(42); err != nil || !changed {
		t.Fatalf("open: changed=%v err=%v", changed, err)
	}
	ok, err := a.Broadcast(42, protocol.Bool(true), protocol.Number(3.5), protocol.String("hi"))
	if err != nil || !ok {
		t.Fatalf("broadcast: ok=%v err=%v", ok, err)
	}

	if n := b.Update(); n != 1 {
		t.Fatalf("expected one delivered signal, got %d", n)
	}
	if len(machineB.signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(machineB.signals))
	}
	sig := machineB.signals[0]
	if sig.Name != SignalModemMessage || string(sig.Receiver) != "machine-b" || string(sig.Sender) != "machine-a" {
		t.Fatalf("unexpected signal identity: %+v", sig)
	}
	if sig.Port != 42 || sig.Distance != 0 {
		t.Fatalf("unexpected port/distance: port=%d distance=%v", sig.Port, sig.Distance)
	}
	want := []protocol.Value{protocol.Bool(true), protocol.Number(3.5), protocol.String("hi")}
	if len(sig.Args) != len(want) {
		t.Fatalf("unexpected args: %v", sig.Args)
	}
	for i := range want {
		if !sig.Args[i].Equal(want[i]) {
			t.Fatalf("arg[%d]=%s want %s", i, sig.Args[i], want[i])
		}
	}

	tuple := sig.Tuple()
	if len(tuple) != 8 || tuple[0] != "modem_message" || tuple[3] != 42 || tuple[4] != 0.0 || tuple[7] != "hi" {
		t.Fatalf("unexpected tuple: %#v", tuple)
	}
}

func TestDirectedSendOnlyReachesTarget(t *testing.T) {
	testlog.Start(t)
	ether := transport.NewEther()
	a, _ := newEtherModem(t, ether, "machine-a")
	b, machineB := newEtherModem(t, ether, "machine-b")
	c, machineC := newEtherModem(t, ether, "machine-c")
	b.Open(5)
	c.Open(5)

	if ok, err := a.Send([]byte("machine-c"), 5, protocol.String("for c")); err != nil || !ok {
		t.Fatalf("send: ok=%v err=%v", ok, err)
	}
	b.Update()
	c.Update()
	if len(machineB.signals) != 0 {
		t.Fatalf("expected machine-b to drop directed packet")
	}
	if len(machineC.signals) != 1 {
		t.Fatalf("expected machine-c to accept directed packet, got %d", len(machineC.signals))
	}

	if ok, _ := a.Send([]byte("machine-c "), 5, protocol.Nil()); !ok {
		t.Fatalf("expected send")
	}
	if n := c.Update(); n != 0 {
		t.Fatalf("expected near-miss address dropped, delivered=%d", n)
	}
}

func TestClosedPortDrops(t *testing.T) {
	testlog.Start(t)
	ether := transport.NewEther()
	a, _ := newEtherModem(t, ether, "machine-a")
	b, machineB := newEtherModem(t, ether, "machine-b")
	b.Open(1)

	a.Broadcast(2, protocol.Nil())
	if n := b.Update(); n != 0 || len(machineB.signals) != 0 {
		t.Fatalf("expected closed port packet dropped, delivered=%d", n)
	}
}

func TestUpdateDrainsQueueAndSkipsMalformed(t *testing.T) {
	testlog.Start(t)
	good, err := protocol.Encode(protocol.Header{Sender: []byte("x"), Port: 9}, []protocol.Value{protocol.Number(1)}, protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ft := &fakeTransport{startOK: true, inbound: [][]byte{good, {0xff, 0x00}, good, good[:len(good)-3], good}}
	machine := &recordingMachine{}
	m, _ := New(Config{Address: []byte("a")}, ft, machine)
	m.Open(9)

	if n := m.Update(); n != 3 {
		t.Fatalf("expected 3 delivered, got %d", n)
	}
	if len(ft.inbound) != 0 {
		t.Fatalf("expected queue drained, %d left", len(ft.inbound))
	}
	if n := m.Update(); n != 0 {
		t.Fatalf("expected empty tick, got %d", n)
	}
}

func TestCodecErrorsSkipTransport(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{startOK: true}
	m, _ := New(Config{Address: []byte("a"), Limits: protocol.Limits{MaxPacketSize: 16, MaxArguments: 2}}, ft, &recordingMachine{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := m.Broadcast(1, protocol.Nil(), protocol.Nil(), protocol.Nil()); !errors.Is(err, protocol.ErrTooManyArguments) {
		t.Fatalf("expected ErrTooManyArguments, got %v", err)
	}
	if _, err := m.Send([]byte("b"), 1, protocol.String("0123456789abcdef")); !errors.Is(err, protocol.ErrPacketTooBig) {
		t.Fatalf("expected ErrPacketTooBig, got %v", err)
	}
	if _, err := m.Broadcast(0); !errors.Is(err, protocol.ErrInvalidPort) {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("expected no transport calls, got %d", len(ft.sent))
	}
	if ok, err := m.Broadcast(1, protocol.Number(1)); !ok || err != nil {
		t.Fatalf("expected valid broadcast, ok=%v err=%v", ok, err)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected one transport call, got %d", len(ft.sent))
	}
}

func TestLifecycle(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{startOK: true}
	m, _ := New(Config{Address: []byte("a")}, ft, &recordingMachine{})
	if m.Phase() != PhaseConstructed {
		t.Fatalf("unexpected phase=%s", m.Phase())
	}
	if ok, err := m.Broadcast(1); ok || err != nil {
		t.Fatalf("expected send before start to fail quietly, ok=%v err=%v", ok, err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	m.Stop()
	m.Stop()
	if !ft.stopped || m.Phase() != PhaseStopped {
		t.Fatalf("expected stopped transport and phase")
	}
	if ok, _ := m.Broadcast(1); ok {
		t.Fatalf("expected send after stop to fail")
	}
	if len(ft.sent) != 0 {
		t.Fatalf("expected no transport calls outside running phase")
	}
	if changed, err := m.Open(3); err != nil || !changed {
		t.Fatalf("expected ports usable after stop, changed=%v err=%v", changed, err)
	}
}

func TestStartFailsWhenDriverFails(t *testing.T) {
	testlog.Start(t)
	m, _ := New(Config{Address: []byte("a")}, &fakeTransport{startOK: false}, &recordingMachine{})
	if err := m.Start(); !errors.Is(err, ErrDriverStart) {
		t.Fatalf("expected ErrDriverStart, got %v", err)
	}
	if m.Phase() != PhaseConstructed {
		t.Fatalf("expected phase unchanged, got %s", m.Phase())
	}
}

func TestUnsupportedComponentMethods(t *testing.T) {
	testlog.Start(t)
	m, _ := New(Config{Address: []byte("a")}, &fakeTransport{}, &recordingMachine{})
	if m.IsWireless() {
		t.Fatalf("expected wired modem")
	}
	if m.MaxPacketSize() != protocol.DefaultMaxPacketSize {
		t.Fatalf("unexpected max packet size=%d", m.MaxPacketSize())
	}
	if _, err := m.WakeMessage(); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if err := m.SetWakeMessage("wake"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if _, err := New(Config{}, nil, &recordingMachine{}); !errors.Is(err, ErrNilTransport) {
		t.Fatalf("expected ErrNilTransport, got %v", err)
	}
}

type linkTransport struct {
	fakeTransport
	connected bool
}

func (l *linkTransport) Connected() bool { return l.connected }

func TestConnectedFollowsTransportLink(t *testing.T) {
	testlog.Start(t)
	lt := &linkTransport{fakeTransport: fakeTransport{startOK: true}, connected: true}
	m, _ := New(Config{Address: []byte("a")}, lt, &recordingMachine{})
	if m.Connected() {
		t.Fatalf("expected not connected before start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Connected() || !m.Status().Connected {
		t.Fatalf("expected connected while link is up")
	}
	lt.connected = false
	if m.Connected() || m.Status().Connected {
		t.Fatalf("expected link loss to clear connected")
	}
	if m.Phase() != PhaseRunning {
		t.Fatalf("expected phase unchanged by link loss, got %s", m.Phase())
	}

	plain, _ := New(Config{Address: []byte("b")}, &fakeTransport{startOK: true}, &recordingMachine{})
	plain.Start()
	if !plain.Connected() {
		t.Fatalf("expected transport without link reporting to count as connected")
	}
}

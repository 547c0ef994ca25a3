package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/simmodem/internal/modem"
	"github.com/danmuck/simmodem/internal/protocol"
	"github.com/danmuck/simmodem/internal/testutil/testlog"
	"github.com/danmuck/simmodem/internal/transport"
)

func attachModem(t *testing.T, m *Machine, ether *transport.Ether, address string) *modem.Modem {
	t.Helper()
	md, err := modem.New(modem.Config{Name: address, Address: []byte(address)}, ether.Attach(address), m)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	if err := md.Start(); err != nil {
		t.Fatalf("start modem: %v", err)
	}
	if err := m.Attach(address, md); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return md
}

func TestMachineTickQueuesSignals(t *testing.T) {
	testlog.Start(t)
	m := New(Config{Name: "host-a"})
	defer m.Stop()
	ether := transport.NewEther()
	a := attachModem(t, m, ether, "a")
	b := attachModem(t, m, ether, "b")
	b.Open(10)
	a.Open(10)

	a.Broadcast(10, protocol.String("ping"))
	b.Broadcast(10, protocol.String("pong"))

	if n := m.Tick(); n != 2 {
		t.Fatalf("expected 2 delivered, got %d", n)
	}
	signals := m.Signals()
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	// Attach order: a drains first and receives b's packet.
	if string(signals[0].Receiver) != "a" || signals[0].Args[0].Interface() != "pong" {
		t.Fatalf("unexpected first signal: %+v", signals[0])
	}
	if _, ok := m.PullSignal(); ok {
		t.Fatalf("expected drained queue")
	}
}

func TestMachineSignalQueueDropsWhenFull(t *testing.T) {
	testlog.Start(t)
	m := New(Config{SignalCapacity: 2})
	defer m.Stop()
	for i := 0; i < 5; i++ {
		m.PushSignal(modem.Signal{Name: modem.SignalModemMessage, Receiver: []byte("r"), Port: i + 1})
	}
	signals := m.Signals()
	if len(signals) != 2 || signals[0].Port != 1 || signals[1].Port != 2 {
		t.Fatalf("expected oldest two signals kept, got %+v", signals)
	}
}

func TestMachineAttachRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	m := New(Config{})
	defer m.Stop()
	ether := transport.NewEther()
	attachModem(t, m, ether, "a")

	md, _ := modem.New(modem.Config{Address: []byte("a2")}, ether.Attach("a2"), m)
	if err := m.Attach("a", md); !errors.Is(err, ErrDuplicateComponent) {
		t.Fatalf("expected ErrDuplicateComponent, got %v", err)
	}
	if err := m.Attach(" ", md); !errors.Is(err, ErrEmptyComponentName) {
		t.Fatalf("expected ErrEmptyComponentName, got %v", err)
	}
	if err := m.Attach("b", nil); !errors.Is(err, ErrNilModem) {
		t.Fatalf("expected ErrNilModem, got %v", err)
	}
	components := m.Components()
	if len(components) != 1 || components[0].Name != "a" || components[0].Type != "modem" {
		t.Fatalf("unexpected components: %+v", components)
	}
}

func TestMachineBusPublishesByReceiver(t *testing.T) {
	testlog.Start(t)
	m := New(Config{})
	defer m.Stop()
	sub := m.Bus().Subscribe("b")
	defer m.Bus().Unsubscribe(sub)

	m.PushSignal(modem.Signal{Receiver: []byte("a"), Port: 1})
	m.PushSignal(modem.Signal{Receiver: []byte("b"), Port: 2})

	select {
	case msg := <-sub:
		sig, ok := msg.(modem.Signal)
		if !ok || sig.Port != 2 {
			t.Fatalf("unexpected bus message: %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bus message")
	}
}

func TestMachineRunStopsModems(t *testing.T) {
	testlog.Start(t)
	m := New(Config{})
	ether := transport.NewEther()
	a := attachModem(t, m, ether, "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return")
	}
	if a.Phase() != modem.PhaseStopped {
		t.Fatalf("expected modem stopped, phase=%s", a.Phase())
	}
	sub := m.Bus().Subscribe("a")
	if _, ok := <-sub; ok {
		t.Fatalf("expected closed subscription after stop")
	}
	m.PushSignal(modem.Signal{Receiver: []byte("a")})
}

func TestPushSignalDoesNotWaitOnStalledSubscriber(t *testing.T) {
	testlog.Start(t)
	m := New(Config{BusCapacity: 1})
	defer m.Stop()
	stalled := m.Bus().Subscribe("machine-b")
	defer m.Bus().Unsubscribe(stalled)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			m.PushSignal(modem.Signal{Name: modem.SignalModemMessage, Receiver: []byte("machine-b"), Port: 1})
			m.PullSignal()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("PushSignal blocked behind a subscriber that never reads (pending=%d)", m.PendingSignals())
	}
	if len(stalled) != 1 {
		t.Fatalf("expected stalled subscriber buffer to hold one signal, got %d", len(stalled))
	}
}

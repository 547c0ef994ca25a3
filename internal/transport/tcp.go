package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/simmodem/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// TCPDriver carries packets over one relay connection.
type TCPDriver struct {
	relayAddr string
	address   []byte
	cfg       session.Config
	queue     *Queue

	writeMu   sync.Mutex
	conn      net.Conn
	seq       atomic.Uint64
	connected atomic.Bool
	closing   atomic.Bool
	done      chan struct{}
	rng       *rand.Rand
}

func NewTCPDriver(relayAddr string, address []byte, cfg session.Config) *TCPDriver {
	addr := make([]byte, len(address))
	copy(addr, address)
	return &TCPDriver{
		relayAddr: relayAddr,
		address:   addr,
		cfg:       cfg.WithDefaults(),
		queue:     NewQueue("tcp:"+string(address), DefaultQueueCapacity),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start dials the relay and announces the modem address.
func (d *TCPDriver) Start() bool {
	return d.StartContext(context.Background())
}

func (d *TCPDriver) StartContext(ctx context.Context) bool {
	if d.connected.Load() {
		return false
	}
	conn, err := d.dial(ctx)
	if err != nil {
		log.Error().Str("relay", d.relayAddr).Err(err).Msg("transport.TCPDriver.Start dial failed")
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(d.cfg.HelloTimeout))
	if err := session.WriteHello(conn, d.address); err != nil {
		_ = conn.Close()
		log.Error().Str("relay", d.relayAddr).Err(err).Msg("transport.TCPDriver.Start hello failed")
		return false
	}
	_ = conn.SetWriteDeadline(time.Time{})

	d.writeMu.Lock()
	d.conn = conn
	d.writeMu.Unlock()
	d.closing.Store(false)
	d.connected.Store(true)
	d.done = make(chan struct{})
	go d.readLoop(conn, d.done)

	log.Info().
		Str("relay", d.relayAddr).
		Str("address", string(d.address)).
		Str("local", conn.LocalAddr().String()).
		Msg("transport.TCPDriver.Start connected")
	return true
}

func (d *TCPDriver) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxDialAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", d.relayAddr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().
			Str("relay", d.relayAddr).
			Int("attempt", attempt).
			Err(err).
			Msg("transport.TCPDriver.dial retry")
		if attempt == d.cfg.MaxDialAttempts {
			break
		}
		if !session.Wait(ctx, session.NextBackoffDelay(d.cfg.Backoff, attempt, d.rng)) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (d *TCPDriver) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer d.connected.Store(false)
	reader := bufio.NewReader(conn)
	for {
		f, err := session.ReadPacket(reader)
		if err != nil {
			if !d.closing.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("relay", d.relayAddr).Err(err).Msg("transport.TCPDriver.readLoop closed")
			}
			return
		}
		if !d.queue.Push(f.Payload) {
			log.Warn().Str("relay", d.relayAddr).Uint64("seq", f.Header.Seq).Msg("transport.TCPDriver.readLoop queue full")
		}
	}
}

// Send writes one packet frame; any write error disconnects the driver.
func (d *TCPDriver) Send(packet []byte) bool {
	if !d.connected.Load() {
		return false
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.conn == nil {
		return false
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	if err := session.WritePacket(d.conn, d.seq.Add(1), packet); err != nil {
		d.connected.Store(false)
		log.Warn().Str("relay", d.relayAddr).Err(err).Msg("transport.TCPDriver.Send write failed")
		return false
	}
	return true
}

func (d *TCPDriver) Pop() ([]byte, bool) {
	return d.queue.Pop()
}

// Stop closes the connection and waits for the reader to exit.
func (d *TCPDriver) Stop() {
	d.closing.Store(true)
	d.writeMu.Lock()
	conn := d.conn
	d.conn = nil
	d.writeMu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.Close()
	if d.done != nil {
		<-d.done
	}
	d.connected.Store(false)
	log.Info().Str("relay", d.relayAddr).Msg("transport.TCPDriver.Stop closed")
}

func (d *TCPDriver) Connected() bool {
	return d.connected.Load()
}

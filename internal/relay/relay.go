// Package relay owns the hub that moves modem packets between machines.
//
// Every peer opens with a hello naming its modem address; each packet frame
// from a peer is forwarded unchanged to all other peers. Filtering by port
// and target stays with the receiving modem.
package relay

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/simmodem/internal/observability"
	"github.com/danmuck/simmodem/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PeerInfo is a snapshot of one connected peer.
type PeerInfo struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
	Received    uint64    `json:"received"`
	Forwarded   uint64    `json:"forwarded"`
}

type peer struct {
	id          string
	address     []byte
	conn        net.Conn
	connectedAt time.Time

	writeMu   sync.Mutex
	seq       uint64
	received  atomic.Uint64
	forwarded atomic.Uint64
}

type Relay struct {
	cfg   session.Config
	mu    sync.RWMutex
	peers map[string]*peer
}

func New(cfg session.Config) *Relay {
	return &Relay{
		cfg:   cfg.WithDefaults(),
		peers: make(map[string]*peer),
	}
}

// ListenAndServe binds addr and serves until ctx is done.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info().Str("listen", ln.Addr().String()).Msg("relay.ListenAndServe listening")
	return r.Serve(ctx, ln)
}

// Serve runs the accept loop on an existing listener.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		r.closeAll()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go r.handleConn(conn)
	}
}

func (r *Relay) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(r.cfg.HelloTimeout))
	address, err := session.ReadHello(reader)
	if err != nil {
		log.Warn().Str("remote", remote).Err(err).Msg("relay.handleConn hello rejected")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	p := &peer{
		id:          uuid.NewString(),
		address:     address,
		conn:        conn,
		connectedAt: time.Now(),
	}
	active := r.add(p)
	log.Info().
		Str("peer", p.id).
		Str("address", string(address)).
		Str("remote", remote).
		Int("active_peers", active).
		Msg("relay.handleConn peer connected")
	defer func() {
		remaining := r.remove(p)
		log.Info().
			Str("peer", p.id).
			Str("address", string(address)).
			Int("active_peers", remaining).
			Msg("relay.handleConn peer disconnected")
	}()

	for {
		f, err := session.ReadPacket(reader)
		if err != nil {
			return
		}
		p.received.Add(1)
		r.forward(p, f.Payload)
	}
}

func (r *Relay) forward(from *peer, packet []byte) {
	r.mu.RLock()
	targets := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p != from {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range targets {
		ok := r.writeTo(p, packet)
		observability.RecordRelayForward(ok)
		if ok {
			from.forwarded.Add(1)
		}
	}
}

// writeTo delivers one packet; a failed peer is closed and its handler exits.
func (r *Relay) writeTo(p *peer, packet []byte) bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.seq++
	_ = p.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := session.WritePacket(p.conn, p.seq, packet); err != nil {
		log.Warn().Str("peer", p.id).Err(err).Msg("relay.forward dropping peer")
		_ = p.conn.Close()
		return false
	}
	return true
}

func (r *Relay) add(p *peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.id] = p
	observability.SetRelayPeers(len(r.peers))
	return len(r.peers)
}

func (r *Relay) remove(p *peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, p.id)
	observability.SetRelayPeers(len(r.peers))
	return len(r.peers)
}

func (r *Relay) closeAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		_ = p.conn.Close()
	}
}

// Peers returns connected peers ordered by connect time.
func (r *Relay) Peers() []PeerInfo {
	r.mu.RLock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, PeerInfo{
			ID:          p.id,
			Address:     string(p.address),
			Remote:      p.conn.RemoteAddr().String(),
			ConnectedAt: p.connectedAt,
			Received:    p.received.Load(),
			Forwarded:   p.forwarded.Load(),
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

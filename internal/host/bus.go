package host

import (
	"sync"

	"github.com/cskr/pubsub"
	"github.com/danmuck/simmodem/internal/modem"
	"github.com/rs/zerolog/log"
)

const defaultBusCapacity = 128

// Subscription receives modem.Signal values published for its topics.
type Subscription chan any

// SignalBus fans accepted signals out to subscribers keyed by receiver address.
type SignalBus struct {
	ps *pubsub.PubSub

	mu     sync.RWMutex
	closed bool
}

func NewSignalBus(capacity int) *SignalBus {
	if capacity <= 0 {
		capacity = defaultBusCapacity
	}
	return &SignalBus{ps: pubsub.New(capacity)}
}

// Publish never waits on subscribers: a subscriber whose buffer is full
// misses the signal. It is a no-op once the bus is closed.
func (b *SignalBus) Publish(sig modem.Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	topic := string(sig.Receiver)
	log.Trace().Str("topic", topic).Int("port", sig.Port).Msg("host.SignalBus publish")
	b.ps.TryPub(sig, topic)
}

// Subscribe returns a channel of signals for each receiver address given.
// On a closed bus the returned channel is already closed.
func (b *SignalBus) Subscribe(addresses ...string) Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	log.Debug().Strs("topics", addresses).Msg("host.SignalBus subscribe")
	return b.ps.Sub(addresses...)
}

// Unsubscribe detaches ch from every topic. The channel is drained until
// the bus closes it so a pending publish cannot wedge the bus.
func (b *SignalBus) Unsubscribe(ch Subscription) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	go func() {
		for range ch {
		}
	}()
	b.ps.Unsub(ch)
	log.Debug().Msg("host.SignalBus unsubscribe")
}

// Close shuts the bus down and closes every subscription.
func (b *SignalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

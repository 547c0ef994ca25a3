package transport

import (
	"sync"
	"sync/atomic"
)

// Ether is an in-process medium: a packet sent by one running endpoint is
// copied into the queue of every other running endpoint.
type Ether struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
}

func NewEther() *Ether {
	return &Ether{}
}

// Attach adds a stopped endpoint to the medium.
func (e *Ether) Attach(name string) *Endpoint {
	ep := &Endpoint{
		ether: e,
		name:  name,
		queue: NewQueue("ether:"+name, DefaultQueueCapacity),
	}
	e.mu.Lock()
	e.endpoints = append(e.endpoints, ep)
	e.mu.Unlock()
	return ep
}

// Detach removes ep; it stops receiving immediately.
func (e *Ether) Detach(ep *Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.endpoints {
		if cur == ep {
			e.endpoints = append(e.endpoints[:i], e.endpoints[i+1:]...)
			return
		}
	}
}

func (e *Ether) broadcast(from *Endpoint, packet []byte) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	delivered := 0
	for _, ep := range e.endpoints {
		if ep == from || !ep.running.Load() {
			continue
		}
		buf := make([]byte, len(packet))
		copy(buf, packet)
		if ep.queue.Push(buf) {
			delivered++
		}
	}
	return delivered
}

// Endpoint is one modem's attachment to an Ether.
type Endpoint struct {
	ether   *Ether
	name    string
	queue   *Queue
	running atomic.Bool
}

func (ep *Endpoint) Name() string {
	return ep.name
}

// Start reports false when the endpoint is already running.
func (ep *Endpoint) Start() bool {
	return ep.running.CompareAndSwap(false, true)
}

func (ep *Endpoint) Stop() {
	ep.running.Store(false)
}

// Send reports false when the endpoint is stopped. Delivery to zero
// listeners is still a successful send.
func (ep *Endpoint) Send(packet []byte) bool {
	if !ep.running.Load() {
		return false
	}
	ep.ether.broadcast(ep, packet)
	return true
}

func (ep *Endpoint) Pop() ([]byte, bool) {
	return ep.queue.Pop()
}

func (ep *Endpoint) Pending() int {
	return ep.queue.Len()
}

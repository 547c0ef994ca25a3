package modem

import "sort"

// PortRegistry is the set of ports one modem listens on.
// It is not safe for concurrent use; Modem serializes access.
type PortRegistry struct {
	open map[uint16]struct{}
}

func NewPortRegistry() *PortRegistry {
	return &PortRegistry{open: make(map[uint16]struct{})}
}

// Open reports whether the port was newly added.
func (r *PortRegistry) Open(port uint16) bool {
	if _, ok := r.open[port]; ok {
		return false
	}
	r.open[port] = struct{}{}
	return true
}

// Close reports whether the port was removed.
func (r *PortRegistry) Close(port uint16) bool {
	if _, ok := r.open[port]; !ok {
		return false
	}
	delete(r.open, port)
	return true
}

func (r *PortRegistry) IsOpen(port uint16) bool {
	_, ok := r.open[port]
	return ok
}

func (r *PortRegistry) Len() int {
	return len(r.open)
}

// List returns the open ports in ascending order.
func (r *PortRegistry) List() []uint16 {
	out := make([]uint16, 0, len(r.open))
	for port := range r.open {
		out = append(out, port)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})
	return out
}

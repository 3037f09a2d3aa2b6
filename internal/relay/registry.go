package relay

import "sync"

// Registry is the live connection set. One instance per Server rather than
// a package-level singleton, so independent servers can coexist in one test
// process.
type Registry struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Remove is idempotent; teardown signals may fire more than once per socket.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// all copies the whole set; used when the server is torn down.
func (r *Registry) all() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Snapshot copies the connections matching room and role, minus exclude, so
// broadcast I/O runs outside the lock and a peer disconnecting mid-fan-out
// cannot mutate the set under the iteration.
func (r *Registry) Snapshot(room string, exclude *Conn, role Role) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		if c == exclude {
			continue
		}
		cRole, cRoom := c.identity()
		if cRole != role || cRoom != room {
			continue
		}
		out = append(out, c)
	}
	return out
}

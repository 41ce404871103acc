package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

var ErrPoolClosed = errors.New("transport: pool closed")

// Pool keeps up to size multiplexed transports to one address. Transports are
// dialed lazily, shared round-robin, and replaced once they close.
type Pool struct {
	mu     sync.Mutex
	addr   string
	slots  []*ClientTransport
	next   atomic.Uint64
	dial   func(addr string) (net.Conn, error)
	closed bool
}

func NewPool(addr string, size int, dial func(addr string) (net.Conn, error)) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		addr:  addr,
		slots: make([]*ClientTransport, size),
		dial:  dial,
	}
}

// Get returns a live transport, dialing one into the chosen slot if needed.
func (p *Pool) Get() (*ClientTransport, error) {
	i := int(p.next.Add(1) % uint64(len(p.slots)))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if t := p.slots[i]; t != nil && !t.Closed() {
		return t, nil
	}

	conn, err := p.dial(p.addr)
	if err != nil {
		return nil, err
	}
	t := NewClientTransport(conn)
	p.slots[i] = t
	return t, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for i, t := range p.slots {
		if t != nil {
			t.Close()
			p.slots[i] = nil
		}
	}
	return nil
}

package bus

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned by Send on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Network connects buses that share one process, e.g. several windows hosted
// by the same runtime. Each Endpoint is a Transport.
type Network struct {
	mu    sync.RWMutex
	peers map[*Endpoint]struct{}
}

// NewNetwork creates an empty in-process network.
func NewNetwork() *Network {
	return &Network{peers: make(map[*Endpoint]struct{})}
}

// Endpoint joins the network and returns the new member's transport.
func (n *Network) Endpoint() *Endpoint {
	e := &Endpoint{net: n}
	n.mu.Lock()
	n.peers[e] = struct{}{}
	n.mu.Unlock()
	return e
}

// Endpoint is one member of a Network.
type Endpoint struct {
	net    *Network
	mu     sync.RWMutex
	recv   func(Message)
	closed bool
}

// Send hands msg to every other member. Receivers only enqueue, so this does
// not block on subscriber work.
func (e *Endpoint) Send(msg Message) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrTransportClosed
	}

	e.net.mu.RLock()
	peers := make([]*Endpoint, 0, len(e.net.peers))
	for p := range e.net.peers {
		if p != e {
			peers = append(peers, p)
		}
	}
	e.net.mu.RUnlock()

	for _, p := range peers {
		p.mu.RLock()
		recv := p.recv
		p.mu.RUnlock()
		if recv != nil {
			recv(msg)
		}
	}
	return nil
}

// SetReceiver installs the inbound callback.
func (e *Endpoint) SetReceiver(fn func(Message)) {
	e.mu.Lock()
	e.recv = fn
	e.mu.Unlock()
}

// Close leaves the network.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.recv = nil
	e.mu.Unlock()

	e.net.mu.Lock()
	delete(e.net.peers, e)
	e.net.mu.Unlock()
	return nil
}

package relay

import (
	"context"
	"sync"

	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/logger"
)

// Switch is a bus.Transport that follows the window from one hub session to
// the next. Join dials the new session and drops the old connection, so a
// window only ever talks to the windows of the project it has open.
type Switch struct {
	addr string
	log  *logger.Logger

	joinMu sync.Mutex // serializes Join

	mu      sync.RWMutex
	client  *Client
	session string
	recv    func(bus.Message)
	closed  bool
}

var _ bus.Transport = (*Switch)(nil)

// NewSwitch creates a switch for the hub at addr. It joins nothing yet;
// Send fails with ErrNotConnected until the first successful Join.
func NewSwitch(addr string) *Switch {
	return &Switch{addr: addr, log: logger.Global().WithPrefix("relay")}
}

// Join moves the window to session. Joining the current session is a no-op.
// When dialing fails the old connection is dropped anyway: it belongs to a
// project the window no longer shows.
func (s *Switch) Join(ctx context.Context, session string) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	current := s.client != nil && s.session == session && !isDone(s.client)
	s.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}
	if current {
		return nil
	}

	c, err := Dial(ctx, Endpoint(s.addr, session))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if c != nil {
			_ = c.Close()
		}
		return ErrNotConnected
	}
	old := s.client
	s.client, s.session = nil, ""
	if err == nil {
		c.SetReceiver(s.deliver)
		s.client, s.session = c, session
	}
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if err != nil {
		return err
	}
	s.log.Debug("joined relay session %s", session)
	return nil
}

// Session is the session currently joined, "" when disconnected.
func (s *Switch) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil || isDone(s.client) {
		return ""
	}
	return s.session
}

func (s *Switch) Send(msg bus.Message) error {
	s.mu.RLock()
	c := s.client
	s.mu.RUnlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(msg)
}

func (s *Switch) SetReceiver(fn func(bus.Message)) {
	s.mu.Lock()
	s.recv = fn
	s.mu.Unlock()
}

func (s *Switch) Close() error {
	s.mu.Lock()
	s.closed = true
	c := s.client
	s.client, s.session = nil, ""
	s.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}

func (s *Switch) deliver(msg bus.Message) {
	s.mu.RLock()
	fn := s.recv
	s.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func isDone(c *Client) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/logger"
)

// ErrNotConnected is returned by Send once the connection to the hub is gone.
var ErrNotConnected = errors.New("relay not connected")

// ErrSendBufferFull is returned by Send when the outbound buffer is full.
var ErrSendBufferFull = errors.New("relay send buffer full")

// Client is a window's connection to the hub. It implements bus.Transport.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	mu     sync.RWMutex
	recv   func(bus.Message)
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Endpoint builds the ws URL for a hub mounted at /ws on addr.
func Endpoint(addr, session string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	q := u.Query()
	q.Set("session", session)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial connects to the hub at rawURL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", rawURL, err)
	}

	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  logger.Global().WithPrefix("relay"),
		done: make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Send queues msg for the hub without blocking.
func (c *Client) Send(msg bus.Message) error {
	data, err := bus.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SetReceiver installs the inbound callback.
func (c *Client) SetReceiver(fn func(bus.Message)) {
	c.mu.Lock()
	c.recv = fn
	c.mu.Unlock()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("relay read error: %v", err)
			}
			return
		}

		msg, err := bus.Decode(data)
		if err != nil {
			c.log.Warn("ignoring relay message: %v", err)
			continue
		}

		c.mu.RLock()
		recv := c.recv
		c.mu.RUnlock()
		if recv != nil {
			recv(msg)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Debug("relay write failed: %v", err)
			c.shutdown()
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	sendBuffer = 64
)

type envelope struct {
	from *peer
	data []byte
}

// Hub maintains the set of connected windows and fans messages out per session
type Hub struct {
	clients    map[*peer]bool
	broadcast  chan envelope
	register   chan *peer
	unregister chan *peer
	mu         sync.RWMutex
	quit       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*peer]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		quit:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // windows are served from the same local origin
			},
		},
		log: logger.Global().WithPrefix("relay"),
	}
}

// Run starts the hub loop. It returns after Stop.
func (h *Hub) Run() {
	h.log.Info("relay hub started")
	defer h.log.Info("relay hub stopped")

	for {
		select {
		case p := <-h.register:
			h.mu.Lock()
			h.clients[p] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("window %s joined session %s (total: %d)", p.id, p.session, n)

		case p := <-h.unregister:
			h.drop(p)

		case env := <-h.broadcast:
			h.fanOut(env)

		case <-h.quit:
			h.mu.Lock()
			for p := range h.clients {
				delete(h.clients, p)
				close(p.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop stops the hub and disconnects every window
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// ClientCount returns the number of connected windows
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and attaches the window to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		http.Error(w, "session query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade relay connection: %v", err)
		return
	}

	p := &peer{
		id:      uuid.NewString(),
		session: session,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- p:
	case <-h.quit:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

func (h *Hub) submit(env envelope) {
	select {
	case h.broadcast <- env:
	case <-h.quit:
	default:
		h.log.Warn("relay broadcast channel full, dropping message from %s", env.from.id)
	}
}

func (h *Hub) leave(p *peer) {
	select {
	case h.unregister <- p:
	case <-h.quit:
	}
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[p]; ok {
		delete(h.clients, p)
		close(p.send)
		h.log.Debug("window %s left session %s", p.id, p.session)
	}
}

func (h *Hub) fanOut(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.clients {
		if p == env.from || p.session != env.from.session {
			continue
		}
		select {
		case p.send <- env.data:
		default:
			// slow window, disconnect it
			delete(h.clients, p)
			close(p.send)
			h.log.Warn("window %s too slow, disconnected", p.id)
		}
	}
}

// peer is one connected window as seen by the hub
type peer struct {
	id      string
	session string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
}

func (p *peer) readPump() {
	defer func() {
		p.hub.leave(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.log.Warn("relay read error from %s: %v", p.id, err)
			}
			return
		}

		if _, err := bus.Decode(data); err != nil {
			p.hub.log.Warn("ignoring message from %s: %v", p.id, err)
			continue
		}
		p.hub.submit(envelope{from: p, data: data})
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

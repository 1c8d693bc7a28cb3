package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// WebSocket notifications: hub + per-client pumps
// ============================================================================
//
// Messages are JSON text frames: {id, type, ts, data}.
//   - state_init      sent once on connect, data is every last-known session
//   - volume_changed  data {session, volume, muted}
//   - mixer_toggle    data {}
//
// The hub never blocks the dispatcher: broadcasts go through a bounded queue
// and a client whose send buffer is full is disconnected.
//
// ============================================================================

type wsEnvelope struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data"`
}

func marshalEnvelope(typ string, data any) ([]byte, error) {
	return json.Marshal(wsEnvelope{
		ID:   uuid.NewString(),
		Type: typ,
		Ts:   time.Now().UTC(),
		Data: data,
	})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	last    lastStates
	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int
	// BroadcastBuf is the hub inbound queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger.With("component", "notify"),
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// SessionChanged records st and broadcasts volume_changed.
func (h *Hub) SessionChanged(st SessionState) {
	h.last.record(st)
	msg, err := marshalEnvelope("volume_changed", st)
	if err != nil {
		h.logger.Warn("marshal notification failed", "err", err)
		return
	}
	h.BroadcastBytes(msg)
}

// MixerToggled broadcasts mixer_toggle.
func (h *Hub) MixerToggled() {
	msg, err := marshalEnvelope("mixer_toggle", struct{}{})
	if err != nil {
		h.logger.Warn("marshal notification failed", "err", err)
		return
	}
	h.BroadcastBytes(msg)
}

func (h *Hub) LastStates() []SessionState {
	return h.last.snapshot()
}

// Run processes hub events until ctx is canceled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Debug("hub starting")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "client", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		h.logger.Info("client disconnected", "client", c.id, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a serialized frame. It drops the frame when the
// hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	id  string
	hub *Hub

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		id:         uuid.NewString(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		logger:     hub.logger,
	}
}

// closeSend signals writePump to exit. Safe to call more than once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug(pump+" exiting (close)", "client", c.id, "code", code, "reason", text)
		return
	}
	c.logger.Debug(pump+" exiting", "client", c.id, "err", err)
}

// writePump writes queued frames and pings until send is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames to service control messages and detect
// disconnects, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			c.hub.unregister <- c
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

var upgrader = websocket.Upgrader{
	// The listener is loopback by default; any local page may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request, sends state_init and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(h, conn, r.RemoteAddr)

	// Queue state_init before registering so it is the first frame.
	states := h.LastStates()
	if msg, err := marshalEnvelope("state_init", states); err == nil {
		client.send <- msg
	}
	h.register <- client

	// Pumps outlive the request; net/http cancels r.Context() when the
	// handler returns.
	go client.writePump()
	go client.readPump()
}

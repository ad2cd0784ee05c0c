package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/logging"
)

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// sendQueue is how many frames a slow client may lag behind before
// frames are dropped for it.
const sendQueue = 256

// Frame is one JSON message on the event stream.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Time    string `json:"time,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Request is a frame sent by a client.
type Request struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// Hub fans events out to the connected stream clients.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once

	mu       sync.RWMutex
	channels map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The listener is bound to the appliance; browsers on the LAN reach it
	// through the GUI origin, which differs from the API port.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*streamClient]struct{})}
}

func newStreamClient(h *Hub, conn *websocket.Conn, channels ...string) *streamClient {
	c := &streamClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendQueue),
		quit:     make(chan struct{}),
		channels: make(map[string]bool),
	}
	c.subscribe(channels)
	return c
}

// Run blocks until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("stream client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event frame for every client subscribed to channel.
// A client whose queue is full misses the frame.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Payload: payload,
	})
	if err != nil {
		h.logger.Error("encoding event frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(channel) {
			c.queue(data)
		}
	}
}

// handleWebSocket upgrades to the event stream. ?channels=a,b subscribes
// on connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var channels []string
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}

	c := newStreamClient(s.hub, conn, channels...)
	s.hub.add(c)

	ping := time.Duration(s.wsCfg.PingInterval) * time.Second
	pong := time.Duration(s.wsCfg.PongTimeout) * time.Second
	go c.writeLoop(ping, pong)
	go c.readLoop(int64(s.wsCfg.MaxMessageSize), ping+pong)
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.quit) })
}

func (c *streamClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *streamClient) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.channels[ch] = true
	}
	c.mu.Unlock()
}

func (c *streamClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()
}

func (c *streamClient) queue(data []byte) {
	select {
	case <-c.quit:
	case c.send <- data:
	default:
	}
}

func (c *streamClient) reply(f Frame) {
	f.Time = time.Now().UTC().Format(time.RFC3339)
	if data, err := json.Marshal(f); err == nil {
		c.queue(data)
	}
}

func (c *streamClient) readLoop(limit int64, idle time.Duration) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	c.conn.SetReadLimit(limit)
	c.conn.SetPongHandler(extend)
	extend("") //nolint:errcheck // read fails if the deadline is broken

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend("") //nolint:errcheck // read fails if the deadline is broken
		c.handle(data)
	}
}

func (c *streamClient) writeLoop(ping, writeWait time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}
	for {
		var err error
		select {
		case <-c.quit:
			write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
			return
		case data := <-c.send:
			err = write(websocket.TextMessage, data)
		case <-ticker.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *streamClient) handle(data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(Frame{Type: FrameError, Payload: map[string]string{"message": "invalid JSON"}})
		return
	}

	switch req.Type {
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: req.ID})
	case FrameSubscribe:
		c.subscribe(req.Channels)
		c.reply(Frame{Type: FrameAck, ID: req.ID, Payload: map[string][]string{"subscribed": req.Channels}})
	case FrameUnsubscribe:
		c.unsubscribe(req.Channels)
		c.reply(Frame{Type: FrameAck, ID: req.ID, Payload: map[string][]string{"unsubscribed": req.Channels}})
	default:
		c.reply(Frame{Type: FrameError, ID: req.ID, Payload: map[string]string{"message": "unknown frame type " + req.Type}})
	}
}

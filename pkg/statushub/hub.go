// Package statushub is the agent's process-wide event bus: a
// WebSocket hub that forwards typed worker events (upload progress,
// proxy activity, errors) to every connected client, and decodes a
// small set of client-originated requests back into agent actions.
//
// Grounded on the teacher's pkg/cluster/ws hub (register/unregister
// channels draining into a single broadcast loop, gorilla/websocket
// upgrader, periodic dead-client reap), generalized from cluster
// membership events to upload/proxy/cache status events.
package statushub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pennsieve/agent/internal/logger"
)

// reapInterval is how often disconnected clients are pruned from the
// hub's client set.
const reapInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UploadRequester is the capability the hub needs to act on an
// incoming queue_upload client request, satisfied by the upload
// engine.
type UploadRequester interface {
	QueueUpload(ctx context.Context, req QueueUploadRequest) error
}

// client wraps one connected WebSocket with its own outbound queue so
// a slow reader never blocks the broadcast loop or its peers.
type client struct {
	addr string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub is the StatusHub. It satisfies pkg/registry.EventSender.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	uploads  UploadRequester
}

// New constructs a Hub. uploads may be nil if the uploader is
// disabled; queue_upload requests are then rejected with an error
// event.
func New(uploads UploadRequester) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		uploads: uploads,
	}
}

// ConnectedAddrs returns the remote addresses of every currently
// connected client, for diagnostics.
func (h *Hub) ConnectedAddrs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	addrs := make([]string, 0, len(h.clients))
	for addr := range h.clients {
		addrs = append(addrs, addr)
	}
	return addrs
}

// ServeHTTP upgrades the connection and runs it until a read from the
// client fails (the client disconnects or the connection breaks).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("status hub upgrade failed", "error", err)
		return
	}

	c := &client{addr: r.RemoteAddr, conn: conn, send: make(chan []byte, 32), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c.addr] = c
	h.mu.Unlock()
	logger.Info("status client connected", "addr", c.addr)

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.disconnect(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleClientMessage(ctx, c, data)
	}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	delete(h.clients, c.addr)
	h.mu.Unlock()
	close(c.done)
	logger.Info("status client disconnected", "addr", c.addr)
}

// handleClientMessage decodes the discriminated client request union.
// Only "queue_upload" is defined; anything else produces an error
// frame back to the sender.
func (h *Hub) handleClientMessage(ctx context.Context, c *client, data []byte) {
	var envelope struct {
		Message string          `json:"message"`
		Body    json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.sendTo(c, NewErrorEvent("malformed client message"))
		return
	}

	switch envelope.Message {
	case "queue_upload":
		var req QueueUploadRequest
		if err := json.Unmarshal(envelope.Body, &req); err != nil {
			h.sendTo(c, NewErrorEvent("malformed queue_upload body"))
			return
		}
		if h.uploads == nil {
			h.sendTo(c, NewUploadErrorEvent("", "uploader is disabled"))
			return
		}
		if err := h.uploads.QueueUpload(ctx, req); err != nil {
			h.sendTo(c, NewUploadErrorEvent("", err.Error()))
		}
	default:
		h.sendTo(c, NewErrorEvent("unknown message type: "+envelope.Message))
	}
}

func (h *Hub) sendTo(c *client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("failed to marshal status event", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow/dead client; drop rather than block the caller.
	}
}

// SendEvent broadcasts event to every connected client. It satisfies
// pkg/registry.EventSender; a disconnected or slow client is dropped
// silently (best-effort delivery per spec.md §5).
func (h *Hub) SendEvent(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("failed to marshal status event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Reap runs until ctx is done, periodically pruning clients whose
// connection has already failed (belt-and-suspenders alongside the
// read/write loops' own disconnect handling).
func (h *Hub) Reap(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
			h.disconnect(c)
		}
	}
}

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// DefaultPort is the port plugins are told to connect to.
const DefaultPort = 57116

// Registration event names.
const (
	EventRegisterPlugin    = "registerPlugin"
	EventRegisterInspector = "registerPropertyInspector"
)

// PeerKind distinguishes plugin connections from property inspectors.
type PeerKind string

const (
	PeerPlugin    PeerKind = "plugin"
	PeerInspector PeerKind = "inspector"
)

// Message is an inbound message from a registered peer.
type Message struct {
	Kind PeerKind
	// ID is the plugin UUID or the inspector's action context.
	ID   string
	Data []byte
}

// Handler receives inbound messages. It is called from the connection's
// read goroutine.
type Handler func(ctx context.Context, m Message)

// registerEvent is the first message on every connection.
type registerEvent struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

type conn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

type peers struct {
	conns  map[string]*conn
	queues map[string][][]byte
}

func newPeers() peers {
	return peers{conns: make(map[string]*conn), queues: make(map[string][][]byte)}
}

// Hub routes messages between deckd and connected plugins.
type Hub struct {
	mu         sync.Mutex
	plugins    peers
	inspectors peers
	handler    Handler
	// WriteTimeout bounds a single write to a peer.
	WriteTimeout time.Duration
}

// New returns a hub that passes inbound messages to h. h may be nil.
func New(h Handler) *Hub {
	return &Hub{
		plugins:      newPeers(),
		inspectors:   newPeers(),
		handler:      h,
		WriteTimeout: 5 * time.Second,
	}
}

// SetHandler replaces the inbound handler.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) peers(kind PeerKind) *peers {
	if kind == PeerInspector {
		return &h.inspectors
	}
	return &h.plugins
}

// Send delivers v, encoded as JSON, to a plugin. When the plugin is not
// connected the message is queued.
func (h *Hub) Send(ctx context.Context, plugin string, v any) error {
	return h.send(ctx, PeerPlugin, plugin, v)
}

// SendToInspector delivers v to the property inspector of an action context.
func (h *Hub) SendToInspector(ctx context.Context, actionContext string, v any) error {
	return h.send(ctx, PeerInspector, actionContext, v)
}

func (h *Hub) send(ctx context.Context, kind PeerKind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s %s: %w", kind, id, err)
	}

	h.mu.Lock()
	p := h.peers(kind)
	c, ok := p.conns[id]
	if !ok {
		p.queues[id] = append(p.queues[id], data)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, h.WriteTimeout)
	defer cancel()
	if err := c.write(wctx, data); err != nil {
		h.drop(kind, id, c)
		return fmt.Errorf("send to %s %s: %w", kind, id, err)
	}
	return nil
}

// Queued returns the number of messages waiting for a plugin.
func (h *Hub) Queued(plugin string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.plugins.queues[plugin])
}

// Connected reports whether a plugin has a live connection.
func (h *Hub) Connected(plugin string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.plugins.conns[plugin]
	return ok
}

// register installs c and flushes the queue for id. Sends that arrive while
// flushing wait on the connection's write lock, so order is kept.
func (h *Hub) register(ctx context.Context, kind PeerKind, id string, c *conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	h.mu.Lock()
	p := h.peers(kind)
	old := p.conns[id]
	p.conns[id] = c
	queued := p.queues[id]
	delete(p.queues, id)
	h.mu.Unlock()

	if old != nil {
		go old.ws.Close(websocket.StatusGoingAway, "replaced by a new connection")
	}

	for i, data := range queued {
		wctx, cancel := context.WithTimeout(ctx, h.WriteTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			// Keep what was not delivered for the next connection.
			h.mu.Lock()
			if p.conns[id] == c {
				delete(p.conns, id)
			}
			p.queues[id] = append(queued[i:len(queued):len(queued)], p.queues[id]...)
			h.mu.Unlock()
			return fmt.Errorf("flush queue to %s %s: %w", kind, id, err)
		}
	}
	return nil
}

func (h *Hub) drop(kind PeerKind, id string, c *conn) {
	h.mu.Lock()
	p := h.peers(kind)
	if p.conns[id] == c {
		delete(p.conns, id)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Plugins running in webviews connect from arbitrary origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("failed to complete WebSocket handshake", "error", err)
		return
	}
	c := &conn{id: uuid.Must(uuid.NewV7()).String(), ws: ws}
	h.serve(r.Context(), c)
}

func (h *Hub) serve(ctx context.Context, c *conn) {
	defer c.ws.Close(websocket.StatusNormalClosure, "")

	_, data, err := c.ws.Read(ctx)
	if err != nil {
		slog.Debug("connection closed before registering", "conn", c.id, "error", err)
		return
	}

	var reg registerEvent
	if err := json.Unmarshal(data, &reg); err != nil || reg.UUID == "" ||
		(reg.Event != EventRegisterPlugin && reg.Event != EventRegisterInspector) {
		// Not a registration: treat it as a one-off inbound message.
		h.dispatch(ctx, Message{Kind: PeerPlugin, Data: data})
		c.ws.Close(websocket.StatusPolicyViolation, "expected register event")
		return
	}

	kind := PeerPlugin
	if reg.Event == EventRegisterInspector {
		kind = PeerInspector
	}
	if err := h.register(ctx, kind, reg.UUID, c); err != nil {
		slog.Warn("failed to register", "kind", kind, "id", reg.UUID, "conn", c.id, "error", err)
		return
	}
	slog.Info("peer registered", "kind", kind, "id", reg.UUID, "conn", c.id)
	defer func() {
		h.drop(kind, reg.UUID, c)
		slog.Info("peer disconnected", "kind", kind, "id", reg.UUID, "conn", c.id)
	}()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("read failed", "kind", kind, "id", reg.UUID, "error", err)
			}
			return
		}
		h.dispatch(ctx, Message{Kind: kind, ID: reg.UUID, Data: data})
	}
}

func (h *Hub) dispatch(ctx context.Context, m Message) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler != nil {
		handler(ctx, m)
	}
}

// ListenAndServe serves the hub on addr until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind plugin WebSocket server: %w", err)
	}
	return h.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown plugin WebSocket server: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

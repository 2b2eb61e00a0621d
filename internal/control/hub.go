package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// event is one frame on the /ws stream. Type is always set; the remaining
// fields depend on it.
type event struct {
	Type string `json:"type"`

	State      string       `json:"state,omitempty"`
	Text       string       `json:"text,omitempty"`
	Action     string       `json:"action,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Summary    string       `json:"summary,omitempty"`
	Latency    *latencyJSON `json:"latency,omitempty"`
}

// clientBufferSize bounds each client's outgoing queue. A slow client drops
// events rather than stalling the pipeline's observer callbacks.
const clientBufferSize = 64

type client struct {
	id   string
	send chan []byte
	done chan struct{}
}

// hub fans events out to connected websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[string]*client)}
}

func (h *hub) add() *client {
	c := &client{
		id:   uuid.NewString(),
		send: make(chan []byte, clientBufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.done)
		return c
	}
	h.clients[c.id] = c
	return c
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.done)
	}
}

// broadcast queues ev on every client, dropping it for clients whose buffer
// is full.
func (h *hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("control: marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("control: dropping event for slow client", "client", c.id, "type", ev.Type)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
	}
}

// handleWS upgrades the connection and streams hub events until the client
// disconnects or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("control: websocket accept", "error", err)
		return
	}

	c := s.hub.add()
	defer s.hub.remove(c)
	slog.Info("control: websocket client connected", "client", c.id)
	defer slog.Info("control: websocket client disconnected", "client", c.id)

	// Snapshot so a client joining mid-session knows where the machine is.
	hello, err := json.Marshal(event{Type: "state", State: string(s.pipeline.State())})
	if err == nil {
		writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, hello)
		cancel()
	}
	if err != nil {
		conn.Close(websocket.StatusInternalError, "hello failed")
		return
	}

	// Reads are drained to process control frames and detect disconnect.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case <-readErr:
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

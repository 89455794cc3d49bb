package control

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/recorder"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Hub tracks connected clients and fans pipeline events out to them. It
// implements recorder.Observer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info("control client connected", "remote", c.remote, "clients", n)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info("control client disconnected", "remote", c.remote, "clients", n)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every client. Slow clients miss events rather
// than stall the pipeline.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("failed to marshal event", logging.KeyError, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.queue(data) {
			log.Warn("control client send buffer full, event dropped", "remote", c.remote, "event", ev.Type)
		}
	}
}

// closeAll disconnects every client with a normal close frame.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) OnTime(elapsed string) {
	h.Broadcast(Event{Type: EventTime, Elapsed: elapsed})
}

func (h *Hub) OnStatus(status recorder.Status) {
	h.Broadcast(Event{Type: EventStatus, Status: string(status)})
}

func (h *Hub) OnFinished(path string) {
	h.Broadcast(Event{Type: EventFinished, Path: path})
}

func (h *Hub) OnError(err error) {
	h.Broadcast(Event{Type: EventError, Error: err.Error()})
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *client) queue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) reply(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("failed to marshal reply", logging.KeyError, err)
		return
	}
	c.queue(data)
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes commands until the connection fails. Each command runs
// on its own goroutine so a blocking stop never stalls reads.
func (c *client) readPump(handle func(*client, Command)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("control read error", "remote", c.remote, logging.KeyError, err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(Event{Type: EventResult, Error: "malformed command: " + err.Error()})
			continue
		}
		go handle(c, cmd)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("control write error", "remote", c.remote, logging.KeyError, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

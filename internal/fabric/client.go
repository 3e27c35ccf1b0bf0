// SPDX-License-Identifier: MIT

package fabric

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

const (
	// maxBuffered is the per-client backlog ceiling. A client this far
	// behind is disconnected rather than allowed to consume memory.
	maxBuffered = 1 << 20 // 1 MiB

	sendQueue = 256

	heartbeatInterval = time.Second
	pongWait          = 3 * heartbeatInterval
	writeWait         = 5 * time.Second

	maxInboundBytes = 4 << 10
)

// client wraps one websocket connection with a bounded outbound queue and
// a heartbeat. The writer pump is the only goroutine touching the
// connection for writes.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	pending atomic.Int64
	once    sync.Once
	done    chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
}

// enqueue queues msg for delivery. A client over its byte budget or with a
// full queue is shut down and the message reported undelivered.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	if c.pending.Load()+int64(len(msg)) > maxBuffered {
		metrics.FabricSlowDropsTotal.Inc()
		c.shutdown()
		return false
	}
	select {
	case c.send <- msg:
		c.pending.Add(int64(len(msg)))
		return true
	default:
		metrics.FabricSlowDropsTotal.Inc()
		c.shutdown()
		return false
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump drains the send queue and pings on the heartbeat interval.
// Runs until shutdown or a write error.
func (c *client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.pending.Add(-int64(len(msg)))
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames to keep the connection's pong handler
// running. onMessage, when set, receives each text frame.
func (c *client) readPump(onMessage func([]byte)) {
	defer c.shutdown()
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// ServeDashboard attaches an upgraded dashboard connection to the hub and
// blocks until it disconnects. The initial filter usually comes from query
// parameters; subscribe frames sent over the socket replace it.
func (h *Hub) ServeDashboard(conn *websocket.Conn, f Filter) {
	c := newClient(conn)
	h.addDashboard(c, f)
	defer h.removeDashboard(c)

	go c.writePump()
	c.readPump(func(msg []byte) {
		var sf subscribeFrame
		if err := json.Unmarshal(msg, &sf); err != nil {
			return
		}
		switch sf.Type {
		case inboundSubscribe:
			h.setFilter(c, sf.filter())
		case inboundPing:
			if pong, err := json.Marshal(Frame{Type: FramePong}); err == nil {
				c.enqueue(pong)
			}
		}
	})
}

// Ack is the page's receipt for a delivered intervention.
type Ack struct {
	CommandID string `json:"command_id"`
	Displayed bool   `json:"displayed"`
}

// ServeSession attaches an upgraded per-session connection and blocks
// until it disconnects. A newer connection for the same session replaces
// the old one.
func (h *Hub) ServeSession(sessionID string, conn *websocket.Conn) {
	c := newClient(conn)
	h.addSession(sessionID, c)
	defer h.removeSession(sessionID, c)

	go c.writePump()
	c.readPump(func(msg []byte) {
		var ack Ack
		if err := json.Unmarshal(msg, &ack); err != nil || ack.CommandID == "" {
			return
		}
		result := "acked"
		if !ack.Displayed {
			result = "nacked"
		}
		metrics.FabricDeliveriesTotal.WithLabelValues(result).Inc()
		h.logger.Debug().
			Str(log.FieldSessionID, sessionID).
			Str("command_id", ack.CommandID).
			Bool("displayed", ack.Displayed).
			Msg("intervention acknowledged")
	})
}

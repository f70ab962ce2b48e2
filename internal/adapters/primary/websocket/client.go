package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feastly/realtime-gateway/internal/core/domain"
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is one live connection record: the socket, its role-scoped
// identity, and the liveness clock the supervisor reads.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound, pre-serialized frames.
	send chan []byte

	role domain.Role

	// Exactly one of these is populated, matching role.
	customer domain.CustomerIdentity
	admin    domain.AdminIdentity
	driver   domain.DriverIdentity
	device   domain.DeviceIdentity
	support  domain.SupportIdentity

	// lastLiveness holds the unix-nano time of the most recent liveness
	// acknowledgement. Only a transport pong (or, for devices, an
	// application-level ping frame) advances it.
	lastLiveness atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, role domain.Role, logger *slog.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.sendBuffer),
		role:   role,
		done:   make(chan struct{}),
		logger: logger.With("role", string(role)),
	}
	c.touch()
	return c
}

// touch advances the liveness clock.
func (c *Client) touch() {
	c.lastLiveness.Store(time.Now().UnixNano())
}

func (c *Client) livenessAge(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastLiveness.Load()))
}

// enqueue hands a pre-serialized frame to the write pump. It reports false
// when the connection is closed or its buffer is full; it never blocks.
func (c *Client) enqueue(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("send buffer full, dropping frame")
		return false
	}
}

// closeWith writes a close frame and tears the socket down, exactly once.
// Frames still queued are discarded.
func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		deadline := time.Now().Add(c.hub.writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("failed to send close frame", "error", err)
		}
		_ = c.conn.Close()
		close(c.done)
	})
}

// start launches the I/O pumps. The connected frame must already be queued
// so it is the first frame the peer sees.
func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps inbound frames from the socket to the per-role handler.
// On exit the record is removed from its registry; removal is keyed by
// record identity, so a late close from a superseded connection cannot
// delete its successor.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.closeWith(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleInbound(message)
	}
}

// writePump pumps queued frames to the socket.
func (c *Client) writePump() {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				c.closeWith(websocket.CloseGoingAway, "write failure")
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("failed to write frame", "error", err)
				c.closeWith(websocket.CloseGoingAway, "write failure")
				return
			}

		case <-c.done:
			return
		}
	}
}

// probe sends a transport-level ping. The peer's pong is what advances the
// liveness clock.
func (c *Client) probe(now time.Time) {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, now.Add(c.hub.writeWait)); err != nil {
		// A failing probe leaves lastLiveness stale; the next sweep evicts.
		c.logger.Debug("failed to send liveness probe", "error", err)
	}
}

// --- Incoming Message Handling ---

// handleInbound dispatches a raw inbound frame by role. Only device and
// support connections speak to the server; everything else is ignored.
func (c *Client) handleInbound(message []byte) {
	switch c.role {
	case domain.RoleDevice:
		c.handleDeviceFrame(message)
	case domain.RoleSupport:
		c.handleSupportFrame(message)
	default:
		c.logger.Debug("ignoring inbound frame", "size", len(message))
	}
}

// handleDeviceFrame understands only the application-level ping. Devices
// are constrained embedded clients; a malformed frame is logged and the
// connection preserved.
func (c *Client) handleDeviceFrame(message []byte) {
	var in domain.InboundFrame
	if err := json.Unmarshal(message, &in); err != nil {
		c.logger.Warn("malformed device frame", "device_id", c.device.DeviceID, "error", err)
		return
	}

	if in.Event != domain.EventPing {
		c.logger.Debug("ignoring device frame", "device_id", c.device.DeviceID, "event", in.Event)
		return
	}

	c.touch()

	payload, err := json.Marshal(domain.Frame{
		Event:     domain.EventPong,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error("failed to marshal pong", "error", err)
		return
	}
	c.enqueue(payload)
}

// handleSupportFrame relays message/typing frames to the rest of the
// ticket's participants. The sender role, sender ID and timestamp are
// assigned server-side; whatever the client claimed is discarded.
func (c *Client) handleSupportFrame(message []byte) {
	var in domain.InboundFrame
	if err := json.Unmarshal(message, &in); err != nil {
		c.logger.Warn("malformed chat frame", "ticket_id", c.support.TicketID, "error", err)
		return
	}

	switch in.Event {
	case domain.EventChatMessage, domain.EventChatTyping:
		var p domain.ChatPayload
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &p); err != nil {
				c.logger.Warn("malformed chat payload",
					"ticket_id", c.support.TicketID,
					"event", in.Event,
					"error", err,
				)
				return
			}
		}

		out := domain.Frame{
			Event: in.Event,
			Data: domain.ChatEvent{
				TicketID:   c.support.TicketID,
				SenderID:   c.support.ParticipantID,
				SenderRole: c.support.ParticipantType,
				Message:    p.Message,
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			},
		}
		c.hub.BroadcastToTicket(c.support.TicketID, out, c.support.ParticipantID)

	default:
		c.logger.Debug("ignoring chat frame", "ticket_id", c.support.TicketID, "event", in.Event)
	}
}

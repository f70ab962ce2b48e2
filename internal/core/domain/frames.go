package domain

import "encoding/json"

// Frame is the wire envelope for every message exchanged with a peer,
// in both directions: {"event": "...", "data": {...}}.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	// Timestamp is only set on pong replies to device pings.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// InboundFrame is a frame as received from a peer. Data stays raw until the
// per-channel handler decides whether it cares.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Lifecycle and keep-alive events.
const (
	EventConnected = "connected"
	EventPing      = "ping"
	EventPong      = "pong"
)

// Device stream events.
const (
	EventNewOrder = "new_order"
)

// Customer tracking events.
const (
	EventStatusUpdate   = "status_update"
	EventDriverLocation = "driver_location"
	EventPrepTimeUpdate = "prep_time_update"
)

// Admin dashboard events. new_order is shared with the device stream.
const (
	EventOrderUpdate    = "order_update"
	EventOrderCancelled = "order_cancelled"
	EventDriverAssigned = "driver_assigned"
)

// Driver channel events. order_cancelled is shared with the admin dashboard.
const (
	EventOrderAssigned   = "order_assigned"
	EventOrderReassigned = "order_reassigned"
)

// Support chat events.
const (
	EventChatMessage = "message"
	EventChatTyping  = "typing"
	EventChatRead    = "read"
)

// ChatPayload is the inbound body of a support message/typing frame. Any
// client-supplied sender or timestamp fields are ignored; the server stamps
// its own before fan-out.
type ChatPayload struct {
	Message string `json:"message,omitempty"`
}

// ChatEvent is the outbound body of a support chat frame after the server
// has tagged it with the authenticated sender and its own clock.
type ChatEvent struct {
	TicketID   string          `json:"ticketId"`
	SenderID   string          `json:"senderId"`
	SenderRole ParticipantType `json:"senderRole"`
	Message    string          `json:"message,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

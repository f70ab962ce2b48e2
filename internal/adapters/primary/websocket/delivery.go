package websocket

import (
	"encoding/json"

	"github.com/feastly/realtime-gateway/internal/core/domain"
)

// Delivery operations: the sole path from business logic to connected
// peers. Every operation serializes the frame exactly once, so all matched
// recipients receive byte-identical bytes; per-recipient transformation is
// not possible by construction. Delivery is best-effort: a missing or
// unreachable target is a result value, never an error.

func (h *Hub) marshal(frame domain.Frame) ([]byte, bool) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", "event", frame.Event, "error", err)
		return nil, false
	}
	return payload, true
}

// UnicastCustomer delivers to the single connection tracking the order for
// the user, if live.
func (h *Hub) UnicastCustomer(userID, orderID string, frame domain.Frame) bool {
	payload, ok := h.marshal(frame)
	if !ok {
		return false
	}

	h.mu.Lock()
	c := h.customers[domain.CustomerIdentity{UserID: userID, OrderID: orderID}]
	h.mu.Unlock()

	return c != nil && c.enqueue(payload)
}

// UnicastAdmin delivers to one admin dashboard connection, if live.
func (h *Hub) UnicastAdmin(adminID string, frame domain.Frame) bool {
	payload, ok := h.marshal(frame)
	if !ok {
		return false
	}

	h.mu.Lock()
	c := h.admins[adminID]
	h.mu.Unlock()

	return c != nil && c.enqueue(payload)
}

// UnicastDriver delivers to one driver connection, if live.
func (h *Hub) UnicastDriver(driverID string, frame domain.Frame) bool {
	payload, ok := h.marshal(frame)
	if !ok {
		return false
	}

	h.mu.Lock()
	c := h.drivers[driverID]
	h.mu.Unlock()

	return c != nil && c.enqueue(payload)
}

// UnicastDevice delivers to one device stream connection, if live.
func (h *Hub) UnicastDevice(deviceID string, frame domain.Frame) bool {
	payload, ok := h.marshal(frame)
	if !ok {
		return false
	}

	h.mu.Lock()
	c := h.devices[deviceID]
	h.mu.Unlock()

	return c != nil && c.enqueue(payload)
}

// BroadcastAdmins fans out to every admin dashboard connection and returns
// the number reached.
func (h *Hub) BroadcastAdmins(frame domain.Frame) int {
	payload, ok := h.marshal(frame)
	if !ok {
		return 0
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.admins))
	for _, c := range h.admins {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	return deliver(clients, payload)
}

// BroadcastDevices fans out to every device stream connection and returns
// the number reached.
func (h *Hub) BroadcastDevices(frame domain.Frame) int {
	payload, ok := h.marshal(frame)
	if !ok {
		return 0
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.devices))
	for _, c := range h.devices {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	return deliver(clients, payload)
}

// BroadcastToOrder fans out to every customer connection tracking the given
// order.
func (h *Hub) BroadcastToOrder(orderID string, frame domain.Frame) int {
	payload, ok := h.marshal(frame)
	if !ok {
		return 0
	}

	h.mu.Lock()
	var clients []*Client
	for id, c := range h.customers {
		if id.OrderID == orderID {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	return deliver(clients, payload)
}

// BroadcastToTicket fans out to the ticket's participants, excluding
// excludeParticipantID (empty string excludes nobody). Chat relays use the
// exclusion to avoid echoing a message back to its sender.
func (h *Hub) BroadcastToTicket(ticketID string, frame domain.Frame, excludeParticipantID string) int {
	payload, ok := h.marshal(frame)
	if !ok {
		return 0
	}

	h.mu.Lock()
	var clients []*Client
	for _, c := range h.support[ticketID] {
		if excludeParticipantID != "" && c.support.ParticipantID == excludeParticipantID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.Unlock()

	return deliver(clients, payload)
}

// deliver enqueues the same serialized bytes to each client, visited in
// registry-iteration order. No cross-call ordering is promised.
func deliver(clients []*Client, payload []byte) int {
	n := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			n++
		}
	}
	return n
}

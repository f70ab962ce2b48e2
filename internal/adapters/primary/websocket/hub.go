package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feastly/realtime-gateway/internal/core/domain"
	"github.com/feastly/realtime-gateway/internal/core/ports"
)

// Hub owns the five session registries: the authoritative "currently
// connected" set per role. All registry access is serialized by one mutex,
// so supersession (old-closes-then-new-inserts) is atomic from the point of
// view of every other caller. The Hub is constructed once at process start
// and threaded through explicitly; there are no package-level registries.
type Hub struct {
	mu sync.Mutex

	// Non-chat registries hold at most one record per identity.
	customers map[domain.CustomerIdentity]*Client
	admins    map[string]*Client
	drivers   map[string]*Client
	devices   map[string]*Client

	// Support registry: ticketID to participant records. A ticket may have
	// several live participants.
	support map[string][]*Client

	sendBuffer      int
	writeWait       time.Duration
	sweepInterval   time.Duration
	livenessTimeout time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	logger *slog.Logger
}

// Ensure Hub implements the EventPublisher interface.
var _ ports.EventPublisher = (*Hub)(nil)

// Options tunes hub behavior. Zero values fall back to production defaults;
// tests shrink the intervals.
type Options struct {
	SendBufferSize  int
	WriteWait       time.Duration
	SweepInterval   time.Duration
	LivenessTimeout time.Duration
}

// NewHub creates the connection hub.
func NewHub(logger *slog.Logger, opts Options) *Hub {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = 2 * opts.SweepInterval
	}

	return &Hub{
		customers:       make(map[domain.CustomerIdentity]*Client),
		admins:          make(map[string]*Client),
		drivers:         make(map[string]*Client),
		devices:         make(map[string]*Client),
		support:         make(map[string][]*Client),
		sendBuffer:      opts.SendBufferSize,
		writeWait:       opts.WriteWait,
		sweepInterval:   opts.SweepInterval,
		livenessTimeout: opts.LivenessTimeout,
		stop:            make(chan struct{}),
		logger:          logger.With("component", "connection_hub"),
	}
}

// RegisterCustomer attaches an accepted customer tracking connection.
func (h *Hub) RegisterCustomer(conn *websocket.Conn, id domain.CustomerIdentity) {
	c := newClient(h, conn, domain.RoleCustomer, h.logger)
	c.customer = id

	h.mu.Lock()
	if prev := h.customers[id]; prev != nil {
		prev.closeWith(websocket.CloseNormalClosure, "superseded")
	}
	h.customers[id] = c
	h.mu.Unlock()

	h.logger.Info("customer connected", "user_id", id.UserID, "order_id", id.OrderID)
	h.finishRegister(c, id)
}

// RegisterAdmin attaches an accepted admin dashboard connection.
func (h *Hub) RegisterAdmin(conn *websocket.Conn, id domain.AdminIdentity) {
	c := newClient(h, conn, domain.RoleAdmin, h.logger)
	c.admin = id

	h.mu.Lock()
	if prev := h.admins[id.AdminID]; prev != nil {
		prev.closeWith(websocket.CloseNormalClosure, "superseded")
	}
	h.admins[id.AdminID] = c
	h.mu.Unlock()

	h.logger.Info("admin connected", "admin_id", id.AdminID)
	h.finishRegister(c, id)
}

// RegisterDriver attaches an accepted driver connection.
func (h *Hub) RegisterDriver(conn *websocket.Conn, id domain.DriverIdentity) {
	c := newClient(h, conn, domain.RoleDriver, h.logger)
	c.driver = id

	h.mu.Lock()
	if prev := h.drivers[id.DriverID]; prev != nil {
		prev.closeWith(websocket.CloseNormalClosure, "superseded")
	}
	h.drivers[id.DriverID] = c
	h.mu.Unlock()

	h.logger.Info("driver connected", "driver_id", id.DriverID)
	h.finishRegister(c, id)
}

// RegisterDevice attaches an accepted device stream connection.
func (h *Hub) RegisterDevice(conn *websocket.Conn, id domain.DeviceIdentity) {
	c := newClient(h, conn, domain.RoleDevice, h.logger)
	c.device = id

	h.mu.Lock()
	if prev := h.devices[id.DeviceID]; prev != nil {
		prev.closeWith(websocket.CloseNormalClosure, "superseded")
	}
	h.devices[id.DeviceID] = c
	h.mu.Unlock()

	h.logger.Info("device connected",
		"device_id", id.DeviceID,
		"device_name", id.DeviceName,
		"device_type", id.DeviceType,
	)
	h.finishRegister(c, id)
}

// RegisterSupport attaches an accepted support chat participant. Unlike the
// other roles, participants accumulate: a ticket keeps every live record.
func (h *Hub) RegisterSupport(conn *websocket.Conn, id domain.SupportIdentity) {
	c := newClient(h, conn, domain.RoleSupport, h.logger)
	c.support = id

	h.mu.Lock()
	h.support[id.TicketID] = append(h.support[id.TicketID], c)
	h.mu.Unlock()

	h.logger.Info("support participant connected",
		"ticket_id", id.TicketID,
		"participant_id", id.ParticipantID,
		"participant_type", string(id.ParticipantType),
	)
	h.finishRegister(c, id)
}

// finishRegister queues the connected frame and starts the pumps. Queuing
// happens before the write pump runs, so connected is deterministically the
// first frame on every accepted connection.
func (h *Hub) finishRegister(c *Client, identity any) {
	payload, err := json.Marshal(domain.Frame{
		Event: domain.EventConnected,
		Data:  identity,
	})
	if err != nil {
		c.logger.Error("failed to marshal connected frame", "error", err)
	} else {
		c.enqueue(payload)
	}
	c.start()
}

// remove deletes a record from its registry, but only if it is still the
// currently registered record for its identity. A just-superseded
// connection's late close therefore cannot delete its successor.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked is remove without taking the lock. Callers hold h.mu.
func (h *Hub) removeLocked(c *Client) {
	switch c.role {
	case domain.RoleCustomer:
		if h.customers[c.customer] == c {
			delete(h.customers, c.customer)
		}
	case domain.RoleAdmin:
		if h.admins[c.admin.AdminID] == c {
			delete(h.admins, c.admin.AdminID)
		}
	case domain.RoleDriver:
		if h.drivers[c.driver.DriverID] == c {
			delete(h.drivers, c.driver.DriverID)
		}
	case domain.RoleDevice:
		if h.devices[c.device.DeviceID] == c {
			delete(h.devices, c.device.DeviceID)
		}
	case domain.RoleSupport:
		h.removeSupportLocked(c)
	}
}

// removeSupportLocked filters the ticket's participant list instead of
// replacing a slot. Callers hold h.mu.
func (h *Hub) removeSupportLocked(c *Client) {
	ticketID := c.support.TicketID
	participants := h.support[ticketID]
	kept := participants[:0]
	for _, p := range participants {
		if p != c {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(h.support, ticketID)
	} else {
		h.support[ticketID] = kept
	}
}

// Counts reports the number of live records per role, for health reporting.
type Counts struct {
	Customers int `json:"customers"`
	Admins    int `json:"admins"`
	Drivers   int `json:"drivers"`
	Devices   int `json:"devices"`
	Support   int `json:"support"`
}

func (h *Hub) Counts() Counts {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := Counts{
		Customers: len(h.customers),
		Admins:    len(h.admins),
		Drivers:   len(h.drivers),
		Devices:   len(h.devices),
	}
	for _, participants := range h.support {
		counts.Support += len(participants)
	}
	return counts
}

// Shutdown stops the supervisor, closes every live socket with a going-away
// code and clears the registries. After Shutdown no timers or sockets
// survive.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})

	h.mu.Lock()
	clients := h.allClientsLocked()
	h.customers = make(map[domain.CustomerIdentity]*Client)
	h.admins = make(map[string]*Client)
	h.drivers = make(map[string]*Client)
	h.devices = make(map[string]*Client)
	h.support = make(map[string][]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	h.logger.Info("hub shut down", "connections_closed", len(clients))
}

// allClientsLocked snapshots every live record. Callers hold h.mu.
func (h *Hub) allClientsLocked() []*Client {
	var clients []*Client
	for _, c := range h.customers {
		clients = append(clients, c)
	}
	for _, c := range h.admins {
		clients = append(clients, c)
	}
	for _, c := range h.drivers {
		clients = append(clients, c)
	}
	for _, c := range h.devices {
		clients = append(clients, c)
	}
	for _, participants := range h.support {
		clients = append(clients, participants...)
	}
	return clients
}

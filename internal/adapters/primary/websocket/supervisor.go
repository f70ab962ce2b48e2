package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// RunSupervisor sweeps the registries at a fixed interval until Shutdown.
// This MUST be run as a goroutine.
//
// Each sweep evicts records whose liveness clock has gone stale and probes
// everyone else. The probe/timeout pair is what distinguishes "idle but
// alive" (a driver waiting hours between orders) from "dead" (crashed
// client, network partition): an alive peer's websocket stack answers the
// ping even when the application is silent.
func (h *Hub) RunSupervisor() {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			h.sweep(now)
		case <-h.stop:
			return
		}
	}
}

// sweep walks every registry once. Stale records are removed synchronously,
// without waiting for their close events to fire; their sockets are closed
// after the lock is released.
func (h *Hub) sweep(now time.Time) {
	h.mu.Lock()

	var stale, live []*Client
	for _, c := range h.allClientsLocked() {
		if c.livenessAge(now) > h.livenessTimeout {
			stale = append(stale, c)
		} else {
			live = append(live, c)
		}
	}
	for _, c := range stale {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Info("evicting stale connection",
			"role", string(c.role),
			"liveness_age", c.livenessAge(now).String(),
		)
		c.closeWith(websocket.CloseGoingAway, "liveness timeout")
	}

	for _, c := range live {
		c.probe(now)
	}
}
